package graph

import "github.com/alfredjeanlab/tower/internal/model"

// FilterView derives the renderable view of snap. With fraudOnly set it keeps
// exactly the anomalous accounts and the transfers whose endpoints both
// survive; otherwise it returns every account and transfer, dangling links
// included. FilterView never modifies snap.
func FilterView(snap *model.Snapshot, fraudOnly bool) *model.View {
	if snap == nil {
		return nil
	}
	v := &model.View{Revision: model.Revision{Seq: snap.Seq, FraudOnly: fraudOnly}}
	if !fraudOnly {
		v.Nodes = append([]*model.Account(nil), snap.Nodes...)
		v.Links = append([]*model.Transfer(nil), snap.Links...)
		return v
	}

	keep := make(map[string]struct{})
	v.Nodes = make([]*model.Account, 0)
	for _, n := range snap.Nodes {
		if n.Anomalous {
			keep[n.ID] = struct{}{}
			v.Nodes = append(v.Nodes, n)
		}
	}
	v.Links = make([]*model.Transfer, 0)
	for _, l := range snap.Links {
		_, srcOK := keep[l.Source]
		_, dstOK := keep[l.Target]
		if srcOK && dstOK {
			v.Links = append(v.Links, l)
		}
	}
	return v
}
