// Package scene turns the current graph view into drawable primitives and
// routes pointer interaction back to the owner of the selection.
package scene

import (
	"sync"

	"github.com/alfredjeanlab/tower/internal/camera"
	"github.com/alfredjeanlab/tower/internal/model"
)

// FrameNode is a node ready to draw.
type FrameNode struct {
	NodeVisual
	Position camera.Vec3 `json:"position"`
	Resolved bool        `json:"resolved"`
}

// FrameEdge is an edge ready to draw. A dangling edge names an endpoint that
// is not in the view and has no coordinates.
type FrameEdge struct {
	EdgeVisual
	Source   string       `json:"source"`
	Target   string       `json:"target"`
	Amount   float64      `json:"amount"`
	From     *camera.Vec3 `json:"from,omitempty"`
	To       *camera.Vec3 `json:"to,omitempty"`
	Dangling bool         `json:"dangling,omitempty"`
}

// Frame is everything needed to draw one state of the scene.
type Frame struct {
	Revision model.Revision `json:"revision"`
	Nodes    []FrameNode    `json:"nodes"`
	Edges    []FrameEdge    `json:"edges"`
	Camera   camera.Pose    `json:"camera"`
	Settings EngineSettings `json:"settings"`
}

// GraphView binds a model.View to a layout and handles interaction.
type GraphView struct {
	mu       sync.Mutex
	view     *model.View
	layout   *Layout
	hovered  string
	onSelect func(*model.Account)

	// gen counts SetView calls; a layout finished for an older gen is
	// discarded. pending is the revision being laid out, if any.
	gen     uint64
	pending *model.Revision
}

// NewGraphView returns an empty GraphView.
func NewGraphView() *GraphView {
	return &GraphView{}
}

// OnSelect registers the callback that receives clicked nodes.
func (g *GraphView) OnSelect(fn func(*model.Account)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onSelect = fn
}

// SetView binds v. The layout is recomputed only when the revision changes,
// seeded from the previous positions. The simulation runs without the lock
// held: until it finishes the previous view keeps being drawn, and the new
// view and its layout are swapped in together. SetView reports whether it
// installed a new layout; it returns false when v is already bound, is
// already being laid out, or was superseded by a later call.
func (g *GraphView) SetView(v *model.View) bool {
	g.mu.Lock()
	if v == nil {
		g.gen++
		g.pending = nil
		changed := g.view != nil
		g.view, g.layout = nil, nil
		g.mu.Unlock()
		return changed
	}
	if g.pending != nil && *g.pending == v.Revision {
		g.mu.Unlock()
		return false
	}
	if g.pending == nil && g.view != nil && g.layout != nil && g.view.Revision == v.Revision {
		g.mu.Unlock()
		return false
	}
	var prev *Layout
	if g.layout != nil && g.layout.Revision.Seq == v.Revision.Seq {
		prev = g.layout
	}
	g.gen++
	gen := g.gen
	rev := v.Revision
	g.pending = &rev
	g.mu.Unlock()

	layout := ComputeLayout(v, prev, WarmupTicks)

	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen {
		return false
	}
	g.pending = nil
	g.view, g.layout = v, layout
	return true
}

// Revision returns the bound view's revision and whether one is bound.
func (g *GraphView) Revision() (model.Revision, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.view == nil {
		return model.Revision{}, false
	}
	return g.view.Revision, true
}

// Positions returns all resolved positions, or false when no layout exists.
func (g *GraphView) Positions() ([]camera.Vec3, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.layout == nil || len(g.layout.Positions) == 0 {
		return nil, false
	}
	return g.layout.Points(), true
}

// Position returns the resolved position of id.
func (g *GraphView) Position(id string) (camera.Vec3, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.layout.Position(id)
}

// Frame builds the drawable scene for sel as seen from pose.
func (g *GraphView) Frame(sel Selection, pose camera.Pose) Frame {
	g.mu.Lock()
	defer g.mu.Unlock()
	f := Frame{Camera: pose, Settings: DefaultEngineSettings, Nodes: []FrameNode{}, Edges: []FrameEdge{}}
	if g.view == nil {
		return f
	}
	f.Revision = g.view.Revision
	if sel.Hovered == "" {
		sel.Hovered = g.hovered
	}
	for _, n := range g.view.Nodes {
		p, ok := g.layout.Position(n.ID)
		f.Nodes = append(f.Nodes, FrameNode{NodeVisual: NodeVisualFor(n, sel), Position: p, Resolved: ok})
	}
	for _, l := range g.view.Links {
		e := FrameEdge{EdgeVisual: EdgeVisualFor(l), Source: l.Source, Target: l.Target, Amount: l.Amount}
		from, okF := g.layout.Position(l.Source)
		to, okT := g.layout.Position(l.Target)
		if okF && okT {
			e.From, e.To = &from, &to
		} else {
			e.Dangling = true
		}
		f.Edges = append(f.Edges, e)
	}
	return f
}

// Click reports the node with id to the selection callback. It never
// changes the graph itself.
func (g *GraphView) Click(id string) (*model.Account, error) {
	g.mu.Lock()
	n := g.view.Node(id)
	fn := g.onSelect
	g.mu.Unlock()
	if n == nil {
		return nil, &model.NotFoundError{Kind: "account", ID: id}
	}
	if fn != nil {
		fn(n)
	}
	return n, nil
}

// Hover marks id as hovered and returns its tooltip. An empty or unknown id
// clears the hover.
func (g *GraphView) Hover(id string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.view.Node(id)
	if n == nil {
		g.hovered = ""
		return "", false
	}
	g.hovered = id
	return Label(n), true
}

// Hovered returns the hovered node id.
func (g *GraphView) Hovered() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hovered
}
