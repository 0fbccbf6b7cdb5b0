package model

import "time"

// Node colours by anomaly flag.
const (
	ColorFraud  = "#ff4d4d"
	ColorNormal = "#22c55e"
)

// Account is a node of the transaction graph. Accounts are immutable once loaded.
type Account struct {
	ID           string  `json:"id"`
	Anomalous    bool    `json:"is_anomalous"`
	AnomalyScore float64 `json:"anomaly_score"`
	Volume       float64 `json:"volume"`
	Color        string  `json:"color"`
}

// ColorFor returns the display colour for an anomaly flag.
func ColorFor(anomalous bool) string {
	if anomalous {
		return ColorFraud
	}
	return ColorNormal
}

// Transfer is a directed money movement between two accounts.
type Transfer struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Amount float64 `json:"amount"`
}

// Snapshot is one complete load of the graph. It is never mutated after it
// is published; a reload produces a new Snapshot.
type Snapshot struct {
	Seq      uint64      `json:"seq"`
	Nodes    []*Account  `json:"nodes"`
	Links    []*Transfer `json:"links"`
	LoadedAt time.Time   `json:"loaded_at"`
}

// Revision identifies a derived view: which snapshot it came from and which
// filter was applied.
type Revision struct {
	Seq       uint64 `json:"seq"`
	FraudOnly bool   `json:"fraud_only"`
}

// View is the filtered projection of a Snapshot that is actually rendered.
type View struct {
	Revision Revision    `json:"revision"`
	Nodes    []*Account  `json:"nodes"`
	Links    []*Transfer `json:"links"`
}

// Node returns the account with the given id, or nil.
func (v *View) Node(id string) *Account {
	if v == nil {
		return nil
	}
	for _, n := range v.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// GraphStats holds aggregate counts for a view.
type GraphStats struct {
	Nodes     int `json:"nodes"`
	Links     int `json:"links"`
	Anomalous int `json:"anomalous"`
}

// Stats counts the nodes, links and anomalous nodes of the view.
func (v *View) Stats() GraphStats {
	if v == nil {
		return GraphStats{}
	}
	s := GraphStats{Nodes: len(v.Nodes), Links: len(v.Links)}
	for _, n := range v.Nodes {
		if n.Anomalous {
			s.Anomalous++
		}
	}
	return s
}
