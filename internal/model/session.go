package model

// Status is the lifecycle of one pipeline run as seen by the console.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// String returns the status name.
func (s Status) String() string { return string(s) }

// IsTerminal reports whether s can only be left by starting a new run.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Tab selects which investigation panel is showing.
type Tab string

const (
	TabUnsupervised Tab = "unsupervised"
	TabJA3          Tab = "ja3"
	TabSupervised   Tab = "supervised"
)

// Tabs lists the panels in display order.
var Tabs = []Tab{TabUnsupervised, TabJA3, TabSupervised}

// IsValid reports whether t is a known tab.
func (t Tab) IsValid() bool {
	switch t {
	case TabUnsupervised, TabJA3, TabSupervised:
		return true
	}
	return false
}

// Label returns the display title of the tab.
func (t Tab) Label() string {
	switch t {
	case TabUnsupervised:
		return "Unsupervised"
	case TabJA3:
		return "JA3 Fingerprinting"
	case TabSupervised:
		return "Supervised"
	}
	return string(t)
}

// Enabled reports whether the tab has a working analysis behind it.
func (t Tab) Enabled() bool { return t == TabUnsupervised }

// SubmissionResult is what the transaction service said about a submission.
type SubmissionResult struct {
	RiskScore *float64 `json:"risk_score"`
	Reasons   []string `json:"reasons"`
}

// Session is the whole observable state of one investigation console.
type Session struct {
	// Rev increases with every change; a copy with a lower Rev is stale.
	Rev uint64 `json:"rev"`

	JobID       string            `json:"job_id,omitempty"`
	NodeID      string            `json:"node_id,omitempty"`
	LocalJobID  bool              `json:"local_job_id,omitempty"`
	Status      Status            `json:"status"`
	Events      []StageEvent      `json:"events"`
	Dropped     int               `json:"dropped"`
	Tab         Tab               `json:"tab"`
	Loading     bool              `json:"loading"`
	Result      *SubmissionResult `json:"result,omitempty"`
	SubmitError string            `json:"submit_error,omitempty"`
	StreamError string            `json:"stream_error,omitempty"`

	// DisconnectedAfterDone is set when the stream closed after completion.
	// Status stays done.
	DisconnectedAfterDone bool `json:"disconnected_after_done,omitempty"`

	FraudOnly   bool       `json:"fraud_only"`
	Graph       GraphStats `json:"graph"`
	GraphError  string     `json:"graph_error,omitempty"`
	Selected    *Account   `json:"selected,omitempty"`
	Hovered     string     `json:"hovered,omitempty"`
	Alerted     string     `json:"alerted,omitempty"`
	SearchQuery string     `json:"search_query,omitempty"`
	SearchError string     `json:"search_error,omitempty"`
}

// Clone returns a copy that shares no mutable slices with s.
func (s Session) Clone() Session {
	c := s
	c.Events = append([]StageEvent(nil), s.Events...)
	if s.Result != nil {
		r := *s.Result
		r.Reasons = append([]string(nil), s.Result.Reasons...)
		c.Result = &r
	}
	if s.Selected != nil {
		a := *s.Selected
		c.Selected = &a
	}
	return c
}
