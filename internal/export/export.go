// Package export writes investigation reports as JSONL to one or more
// destinations once a pipeline run ends.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/alfredjeanlab/tower/internal/model"
)

// header is the first JSONL record of a report.
type header struct {
	Version    string       `json:"version"`
	Type       string       `json:"type"`
	Timestamp  time.Time    `json:"timestamp"`
	JobID      string       `json:"job_id"`
	NodeID     string       `json:"node_id"`
	LocalJobID bool         `json:"local_job_id,omitempty"`
	Status     model.Status `json:"status"`
	EventCount int          `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// summary closes a report with the outcome of the run.
type summary struct {
	Status                model.Status     `json:"status"`
	Dropped               int              `json:"dropped"`
	StreamError           string           `json:"stream_error,omitempty"`
	DisconnectedAfterDone bool             `json:"disconnected_after_done,omitempty"`
	Alerted               string           `json:"alerted,omitempty"`
	Selected              string           `json:"selected,omitempty"`
	Graph                 model.GraphStats `json:"graph"`
}

// WriteJSONL writes the report for s to w: a header, the submission
// result, every stage event in sequence order and a closing summary.
func WriteJSONL(s model.Session, w io.Writer, now time.Time) error {
	evs := append([]model.StageEvent(nil), s.Events...)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Seq < evs[j].Seq })

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  now.UTC(),
		JobID:      s.JobID,
		NodeID:     s.NodeID,
		LocalJobID: s.LocalJobID,
		Status:     s.Status,
		EventCount: len(evs),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	if s.Result != nil {
		if err := enc.Encode(record{Type: "result", Data: s.Result}); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}

	for _, ev := range evs {
		if err := enc.Encode(record{Type: "event", Data: ev}); err != nil {
			return fmt.Errorf("encode event %d: %w", ev.Seq, err)
		}
	}

	sum := summary{
		Status:                s.Status,
		Dropped:               s.Dropped,
		StreamError:           s.StreamError,
		DisconnectedAfterDone: s.DisconnectedAfterDone,
		Alerted:               s.Alerted,
		Graph:                 s.Graph,
	}
	if s.Selected != nil {
		sum.Selected = s.Selected.ID
	}
	if err := enc.Encode(record{Type: "summary", Data: sum}); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// KeyFor names the report object of s relative to a destination root.
func KeyFor(s model.Session) string {
	id := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, s.JobID)
	if id == "" || id == "." || id == ".." {
		id = "unknown"
	}
	return path.Join("reports", id+".jsonl")
}

// Destination is a place reports are written to (file, S3, git).
type Destination interface {
	// Write stores data under key, replacing any previous content.
	Write(ctx context.Context, key string, data []byte) error
}
