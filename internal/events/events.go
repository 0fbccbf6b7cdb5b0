// Package events carries pipeline stage events and investigation
// notifications over NATS.
package events

import (
	"context"
	"strings"

	"github.com/alfredjeanlab/tower/internal/model"
)

// Subject layout. Stage events for a job are published on
// pipeline.<job>.<stage>; console notifications on tower.investigation.*.
const (
	StagePrefix = "pipeline"

	TopicInvestigationStarted  = "tower.investigation.started"
	TopicInvestigationFinished = "tower.investigation.finished"
	TopicGraphLoaded           = "tower.graph.loaded"
)

// subjectToken makes s safe to use as a single NATS subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

// StageSubject is the subject a stage event for jobID is published on.
func StageSubject(jobID string, stage model.Stage) string {
	return StagePrefix + "." + subjectToken(jobID) + "." + string(stage)
}

// JobSubjects matches every stage subject of jobID.
func JobSubjects(jobID string) string {
	return StagePrefix + "." + subjectToken(jobID) + ".>"
}

// StageFromSubject returns the stage token of a stage subject.
func StageFromSubject(subject string) string {
	i := strings.LastIndexByte(subject, '.')
	return subject[i+1:]
}

// Event types

type InvestigationStarted struct {
	JobID      string `json:"job_id"`
	NodeID     string `json:"node_id"`
	LocalJobID bool   `json:"local_job_id,omitempty"`
}

type InvestigationFinished struct {
	JobID   string       `json:"job_id"`
	NodeID  string       `json:"node_id"`
	Status  model.Status `json:"status"`
	Events  int          `json:"events"`
	Dropped int          `json:"dropped"`
	Error   string       `json:"error,omitempty"`
}

type GraphLoaded struct {
	Seq   uint64           `json:"seq"`
	Stats model.GraphStats `json:"stats"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
