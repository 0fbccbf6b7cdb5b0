package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Stage names one step of the scoring pipeline.
type Stage string

const (
	StagePopulationLoaded      Stage = "population_loaded"
	StageScoringStarted        Stage = "scoring_started"
	StageEIFResult             Stage = "eif_result"
	StageShapStarted           Stage = "shap_started"
	StageShapCompleted         Stage = "shap_completed"
	StageShapSkipped           Stage = "shap_skipped"
	StageUnsupervisedCompleted Stage = "unsupervised_completed"
)

// Stages lists every stage in pipeline order. The last entry is the
// completion stage.
var Stages = []Stage{
	StagePopulationLoaded,
	StageScoringStarted,
	StageEIFResult,
	StageShapStarted,
	StageShapCompleted,
	StageShapSkipped,
	StageUnsupervisedCompleted,
}

// String returns the wire name of the stage.
func (s Stage) String() string { return string(s) }

// IsValid reports whether s is a known stage.
func (s Stage) IsValid() bool {
	for _, k := range Stages {
		if s == k {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is the completion stage.
func (s Stage) IsTerminal() bool { return s == StageUnsupervisedCompleted }

// ErrUnknownStage is returned when an event names a stage outside the fixed set.
var ErrUnknownStage = errors.New("unknown stage")

// StagePayload is the typed body of a stage event. Exactly one concrete type
// exists per Stage.
type StagePayload interface {
	Stage() Stage
}

// Factor is one contributing feature of an explanation.
type Factor struct {
	Feature string  `json:"feature"`
	Impact  float64 `json:"impact"`
}

type PopulationLoaded struct {
	NodeID         string `json:"node_id,omitempty"`
	PopulationSize int    `json:"population_size"`
}

type ScoringStarted struct {
	NodeID string `json:"node_id,omitempty"`
	Model  string `json:"model,omitempty"`
}

type EIFResult struct {
	NodeID       string  `json:"node_id,omitempty"`
	AnomalyScore float64 `json:"anomaly_score"`
	IsAnomalous  bool    `json:"is_anomalous"`
	Model        string  `json:"model,omitempty"`
}

type ShapStarted struct {
	NodeID string `json:"node_id,omitempty"`
}

type ShapCompleted struct {
	NodeID       string   `json:"node_id,omitempty"`
	AnomalyScore float64  `json:"anomaly_score"`
	TopFactors   []Factor `json:"top_factors,omitempty"`
	Reasons      []string `json:"reasons,omitempty"`
	Model        string   `json:"model,omitempty"`
	Source       string   `json:"source,omitempty"`
}

type ShapSkipped struct {
	NodeID string `json:"node_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type UnsupervisedCompleted struct {
	TransactionID string  `json:"transaction_id,omitempty"`
	NodeID        string  `json:"node_id,omitempty"`
	AnomalyScore  float64 `json:"anomaly_score"`
	IsAnomalous   bool    `json:"is_anomalous"`
	Verdict       string  `json:"verdict,omitempty"`
	Model         string  `json:"model,omitempty"`
}

func (PopulationLoaded) Stage() Stage      { return StagePopulationLoaded }
func (ScoringStarted) Stage() Stage        { return StageScoringStarted }
func (EIFResult) Stage() Stage             { return StageEIFResult }
func (ShapStarted) Stage() Stage           { return StageShapStarted }
func (ShapCompleted) Stage() Stage         { return StageShapCompleted }
func (ShapSkipped) Stage() Stage           { return StageShapSkipped }
func (UnsupervisedCompleted) Stage() Stage { return StageUnsupervisedCompleted }

// StageEvent is one received pipeline notification.
type StageEvent struct {
	Seq        int             `json:"seq"`
	Stage      Stage           `json:"stage"`
	Payload    StagePayload    `json:"data"`
	Raw        json.RawMessage `json:"-"`
	ReceivedAt time.Time       `json:"received_at"`
}

// DecodeStageEvent validates the stage name and decodes data into the
// stage's payload type. Unknown stages yield ErrUnknownStage; bodies that are
// not JSON objects yield a *MalformedResponseError.
func DecodeStageEvent(stage string, data []byte) (StagePayload, error) {
	s := Stage(stage)
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	var f Fields
	if isNull(data) {
		f = Fields{}
	} else if err := json.Unmarshal(data, &f); err != nil {
		return nil, &MalformedResponseError{Op: "decode " + stage, Reason: "payload is not a JSON object", Err: err}
	}
	node, _ := f.String("node_id", "nodeId", "node")
	model, _ := f.String("model")
	score, _ := f.Float("anomaly_score", "anomalyScore", "score")
	anomalous, _ := f.Bool("is_anomalous", "isAnomalous")

	switch s {
	case StagePopulationLoaded:
		size, _ := f.Float("population_size", "populationSize", "count", "size")
		return PopulationLoaded{NodeID: node, PopulationSize: int(size)}, nil
	case StageScoringStarted:
		return ScoringStarted{NodeID: node, Model: model}, nil
	case StageEIFResult:
		return EIFResult{NodeID: node, AnomalyScore: score, IsAnomalous: anomalous, Model: model}, nil
	case StageShapStarted:
		return ShapStarted{NodeID: node}, nil
	case StageShapCompleted:
		p := ShapCompleted{NodeID: node, AnomalyScore: score, Model: model}
		p.Source, _ = f.String("source")
		factors, err := decodeFactors(f.Pick("top_factors", "topFactors"))
		if err != nil {
			return nil, &MalformedResponseError{Op: "decode " + stage, Reason: "bad top_factors", Err: err}
		}
		p.TopFactors = factors
		if raw := f.Pick("reasons"); raw != nil {
			if err := json.Unmarshal(raw, &p.Reasons); err != nil {
				return nil, &MalformedResponseError{Op: "decode " + stage, Reason: "bad reasons", Err: err}
			}
		}
		return p, nil
	case StageShapSkipped:
		reason, _ := f.String("reason", "message")
		return ShapSkipped{NodeID: node, Reason: reason}, nil
	default:
		p := UnsupervisedCompleted{NodeID: node, AnomalyScore: score, IsAnomalous: anomalous, Model: model}
		p.TransactionID, _ = f.String("transaction_id", "transactionId")
		p.Verdict, _ = f.String("verdict")
		return p, nil
	}
}

func decodeFactors(raw json.RawMessage) ([]Factor, error) {
	if raw == nil {
		return nil, nil
	}
	var items []Fields
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]Factor, 0, len(items))
	for _, it := range items {
		name, ok := it.String("feature", "name")
		if !ok {
			continue
		}
		impact, _ := it.Float("impact", "value")
		out = append(out, Factor{Feature: name, Impact: impact})
	}
	return out, nil
}

// Summary renders a one-line description of an event for logs and terminals.
func (e StageEvent) Summary() string {
	switch p := e.Payload.(type) {
	case PopulationLoaded:
		return fmt.Sprintf("population loaded: %d accounts", p.PopulationSize)
	case ScoringStarted:
		return fmt.Sprintf("scoring started (%s)", orDash(p.Model))
	case EIFResult:
		return fmt.Sprintf("isolation forest: score %.3f anomalous=%t", p.AnomalyScore, p.IsAnomalous)
	case ShapStarted:
		return "explanation started"
	case ShapCompleted:
		if len(p.TopFactors) > 0 {
			return fmt.Sprintf("explanation complete: top factor %s (%.3f)", p.TopFactors[0].Feature, p.TopFactors[0].Impact)
		}
		return "explanation complete"
	case ShapSkipped:
		return "explanation skipped: " + orDash(p.Reason)
	case UnsupervisedCompleted:
		return fmt.Sprintf("completed: score %.3f anomalous=%t %s", p.AnomalyScore, p.IsAnomalous, p.Verdict)
	}
	return string(e.Stage)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// UnmarshalJSON restores the typed payload from its stage name.
func (e *StageEvent) UnmarshalJSON(b []byte) error {
	var aux struct {
		Seq        int             `json:"seq"`
		Stage      string          `json:"stage"`
		Data       json.RawMessage `json:"data"`
		ReceivedAt time.Time       `json:"received_at"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p, err := DecodeStageEvent(aux.Stage, aux.Data)
	if err != nil {
		return err
	}
	*e = StageEvent{Seq: aux.Seq, Stage: Stage(aux.Stage), Payload: p, Raw: aux.Data, ReceivedAt: aux.ReceivedAt}
	return nil
}
