package stream

import (
	"encoding/json"

	"github.com/alfredjeanlab/tower/internal/model"
)

// Script returns a complete, well-formed pipeline run for nodeID, ending in
// the completion stage. It drives demo mode and NATS replay.
func Script(jobID, nodeID string) []Message {
	msg := func(s model.Stage, payload any) Message {
		b, _ := json.Marshal(payload)
		return Message{Stage: string(s), Data: b}
	}
	return []Message{
		msg(model.StagePopulationLoaded, model.PopulationLoaded{NodeID: nodeID, PopulationSize: 128}),
		msg(model.StageScoringStarted, model.ScoringStarted{NodeID: nodeID, Model: "isolation_forest"}),
		msg(model.StageEIFResult, model.EIFResult{NodeID: nodeID, AnomalyScore: 0.83, IsAnomalous: true, Model: "isolation_forest"}),
		msg(model.StageShapStarted, model.ShapStarted{NodeID: nodeID}),
		msg(model.StageShapCompleted, model.ShapCompleted{
			NodeID:       nodeID,
			AnomalyScore: 0.83,
			TopFactors: []model.Factor{
				{Feature: "tx_velocity", Impact: 0.41},
				{Feature: "risk_ratio", Impact: 0.27},
				{Feature: "account_age_days", Impact: -0.12},
			},
			Model:  "isolation_forest",
			Source: "shap",
		}),
		msg(model.StageUnsupervisedCompleted, model.UnsupervisedCompleted{
			TransactionID: jobID,
			NodeID:        nodeID,
			AnomalyScore:  0.83,
			IsAnomalous:   true,
			Verdict:       "Anomalous transfer pattern",
			Model:         "isolation_forest",
		}),
	}
}
