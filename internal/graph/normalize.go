package graph

import (
	"bytes"
	"encoding/json"

	"github.com/alfredjeanlab/tower/internal/model"
)

// Key spellings accepted for each field. The graph service emits the
// camelCase names; exported visualisation files use the snake_case ones.
var (
	nodeIDKeys    = []string{"nodeId", "id", "node_id"}
	anomalousKeys = []string{"isAnomalous", "is_anomalous"}
	scoreKeys     = []string{"anomalyScore", "anomaly_score", "height"}
	volumeKeys    = []string{"volume", "size"}
	amountKeys    = []string{"amount", "value"}
	linkKeys      = []string{"links", "edges"}
)

// defaultWeight is used for any absent, null, non-numeric or negative
// volume or amount.
const defaultWeight = 1.0

// Normalize parses a graph payload into accounts and transfers.
//
// Nodes without an id are dropped and a repeated id keeps its first
// occurrence. Links with a missing endpoint are dropped. Links whose
// endpoints name unknown nodes are kept; callers that render them must
// tolerate the dangling reference.
func Normalize(body []byte) ([]*model.Account, []*model.Transfer, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil, &model.MalformedResponseError{Op: "normalize graph", Reason: "empty body"}
	}
	if trimmed[0] == '<' {
		return nil, nil, &model.MalformedResponseError{Op: "normalize graph", Reason: "received markup instead of JSON"}
	}

	var doc model.Fields
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, nil, &model.MalformedResponseError{Op: "normalize graph", Reason: "invalid JSON", Err: err}
	}

	var rawNodes []model.Fields
	if raw := doc.Pick("nodes"); raw != nil {
		if err := json.Unmarshal(raw, &rawNodes); err != nil {
			return nil, nil, &model.MalformedResponseError{Op: "normalize graph", Reason: "nodes is not an array of objects", Err: err}
		}
	}
	var rawLinks []model.Fields
	if raw := doc.Pick(linkKeys...); raw != nil {
		if err := json.Unmarshal(raw, &rawLinks); err != nil {
			return nil, nil, &model.MalformedResponseError{Op: "normalize graph", Reason: "links is not an array of objects", Err: err}
		}
	}

	nodes := make([]*model.Account, 0, len(rawNodes))
	seen := make(map[string]struct{}, len(rawNodes))
	for _, f := range rawNodes {
		n, ok := normalizeNode(f)
		if !ok {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		nodes = append(nodes, n)
	}

	links := make([]*model.Transfer, 0, len(rawLinks))
	for _, f := range rawLinks {
		if l, ok := normalizeLink(f); ok {
			links = append(links, l)
		}
	}
	return nodes, links, nil
}

func normalizeNode(f model.Fields) (*model.Account, bool) {
	id, ok := f.String(nodeIDKeys...)
	if !ok {
		return nil, false
	}
	anomalous, _ := f.Bool(anomalousKeys...)
	score, _ := f.Float(scoreKeys...)
	return &model.Account{
		ID:           id,
		Anomalous:    anomalous,
		AnomalyScore: score,
		Volume:       weight(f, volumeKeys),
		Color:        model.ColorFor(anomalous),
	}, true
}

func normalizeLink(f model.Fields) (*model.Transfer, bool) {
	src, ok := endpoint(f.Pick("source"))
	if !ok {
		return nil, false
	}
	dst, ok := endpoint(f.Pick("target"))
	if !ok {
		return nil, false
	}
	return &model.Transfer{Source: src, Target: dst, Amount: weight(f, amountKeys)}, true
}

// endpoint accepts a plain id or an embedded node object carrying one.
func endpoint(raw json.RawMessage) (string, bool) {
	if id, ok := model.FlexString(raw); ok {
		return id, true
	}
	var obj model.Fields
	if raw == nil || json.Unmarshal(raw, &obj) != nil {
		return "", false
	}
	return obj.String(nodeIDKeys...)
}

func weight(f model.Fields, keys []string) float64 {
	v, ok := f.Float(keys...)
	if !ok || v < 0 {
		return defaultWeight
	}
	return v
}
