package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alfredjeanlab/tower/internal/graph"
	"github.com/alfredjeanlab/tower/internal/model"
	"github.com/alfredjeanlab/tower/internal/stream"
)

// demoAccounts is the size of the generated demo graph.
const demoAccounts = 48

// demoSubmitter accepts every transaction and plays a scripted pipeline run
// for it on feed. A new submission cuts the previous run short.
type demoSubmitter struct {
	ctx   context.Context
	feed  *stream.Feed
	every time.Duration

	mu     sync.Mutex
	n      int
	cancel context.CancelFunc
}

func newDemoSubmitter(ctx context.Context, feed *stream.Feed, every time.Duration) *demoSubmitter {
	return &demoSubmitter{ctx: ctx, feed: feed, every: every}
}

func (d *demoSubmitter) SubmitTransaction(_ context.Context, req *model.TransactionRequest) (*model.TransactionResponse, error) {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.n++
	n := d.n
	ctx, cancel := context.WithCancel(d.ctx)
	d.cancel = cancel
	d.mu.Unlock()

	jobID := fmt.Sprintf("demo-%d", n)
	go func() {
		// The controller subscribes after this call returns.
		if err := d.feed.WaitOpened(ctx, n); err != nil {
			return
		}
		_ = d.feed.Play(ctx, stream.Script(jobID, req.SourceAccount), d.every)
	}()

	score := 0.83
	return &model.TransactionResponse{ID: jobID, RiskScore: &score, Verdict: "Unusual transfer velocity"}, nil
}

// Close stops any run still playing.
func (d *demoSubmitter) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// demoGraph builds a deterministic graph payload of accounts ACC-001... in
// the graph service's wire format.
func demoGraph() []byte {
	r := rand.New(rand.NewPCG(7, 42))
	type node struct {
		NodeID       string  `json:"nodeId"`
		IsAnomalous  bool    `json:"isAnomalous"`
		AnomalyScore float64 `json:"anomalyScore"`
		Volume       float64 `json:"volume"`
	}
	type link struct {
		Source string  `json:"source"`
		Target string  `json:"target"`
		Amount float64 `json:"amount"`
	}
	var payload struct {
		Nodes []node `json:"nodes"`
		Links []link `json:"links"`
	}
	id := func(i int) string { return fmt.Sprintf("ACC-%03d", i+1) }
	for i := range demoAccounts {
		score := r.Float64()
		payload.Nodes = append(payload.Nodes, node{
			NodeID:       id(i),
			IsAnomalous:  score > 0.8,
			AnomalyScore: score,
			Volume:       1 + float64(r.IntN(9)),
		})
	}
	for i := range demoAccounts {
		for range 1 + r.IntN(2) {
			j := r.IntN(demoAccounts)
			if j == i {
				continue
			}
			payload.Links = append(payload.Links, link{Source: id(i), Target: id(j), Amount: float64(10 + r.IntN(990))})
		}
	}
	b, _ := json.Marshal(payload)
	return b
}

// demoSource serves demoGraph.
func demoSource() graph.Source {
	body := demoGraph()
	return graph.SourceFunc(func(ctx context.Context) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return body, nil
	})
}
