package main

import (
	"context"
	"testing"
	"time"

	"github.com/alfredjeanlab/tower/internal/graph"
	"github.com/alfredjeanlab/tower/internal/investigation"
	"github.com/alfredjeanlab/tower/internal/model"
	"github.com/alfredjeanlab/tower/internal/stream"
)

func TestDemoGraph(t *testing.T) {
	nodes, links, err := graph.Normalize(demoGraph())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(nodes) != demoAccounts {
		t.Errorf("nodes = %d, want %d", len(nodes), demoAccounts)
	}
	if len(links) == 0 {
		t.Error("expected links")
	}
	anomalous := 0
	for _, n := range nodes {
		if n.Anomalous {
			anomalous++
		}
	}
	if anomalous == 0 || anomalous == len(nodes) {
		t.Errorf("anomalous = %d of %d, want a mix", anomalous, len(nodes))
	}
	if string(demoGraph()) != string(demoGraph()) {
		t.Error("demo graph should be deterministic")
	}
}

func TestDemoSubmitter_PlaysRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := stream.NewFeed()
	sub := newDemoSubmitter(ctx, feed, 0)
	defer sub.Close()
	ctrl := investigation.New(investigation.Options{Submitter: sub, Stream: feed, Graph: demoSource()})
	defer ctrl.Close()

	if err := ctrl.LoadGraph(ctx); err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	s, err := ctrl.Submit(ctx, model.TransactionForm{Source: "ACC-007", Target: "ACC-012", Amount: "250"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.JobID != "demo-1" {
		t.Errorf("job = %q, want demo-1", s.JobID)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.Session().Status != model.StatusDone {
		if time.Now().After(deadline) {
			t.Fatalf("run did not finish: %+v", ctrl.Session())
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := ctrl.Session()
	if len(got.Events) != len(stream.Script("demo-1", "ACC-007")) {
		t.Errorf("events = %d", len(got.Events))
	}
	if got.Alerted != "ACC-007" {
		t.Errorf("alerted = %q, want ACC-007", got.Alerted)
	}
}
