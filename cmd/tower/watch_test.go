package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alfredjeanlab/tower/internal/model"
	"github.com/alfredjeanlab/tower/internal/server"
	"github.com/alfredjeanlab/tower/internal/stream"
)

func sessionMsg(t *testing.T, s model.Session) stream.Message {
	t.Helper()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	return stream.Message{Stage: server.TopicSessionUpdated, Data: data}
}

func stageMsg(t *testing.T, ev model.StageEvent) stream.Message {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return stream.Message{Stage: server.TopicStagePrefix + string(ev.Stage), Data: data}
}

func TestRunFollower_PrintsEachEventOnce(t *testing.T) {
	var buf bytes.Buffer
	f := &runFollower{w: &buf, jobID: "42"}

	first := model.StageEvent{Seq: 1, Stage: model.StagePopulationLoaded, Payload: model.PopulationLoaded{PopulationSize: 3}}
	second := model.StageEvent{Seq: 2, Stage: model.StageScoringStarted, Payload: model.ScoringStarted{}}

	// Snapshot already holds the first event; its stage topic arrives too.
	if !f.handle(sessionMsg(t, model.Session{JobID: "42", Status: model.StatusRunning, Events: []model.StageEvent{first}})) {
		t.Fatal("running session should keep following")
	}
	f.handle(stageMsg(t, first))
	f.handle(stageMsg(t, second))

	done := model.Session{JobID: "42", Status: model.StatusDone, Events: []model.StageEvent{first, second}}
	if f.handle(sessionMsg(t, done)) {
		t.Fatal("terminal session should stop following")
	}
	if f.final == nil || f.final.Status != model.StatusDone {
		t.Fatalf("final = %+v", f.final)
	}
	out := buf.String()
	if strings.Count(out, string(model.StagePopulationLoaded)) != 1 || strings.Count(out, string(model.StageScoringStarted)) != 1 {
		t.Errorf("events not printed exactly once:\n%s", out)
	}
}

func TestRunFollower_IgnoresOtherJobs(t *testing.T) {
	var buf bytes.Buffer
	f := &runFollower{w: &buf, jobID: "42"}
	if !f.handle(sessionMsg(t, model.Session{JobID: "41", Status: model.StatusDone})) {
		t.Error("another job's completion should not stop the follower")
	}
	if f.final != nil {
		t.Error("final should be unset")
	}
}

func TestRunFollower_AdoptsNextRun(t *testing.T) {
	var buf bytes.Buffer
	f := &runFollower{w: &buf}

	f.handle(stageMsg(t, model.StageEvent{Seq: 1, Stage: model.StageShapStarted, Payload: model.ShapStarted{}}))
	if buf.Len() != 0 {
		t.Errorf("events before a run is adopted should be skipped, got %q", buf.String())
	}
	f.handle(sessionMsg(t, model.Session{JobID: "7", Status: model.StatusRunning}))
	if f.jobID != "7" {
		t.Fatalf("jobID = %q, want 7", f.jobID)
	}
	if f.handle(sessionMsg(t, model.Session{JobID: "7", Status: model.StatusFailed, StreamError: "boom"})) {
		t.Error("failed run should stop following")
	}
}
