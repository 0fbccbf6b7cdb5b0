package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/tower/internal/model"
)

func TestNoopPublisher_Publish(t *testing.T) {
	pub := &NoopPublisher{}
	err := pub.Publish(context.Background(), TopicInvestigationStarted, InvestigationStarted{})
	if err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
}

func TestNoopPublisher_Close(t *testing.T) {
	pub := &NoopPublisher{}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestPublishersImplementPublisher(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestStageSubject(t *testing.T) {
	for _, tc := range []struct {
		job   string
		stage model.Stage
		want  string
	}{
		{"42", model.StageEIFResult, "pipeline.42.eif_result"},
		{"local-abc", model.StageUnsupervisedCompleted, "pipeline.local-abc.unsupervised_completed"},
		{"a.b", model.StageShapStarted, "pipeline.a_b.shap_started"},
		{"x y*>", model.StageShapSkipped, "pipeline.x_y__.shap_skipped"},
		{"", model.StagePopulationLoaded, "pipeline._.population_loaded"},
	} {
		if got := StageSubject(tc.job, tc.stage); got != tc.want {
			t.Errorf("StageSubject(%q, %q) = %q, want %q", tc.job, tc.stage, got, tc.want)
		}
	}
	if got := JobSubjects("a.b"); got != "pipeline.a_b.>" {
		t.Errorf("JobSubjects = %q", got)
	}
	if got := StageFromSubject("pipeline.42.shap_completed"); got != "shap_completed" {
		t.Errorf("StageFromSubject = %q", got)
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicInvestigationFinished, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := InvestigationFinished{JobID: "42", NodeID: "7", Status: model.StatusDone, Events: 6}
	if err := pub.Publish(context.Background(), TopicInvestigationFinished, event); err != nil {
		t.Fatalf("publishing: %v", err)
	}

	select {
	case msg := <-ch:
		var got InvestigationFinished
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshaling: %v", err)
		}
		if got != event {
			t.Errorf("got %+v, want %+v", got, event)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNATSPublisher_RawMessagePassesThrough(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("pipeline.>", ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	raw := json.RawMessage(`{"node_id":"7","anomaly_score":0.5}`)
	if err := pub.Publish(context.Background(), StageSubject("1", model.StageEIFResult), raw); err != nil {
		t.Fatalf("publishing: %v", err)
	}

	select {
	case msg := <-ch:
		if msg.Subject != "pipeline.1.eif_result" {
			t.Errorf("subject = %q", msg.Subject)
		}
		if string(msg.Data) != string(raw) {
			t.Errorf("data = %s, want %s", msg.Data, raw)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close returned unexpected error: %v", err)
	}
	if err := pub.Publish(context.Background(), TopicGraphLoaded, GraphLoaded{}); err == nil {
		t.Fatal("expected error publishing on closed connection")
	}
}
