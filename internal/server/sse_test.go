package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/tower/internal/model"
)

func TestMatchTopicPattern(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"session.updated", "session.updated", true},
		{"session.updated", "session.created", false},
		{"stage.*", "stage.scoring_started", true},
		{"stage.*", "session.updated", false},
		{"stage.*", "stage", false},
		{"investigation.>", "investigation.started", true},
		{"investigation.>", "investigation.finished", true},
		{"investigation.>", "investigation", false},
		{">", "graph.loaded", true},
		{"*.loaded", "graph.loaded", true},
		{"*.loaded", "graph.reloaded", false},
		{"stage.*.x", "stage.a", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.topic, func(t *testing.T) {
			if got := matchTopicPattern(tt.pattern, tt.topic); got != tt.want {
				t.Errorf("matchTopicPattern(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
			}
		})
	}
}

func TestSSEHub_BroadcastAndSubscribe(t *testing.T) {
	hub := newSSEHub()
	all := hub.subscribe(nil)
	defer hub.unsubscribe(all)
	stages := hub.subscribe([]string{"stage.*"})
	defer hub.unsubscribe(stages)

	hub.broadcast("session.updated", []byte(`{"status":"running"}`))
	hub.broadcast("stage.scoring_started", []byte(`{}`))

	if got := len(all.ch); got != 2 {
		t.Errorf("unfiltered client got %d events, want 2", got)
	}
	if got := len(stages.ch); got != 1 {
		t.Fatalf("stage client got %d events, want 1", got)
	}
	if evt := <-stages.ch; evt.Topic != "stage.scoring_started" || evt.ID != 2 {
		t.Errorf("stage event = %+v", evt)
	}
}

func TestSSEHub_SlowClientDrops(t *testing.T) {
	hub := newSSEHub()
	c := hub.subscribe(nil)
	defer hub.unsubscribe(c)

	for i := range sseClientBuffer + 5 {
		hub.broadcast("stage.x", []byte(fmt.Sprintf(`{"n":%d}`, i)))
	}
	if got := c.dropped.Load(); got != 5 {
		t.Errorf("dropped = %d, want 5", got)
	}
}

func TestSSEHub_EventsSince(t *testing.T) {
	hub := newSSEHub()
	if got := hub.eventsSince(0); got != nil {
		t.Fatalf("empty hub returned %d events", len(got))
	}
	for i := range 5 {
		hub.broadcast("stage.x", []byte(fmt.Sprintf(`{"n":%d}`, i)))
	}
	got := hub.eventsSince(3)
	if len(got) != 2 || got[0].ID != 4 || got[1].ID != 5 {
		t.Fatalf("eventsSince(3) = %+v", got)
	}
}

func TestSSEHub_RingWraps(t *testing.T) {
	hub := newSSEHub()
	total := sseRingBufferSize + 10
	for i := range total {
		hub.broadcast("stage.x", []byte(fmt.Sprintf(`{"n":%d}`, i)))
	}
	got := hub.eventsSince(0)
	if len(got) != sseRingBufferSize {
		t.Fatalf("len = %d, want %d", len(got), sseRingBufferSize)
	}
	if got[0].ID != 11 || got[len(got)-1].ID != uint64(total) {
		t.Errorf("range = %d..%d", got[0].ID, got[len(got)-1].ID)
	}
	for i := 1; i < len(got); i++ {
		if got[i].ID != got[i-1].ID+1 {
			t.Fatalf("ids out of order at %d: %d after %d", i, got[i].ID, got[i-1].ID)
		}
	}
}

// streamClient runs the event stream handler until stop is called and
// returns the recorded body.
type streamClient struct {
	rec    *httptest.ResponseRecorder
	cancel context.CancelFunc
	done   chan struct{}
}

func (env *testEnv) openStream(t *testing.T, path, lastEventID string) *streamClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", path, nil).WithContext(ctx)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	c := &streamClient{rec: httptest.NewRecorder(), cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		env.handler.ServeHTTP(c.rec, req)
	}()
	t.Cleanup(cancel)
	// Give the handler time to register the subscription.
	time.Sleep(50 * time.Millisecond)
	return c
}

func (c *streamClient) stop() string {
	time.Sleep(50 * time.Millisecond)
	c.cancel()
	<-c.done
	return c.rec.Body.String()
}

type wireEvent struct {
	id, event, data string
}

func parseSSE(body string) []wireEvent {
	var out []wireEvent
	var cur wireEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.event != "" {
				out = append(out, cur)
			}
			cur = wireEvent{}
		case strings.HasPrefix(line, "id:"):
			cur.id = strings.TrimPrefix(line, "id:")
		case strings.HasPrefix(line, "event:"):
			cur.event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			cur.data = strings.TrimPrefix(line, "data:")
		}
	}
	return out
}

func TestEventStream_SnapshotThenBroadcast(t *testing.T) {
	env := newTestServer(t)
	c := env.openStream(t, "/v1/events/stream", "")
	env.srv.sseHub.broadcast("graph.loaded", []byte(`{"seq":1}`))
	body := c.stop()

	if ct := c.rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	evts := parseSSE(body)
	if len(evts) != 2 {
		t.Fatalf("got %d events:\n%s", len(evts), body)
	}
	if evts[0].event != TopicSessionUpdated || evts[0].id != "" {
		t.Errorf("first event = %+v, want id-less session snapshot", evts[0])
	}
	var s model.Session
	if err := json.Unmarshal([]byte(evts[0].data), &s); err != nil || s.Status != model.StatusIdle {
		t.Errorf("snapshot = %q (%v)", evts[0].data, err)
	}
	if evts[1].event != "graph.loaded" || evts[1].id == "" || evts[1].data != `{"seq":1}` {
		t.Errorf("second event = %+v", evts[1])
	}
}

func TestEventStream_TopicFilter(t *testing.T) {
	env := newTestServer(t)
	c := env.openStream(t, "/v1/events/stream?topics=stage.*", "")
	env.srv.sseHub.broadcast("session.updated", []byte(`{}`))
	env.srv.sseHub.broadcast("stage.eif_result", []byte(`{"n":1}`))
	body := c.stop()

	evts := parseSSE(body)
	if len(evts) != 1 || evts[0].event != "stage.eif_result" {
		t.Fatalf("events = %+v", evts)
	}
}

func TestEventStream_LastEventIDReplay(t *testing.T) {
	env := newTestServer(t)
	env.srv.sseHub.broadcast("stage.a", []byte(`{"n":1}`))
	env.srv.sseHub.broadcast("stage.b", []byte(`{"n":2}`))
	env.srv.sseHub.broadcast("stage.c", []byte(`{"n":3}`))

	body := env.openStream(t, "/v1/events/stream", "1").stop()
	if strings.Contains(body, `data:{"n":1}`) {
		t.Fatalf("event 1 should be skipped:\n%s", body)
	}
	if !strings.Contains(body, `data:{"n":2}`) || !strings.Contains(body, `data:{"n":3}`) {
		t.Fatalf("events 2 and 3 missing:\n%s", body)
	}
	if strings.Contains(body, "event:"+TopicSessionUpdated) {
		t.Errorf("replaying client should not get a snapshot:\n%s", body)
	}
}

func TestEventStream_StageEventsFollowRun(t *testing.T) {
	env := newTestServer(t)
	c := env.openStream(t, "/v1/events/stream?topics=stage.*,investigation.>", "")

	if rec := env.do(t, "POST", "/v1/transactions", map[string]string{
		"source": "7", "target": "9", "amount": "10",
	}); rec.Code != 202 {
		t.Fatalf("submit = %d", rec.Code)
	}
	if err := env.feed.Send(string(model.StagePopulationLoaded), `{"population_size":3}`); err != nil {
		t.Fatal(err)
	}
	if err := env.feed.Send(string(model.StageScoringStarted), `{}`); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(env.ctrl.Session().Events) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	body := c.stop()

	var topics []string
	for _, e := range parseSSE(body) {
		topics = append(topics, e.event)
	}
	want := []string{
		"investigation.started",
		TopicStagePrefix + string(model.StagePopulationLoaded),
		TopicStagePrefix + string(model.StageScoringStarted),
	}
	if strings.Join(topics, ",") != strings.Join(want, ",") {
		t.Errorf("topics = %v, want %v", topics, want)
	}
}

func TestSessionChanged_DoesNotRepeatStageEvents(t *testing.T) {
	srv := NewConsoleServer(nil)
	c := srv.sseHub.subscribe([]string{"stage.*"})
	defer srv.sseHub.unsubscribe(c)

	ev := func(stage model.Stage) model.StageEvent { return model.StageEvent{Stage: stage} }
	one := model.Session{JobID: "1", Events: []model.StageEvent{ev(model.StagePopulationLoaded)}}
	two := model.Session{JobID: "1", Events: []model.StageEvent{ev(model.StagePopulationLoaded), ev(model.StageScoringStarted)}}

	srv.sessionChanged(one)
	srv.sessionChanged(two)
	srv.sessionChanged(one)
	srv.sessionChanged(two)
	if got := len(c.ch); got != 2 {
		t.Fatalf("stage events = %d, want 2", got)
	}

	srv.sessionChanged(model.Session{JobID: "2", Events: []model.StageEvent{ev(model.StagePopulationLoaded)}})
	if got := len(c.ch); got != 3 {
		t.Errorf("stage events after new job = %d, want 3", got)
	}
}

func TestHubPublisher_Forwards(t *testing.T) {
	srv := NewConsoleServer(nil)
	c := srv.sseHub.subscribe(nil)
	defer srv.sseHub.unsubscribe(c)

	next := &countingPublisher{}
	pub := srv.Publisher(next)
	if err := pub.Publish(context.Background(), "tower.graph.loaded", map[string]int{"seq": 3}); err != nil {
		t.Fatal(err)
	}
	if next.n != 1 {
		t.Errorf("forwarded %d, want 1", next.n)
	}
	evt := <-c.ch
	if evt.Topic != "graph.loaded" || string(evt.Data) != `{"seq":3}` {
		t.Errorf("event = %s %s", evt.Topic, evt.Data)
	}
	if err := pub.Close(); err != nil {
		t.Fatal(err)
	}
	if !next.closed {
		t.Error("Close not forwarded")
	}
}

type countingPublisher struct {
	n      int
	closed bool
}

func (p *countingPublisher) Publish(context.Context, string, any) error {
	p.n++
	return nil
}

func (p *countingPublisher) Close() error {
	p.closed = true
	return nil
}

func TestSessionChanged_DropsStaleRevision(t *testing.T) {
	srv := NewConsoleServer(nil)
	c := srv.sseHub.subscribe([]string{TopicSessionUpdated})
	defer srv.sseHub.unsubscribe(c)

	srv.sessionChanged(model.Session{Rev: 2, Status: model.StatusDone})
	srv.sessionChanged(model.Session{Rev: 1, Status: model.StatusRunning})

	if got := len(c.ch); got != 1 {
		t.Fatalf("session events = %d, want 1", got)
	}
	var s model.Session
	if err := json.Unmarshal((<-c.ch).Data, &s); err != nil {
		t.Fatal(err)
	}
	if s.Status != model.StatusDone {
		t.Errorf("broadcast status = %q, want done", s.Status)
	}
}
