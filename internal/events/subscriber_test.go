package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/tower/internal/model"
	"github.com/alfredjeanlab/tower/internal/stream"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	_, url := startTestNATSServer(t)
	return url
}

func startTestNATSServer(t *testing.T) (*natsserver.Server, string) {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv, srv.ClientURL()
}

func newPair(t *testing.T, url string) (*NATSPublisher, *NATSSubscriber) {
	t.Helper()
	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	t.Cleanup(func() { pub.Close() })
	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	t.Cleanup(func() { sub.Close() })
	return pub, sub
}

func TestNATSSubscriber_ReceivesInOrder(t *testing.T) {
	url := startTestNATS(t)
	pub, sub := newPair(t, url)

	ch, cancel, err := sub.Subscribe("pipeline.>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	// More than the channel buffer: delivery must block, not drop.
	const n = 200
	go func() {
		for i := range n {
			b, _ := json.Marshal(i)
			_ = pub.conn.Publish("pipeline.1.eif_result", b)
		}
		pub.conn.Flush()
	}()

	for i := range n {
		select {
		case m := <-ch:
			var got int
			if err := json.Unmarshal(m.Data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got != i {
				t.Fatalf("message %d carried %d", i, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestNATSSubscriber_Cancel(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("pipeline.>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_DoubleCancel(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	_, cancel, err := sub.Subscribe("pipeline.>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	// Calling cancel twice should not panic.
	cancel()
	cancel()
}

func TestNATSSubscriber_CancelDuringMessages(t *testing.T) {
	url := startTestNATS(t)
	pub, sub := newPair(t, url)

	ch, cancel, err := sub.Subscribe("pipeline.>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	// Publish concurrently with cancel with nobody reading; cancel must
	// neither panic nor block on the full buffer.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 500 {
			_ = pub.conn.Publish("pipeline.1.shap_started", []byte(`{}`))
		}
		pub.conn.Flush()
	}()

	cancelled := make(chan struct{})
	go func() {
		cancel()
		close(cancelled)
	}()
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel blocked")
	}
	<-done

	// Buffered messages may remain; the channel must end closed.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("expected channel to be closed after cancel")
		}
	}
}

func TestNATSSubscriber_ReconnectHandler(t *testing.T) {
	url := startTestNATS(t)

	reconnected := make(chan struct{}, 1)
	sub, err := NewNATSSubscriber(url,
		nats.ReconnectHandler(func(_ *nats.Conn) {
			select {
			case reconnected <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	if !sub.conn.IsConnected() {
		t.Fatal("expected subscriber to be connected")
	}
}

func TestStageSubscriber_ImplementsSubscriber(t *testing.T) {
	var _ stream.Subscriber = (*StageSubscriber)(nil)
}

func TestStageSubscriber_FollowsOneJob(t *testing.T) {
	url := startTestNATS(t)
	pub, sub := newPair(t, url)

	ss, err := NewStageSubscriber(sub).Subscribe(context.Background(), "42", "7")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer ss.Close()

	ctx := context.Background()
	// Another job's events must not leak in.
	_ = pub.Publish(ctx, StageSubject("43", model.StageEIFResult), json.RawMessage(`{"node_id":"9"}`))
	n, err := Replay(ctx, pub, "42", stream.Script("42", "7"), 0)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 6 {
		t.Fatalf("Replay published %d, want 6", n)
	}
	if err := pub.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := stream.Script("42", "7")
	for i := range want {
		select {
		case m := <-ss.Messages():
			if m.Err != nil {
				t.Fatalf("message %d: unexpected error %v", i, m.Err)
			}
			if m.Stage != want[i].Stage {
				t.Errorf("message %d stage = %q, want %q", i, m.Stage, want[i].Stage)
			}
			if string(m.Data) != string(want[i].Data) {
				t.Errorf("message %d data = %s, want %s", i, m.Data, want[i].Data)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestStageSubscriber_FeedsAggregator(t *testing.T) {
	url := startTestNATS(t)
	pub, sub := newPair(t, url)

	agg := stream.New(NewStageSubscriber(sub), stream.Options{})
	defer agg.Stop()
	if err := agg.Start(context.Background(), "42", "7"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := Replay(ctx, pub, "42", stream.Script("42", "7"), 0); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	st, err := agg.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if st.Status != model.StatusDone {
		t.Errorf("status = %q, want done", st.Status)
	}
	if len(st.Events) != 6 {
		t.Errorf("events = %d, want 6", len(st.Events))
	}
}

func TestStageSubscriber_ConnectionClosed(t *testing.T) {
	srv, url := startTestNATSServer(t)

	sub, err := NewNATSSubscriber(url, nats.MaxReconnects(0))
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ss, err := NewStageSubscriber(sub).Subscribe(context.Background(), "42", "7")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer ss.Close()

	srv.Shutdown()

	select {
	case m := <-ss.Messages():
		if !errors.Is(m.Err, ErrConnectionClosed) {
			t.Fatalf("got %+v, want ErrConnectionClosed", m)
		}
		var te *model.TransportError
		if !errors.As(m.Err, &te) {
			t.Fatalf("error %T is not a TransportError", m.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for close error")
	}
}

func TestReplay_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := Replay(ctx, &NoopPublisher{}, "1", stream.Script("1", "2"), time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n != 1 {
		t.Errorf("published %d before cancel, want 1", n)
	}
}

func TestStageSubscriber_CloseDeliversReceivedStagesFirst(t *testing.T) {
	for trial := range 10 {
		url := startTestNATS(t)
		pub, sub := newPair(t, url)

		ss, err := NewStageSubscriber(sub).Subscribe(context.Background(), "42", "7")
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		ctx := context.Background()
		run := stream.Script("42", "7")
		if _, err := Replay(ctx, pub, "42", run, 0); err != nil {
			t.Fatalf("Replay: %v", err)
		}
		if err := pub.Flush(ctx); err != nil {
			t.Fatalf("Flush: %v", err)
		}
		sub.Close()

		var got []string
		timeout := time.After(5 * time.Second)
	read:
		for {
			select {
			case m, ok := <-ss.Messages():
				if !ok {
					break read
				}
				if m.Err != nil {
					if !errors.Is(m.Err, ErrConnectionClosed) {
						t.Fatalf("trial %d: error %v, want ErrConnectionClosed", trial, m.Err)
					}
					got = append(got, "ERR")
					continue
				}
				got = append(got, m.Stage)
			case <-timeout:
				t.Fatalf("trial %d: timed out after %v", trial, got)
			}
		}

		if len(got) != len(run)+1 || got[len(got)-1] != "ERR" {
			t.Fatalf("trial %d: got %v, want %d stages then ERR", trial, got, len(run))
		}
		for i, m := range run {
			if got[i] != m.Stage {
				t.Fatalf("trial %d: message %d = %q, want %q", trial, i, got[i], m.Stage)
			}
		}
		ss.Close()
	}
}
