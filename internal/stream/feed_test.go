package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alfredjeanlab/tower/internal/model"
)

func TestFeed_DeliversToLatestOpen(t *testing.T) {
	f := NewFeed()
	if err := f.Send("shap_started", `{}`); !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("send with no subscription err = %v", err)
	}
	s1, _ := f.Subscribe(context.Background(), "j1", "n")
	s2, _ := f.Subscribe(context.Background(), "j2", "n")
	must(t, f.Send("shap_started", map[string]string{"node_id": "n"}))
	select {
	case m := <-s2.Messages():
		if m.Stage != "shap_started" || string(m.Data) != `{"node_id":"n"}` {
			t.Errorf("message = %+v", m)
		}
	default:
		t.Fatal("latest subscription got nothing")
	}
	_ = s2.Close()
	must(t, f.Fail(errors.New("boom")))
	m := <-s1.Messages()
	if m.Err == nil {
		t.Error("expected error message on earlier open subscription")
	}
	if f.Opened() != 2 || f.OpenCount() != 1 {
		t.Errorf("Opened = %d, OpenCount = %d", f.Opened(), f.OpenCount())
	}
}

func TestFeed_WaitOpenedAndPlay(t *testing.T) {
	f := NewFeed()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() {
		_, _ = f.Subscribe(ctx, "j", "n")
	}()
	must(t, f.WaitOpened(ctx, 1))

	a := New(f, Options{})
	must(t, a.Start(ctx, "job-9", "N1"))
	must(t, f.Play(ctx, Script("job-9", "N1"), time.Millisecond))
	st := waitTerminal(t, a)
	if st.Status != model.StatusDone {
		t.Errorf("status = %s", st.Status)
	}
	last := st.Events[len(st.Events)-1].Payload.(model.UnsupervisedCompleted)
	if last.TransactionID != "job-9" || last.NodeID != "N1" {
		t.Errorf("completion payload = %+v", last)
	}
}

func TestScript_WellFormed(t *testing.T) {
	msgs := Script("j", "n")
	for i, m := range msgs {
		p, err := model.DecodeStageEvent(m.Stage, m.Data)
		if err != nil {
			t.Fatalf("msgs[%d]: %v", i, err)
		}
		if terminal := p.Stage().IsTerminal(); terminal != (i == len(msgs)-1) {
			t.Errorf("msgs[%d] terminal = %v", i, terminal)
		}
	}
}
