package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/tower/internal/model"
	"github.com/alfredjeanlab/tower/internal/stream"
)

// ErrConnectionClosed is delivered on a stage subscription when the
// underlying NATS connection closes for good.
var ErrConnectionClosed = errors.New("nats connection closed")

// StageSubscriber follows pipeline runs published on NATS. It implements
// stream.Subscriber.
type StageSubscriber struct {
	sub *NATSSubscriber
}

var _ stream.Subscriber = (*StageSubscriber)(nil)

func NewStageSubscriber(sub *NATSSubscriber) *StageSubscriber {
	return &StageSubscriber{sub: sub}
}

// Subscribe listens on every stage subject of jobID. nodeID is carried in
// the payloads and is not part of the subject.
func (s *StageSubscriber) Subscribe(ctx context.Context, jobID, nodeID string) (stream.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, cancel, err := s.sub.Subscribe(JobSubjects(jobID))
	if err != nil {
		return nil, &model.TransportError{Op: "subscribe stages", Err: err}
	}
	ss := &stageSubscription{
		out:    make(chan stream.Message),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go ss.read(raw, s.sub.ConnClosed())
	return ss, nil
}

type stageSubscription struct {
	out    chan stream.Message
	done   chan struct{}
	cancel func()
}

func (ss *stageSubscription) Messages() <-chan stream.Message { return ss.out }

func (ss *stageSubscription) Close() error {
	select {
	case <-ss.done:
	default:
		close(ss.done)
	}
	go ss.cancel()
	return nil
}

func (ss *stageSubscription) read(raw <-chan *nats.Msg, connClosed <-chan struct{}) {
	defer close(ss.out)
	for {
		select {
		case <-ss.done:
			return
		case <-connClosed:
			if ss.flush(raw) {
				ss.send(stream.Message{Err: &model.TransportError{Op: "stage stream", Err: ErrConnectionClosed}})
			}
			return
		case m, ok := <-raw:
			if !ok {
				return
			}
			if !ss.send(stageMessage(m)) {
				return
			}
		}
	}
}

// flush forwards the stages already received so they go out ahead of the
// close error. It reports false if the subscription ended meanwhile.
func (ss *stageSubscription) flush(raw <-chan *nats.Msg) bool {
	for {
		select {
		case m, ok := <-raw:
			if !ok || !ss.send(stageMessage(m)) {
				return false
			}
		default:
			return true
		}
	}
}

func stageMessage(m *nats.Msg) stream.Message {
	msg := stream.Message{Stage: StageFromSubject(m.Subject), Data: m.Data}
	if id := m.Header.Get(nats.MsgIdHdr); id != "" {
		msg.ID = id
	}
	return msg
}

func (ss *stageSubscription) send(m stream.Message) bool {
	select {
	case ss.out <- m:
		return true
	case <-ss.done:
		return false
	}
}

// Replay publishes msgs as the stage events of jobID, waiting every
// between messages. Error messages are skipped.
func Replay(ctx context.Context, pub Publisher, jobID string, msgs []stream.Message, every time.Duration) (int, error) {
	n := 0
	for i, m := range msgs {
		if m.Err != nil {
			continue
		}
		if i > 0 && every > 0 {
			t := time.NewTimer(every)
			select {
			case <-ctx.Done():
				t.Stop()
				return n, ctx.Err()
			case <-t.C:
			}
		}
		if err := pub.Publish(ctx, StageSubject(jobID, model.Stage(m.Stage)), json.RawMessage(m.Data)); err != nil {
			return n, fmt.Errorf("publishing %s: %w", m.Stage, err)
		}
		n++
	}
	return n, nil
}
