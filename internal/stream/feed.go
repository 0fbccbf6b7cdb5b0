package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Feed is an in-process Subscriber. Messages pushed with Send and Fail go to
// the most recently opened subscription that is still open.
type Feed struct {
	// SubscribeErr, when set, is returned by every Subscribe.
	SubscribeErr error

	mu     sync.Mutex
	subs   []*feedSub
	opened int
	signal chan struct{}
}

type feedSub struct {
	jobID, nodeID string
	ch            chan Message
	done          chan struct{}
	once          sync.Once
}

func (s *feedSub) Messages() <-chan Message { return s.ch }

func (s *feedSub) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *feedSub) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// NewFeed returns a Feed with no subscriptions.
func NewFeed() *Feed {
	return &Feed{signal: make(chan struct{})}
}

// Subscribe implements Subscriber.
func (f *Feed) Subscribe(_ context.Context, jobID, nodeID string) (Subscription, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	s := &feedSub{jobID: jobID, nodeID: nodeID, ch: make(chan Message, 256), done: make(chan struct{})}
	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.opened++
	close(f.signal)
	f.signal = make(chan struct{})
	f.mu.Unlock()
	return s, nil
}

// ErrNoSubscription is returned when there is nobody to deliver to.
var ErrNoSubscription = errors.New("no open subscription")

func (f *Feed) latest() *feedSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.subs) - 1; i >= 0; i-- {
		if !f.subs[i].isClosed() {
			return f.subs[i]
		}
	}
	return nil
}

// Deliver pushes m to the latest open subscription.
func (f *Feed) Deliver(m Message) error {
	s := f.latest()
	if s == nil {
		return ErrNoSubscription
	}
	select {
	case s.ch <- m:
		return nil
	case <-s.done:
		return ErrNoSubscription
	}
}

// Send pushes a stage event. data may be raw JSON bytes or any value that
// marshals to JSON.
func (f *Feed) Send(stage string, data any) error {
	var raw []byte
	switch d := data.(type) {
	case []byte:
		raw = d
	case string:
		raw = []byte(d)
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return err
		}
		raw = b
	}
	return f.Deliver(Message{Stage: stage, Data: raw})
}

// Fail pushes a transport failure.
func (f *Feed) Fail(err error) error {
	return f.Deliver(Message{Err: err})
}

// Opened reports how many subscriptions have ever been opened.
func (f *Feed) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// OpenCount reports how many subscriptions are still open.
func (f *Feed) OpenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if !s.isClosed() {
			n++
		}
	}
	return n
}

// Latest returns the job and node of the latest open subscription.
func (f *Feed) Latest() (jobID, nodeID string, ok bool) {
	s := f.latest()
	if s == nil {
		return "", "", false
	}
	return s.jobID, s.nodeID, true
}

// WaitOpened blocks until at least n subscriptions have been opened.
func (f *Feed) WaitOpened(ctx context.Context, n int) error {
	for {
		f.mu.Lock()
		got, sig := f.opened, f.signal
		f.mu.Unlock()
		if got >= n {
			return nil
		}
		select {
		case <-sig:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Play delivers msgs to the latest subscription, pausing every between
// them. It stops early when ctx is done or nobody is subscribed.
func (f *Feed) Play(ctx context.Context, msgs []Message, every time.Duration) error {
	for i, m := range msgs {
		if i > 0 && every > 0 {
			select {
			case <-time.After(every):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := f.Deliver(m); err != nil {
			return err
		}
	}
	return nil
}
