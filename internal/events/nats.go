package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes events to NATS subjects.
// Connect to TOWER_NATS_URL, publish JSON-encoded events to the given topic.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish sends event as JSON. A json.RawMessage is sent unchanged.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return p.conn.Publish(topic, data)
}

// Flush waits until the server has processed everything published so far.
func (p *NATSPublisher) Flush(ctx context.Context) error {
	return p.conn.FlushWithContext(ctx)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber subscribes to events from NATS subjects.
type NATSSubscriber struct {
	conn   *nats.Conn
	closed chan struct{}
}

// NewNATSSubscriber connects to NATS with automatic reconnection support.
// Extra nats.Option values (e.g. disconnect/reconnect handlers) can be appended.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	s := &NATSSubscriber{closed: make(chan struct{})}
	var once sync.Once
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.ClosedHandler(func(*nats.Conn) { once.Do(func() { close(s.closed) }) }),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	s.conn = nc
	return s, nil
}

// ConnClosed is closed once the connection is permanently closed.
func (s *NATSSubscriber) ConnClosed() <-chan struct{} { return s.closed }

// Subscribe returns a channel that receives messages for the given topic
// (supports NATS wildcards like "pipeline.>"). Delivery preserves order and
// applies backpressure rather than dropping. Call the returned cancel
// function to unsubscribe and close the channel.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan *nats.Msg, func(), error) {
	ch := make(chan *nats.Msg, 64)
	done := make(chan struct{})

	var (
		mu       sync.Mutex
		closed   bool
		inflight sync.WaitGroup
		once     sync.Once
	)

	sub, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		mu.Lock()
		if closed {
			mu.Unlock()
			return
		}
		inflight.Add(1)
		mu.Unlock()
		defer inflight.Done()
		select {
		case ch <- msg:
		case <-done:
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// Flush ensures the subscription is registered on the server before
	// returning, so that messages published on other connections are routed.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	cancel := func() {
		once.Do(func() {
			mu.Lock()
			closed = true
			mu.Unlock()
			close(done)
			_ = sub.Unsubscribe()
			inflight.Wait()
			close(ch)
		})
	}

	return ch, cancel, nil
}

// Close drains the connection: messages already received are handed to
// their subscriptions before the connection closes and ConnClosed fires.
// Close does not wait for the drain to finish.
func (s *NATSSubscriber) Close() error {
	if s.conn.IsClosed() || s.conn.IsDraining() {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
	}
	return nil
}
