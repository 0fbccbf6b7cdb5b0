// Package stream follows one pipeline run over a push subscription and
// folds its stage events into an ordered log and a status.
package stream

import (
	"context"
	"errors"
)

var (
	// ErrStreamClosed is delivered when the producer ends the stream.
	ErrStreamClosed = errors.New("stream closed by server")

	// ErrIdleTimeout is delivered when no message arrives within the
	// configured idle window.
	ErrIdleTimeout = errors.New("stream idle timeout")
)

// Message is one item received on a subscription. Exactly one of Stage or
// Err is meaningful; an Err is always the last message of a subscription.
type Message struct {
	ID    string
	Stage string
	Data  []byte
	Err   error
}

// Subscription is an open push channel for one job. Messages arrive in
// producer order, with transport failures in the same sequence as events.
// After Close no further messages are delivered. Close must not wait for
// the consumer.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Subscriber opens subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, jobID, nodeID string) (Subscription, error)
}
