package events

import "context"

// NoopPublisher discards console events. It stands in when TOWER_NATS_URL
// is unset, leaving the SSE hub as the only consumer of investigation and
// graph events.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (*NoopPublisher) Close() error { return nil }
