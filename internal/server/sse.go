package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// sseRingBufferSize is how many recent events are kept for clients
	// reconnecting with Last-Event-ID.
	sseRingBufferSize = 1000

	sseKeepaliveInterval = 15 * time.Second

	// sseClientBuffer is how far a client may fall behind before events
	// are dropped for it.
	sseClientBuffer = 256
)

type sseEvent struct {
	ID    uint64 // 0 for snapshots outside the replay log
	Topic string
	Data  []byte
}

// replayLog is a fixed-size ring of the most recent events in id order.
type replayLog struct {
	mu   sync.RWMutex
	buf  []sseEvent
	head int // oldest entry once the ring is full
}

func (l *replayLog) append(evt sseEvent) {
	if len(l.buf) < sseRingBufferSize {
		l.buf = append(l.buf, evt)
		return
	}
	l.buf[l.head] = evt
	l.head = (l.head + 1) % sseRingBufferSize
}

// since returns logged events with ID > lastID, oldest first.
func (l *replayLog) since(lastID uint64) []*sseEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*sseEvent
	for i := range len(l.buf) {
		evt := l.buf[(l.head+i)%len(l.buf)]
		if evt.ID > lastID {
			out = append(out, &evt)
		}
	}
	return out
}

// topicFilter is a set of NATS-style subject patterns; empty matches all.
type topicFilter []string

func parseTopicFilter(raw string) topicFilter {
	var f topicFilter
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			f = append(f, t)
		}
	}
	return f
}

func (f topicFilter) matches(topic string) bool {
	if len(f) == 0 {
		return true
	}
	for _, p := range f {
		if matchTopicPattern(p, topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic. "*" matches one segment
// and a trailing ">" matches one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	want := strings.Split(pattern, ".")
	got := strings.Split(topic, ".")
	for i, seg := range want {
		switch {
		case seg == ">":
			return i < len(got)
		case i >= len(got):
			return false
		case seg != "*" && seg != got[i]:
			return false
		}
	}
	return len(want) == len(got)
}

type sseClient struct {
	filter  topicFilter
	ch      chan *sseEvent
	dropped atomic.Int64
}

// sseHub fans console events out to stream clients and logs them for
// replay.
type sseHub struct {
	log    replayLog
	nextID uint64 // guarded by log.mu

	mu      sync.RWMutex
	clients map[*sseClient]struct{}
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[*sseClient]struct{})}
}

func (h *sseHub) broadcast(topic string, payload []byte) {
	// Ids are assigned under the log lock so the ring stays ordered.
	h.log.mu.Lock()
	h.nextID++
	evt := &sseEvent{ID: h.nextID, Topic: topic, Data: payload}
	h.log.append(*evt)
	h.log.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.filter.matches(topic) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			c.dropped.Add(1)
			sseDroppedTotal.Inc()
		}
	}
}

func (h *sseHub) subscribe(topics []string) *sseClient {
	c := &sseClient{filter: topicFilter(topics), ch: make(chan *sseEvent, sseClientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	sseClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	sseClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

func (h *sseHub) eventsSince(lastID uint64) []*sseEvent {
	return h.log.since(lastID)
}

// handleEventStream handles GET /v1/events/stream?topics=a,b.*. A client
// resuming with Last-Event-ID gets the logged events after it; a fresh
// client gets the current session first so it can render without a fetch.
func (s *ConsoleServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	client := s.sseHub.subscribe(parseTopicFilter(r.URL.Query().Get("topics")))
	defer s.sseHub.unsubscribe(client)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s.writeBacklog(w, client.filter, r.Header.Get("Last-Event-ID"))
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
		case <-keepalive.C:
			io.WriteString(w, ":keepalive\n\n")
		}
		flusher.Flush()
	}
}

func (s *ConsoleServer) writeBacklog(w io.Writer, filter topicFilter, lastEventID string) {
	if lastEventID != "" {
		lastID, err := strconv.ParseUint(lastEventID, 10, 64)
		if err != nil {
			return
		}
		for _, evt := range s.sseHub.eventsSince(lastID) {
			if filter.matches(evt.Topic) {
				writeSSEEvent(w, evt)
			}
		}
		return
	}
	if s.console == nil || !filter.matches(TopicSessionUpdated) {
		return
	}
	if data, err := json.Marshal(s.console.Session()); err == nil {
		writeSSEEvent(w, &sseEvent{Topic: TopicSessionUpdated, Data: data})
	}
}

func writeSSEEvent(w io.Writer, evt *sseEvent) {
	if evt.ID != 0 {
		fmt.Fprintf(w, "id:%d\n", evt.ID)
	}
	fmt.Fprintf(w, "event:%s\ndata:%s\n\n", evt.Topic, evt.Data)
}
