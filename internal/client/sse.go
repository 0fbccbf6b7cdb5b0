package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/alfredjeanlab/tower/internal/model"
	"github.com/alfredjeanlab/tower/internal/stream"
)

// StagesPath is the pipeline's stage stream endpoint.
const StagesPath = "/visual-analytics/api/visual/stream/unsupervised"

// maxEventSize bounds a single SSE line.
const maxEventSize = 1 << 20

// SSESubscriber opens stage streams over Server-Sent Events.
type SSESubscriber struct {
	client *HTTPClient
	path   string
}

// NewSSESubscriber creates a subscriber for the pipeline at baseURL.
func NewSSESubscriber(baseURL, token string) *SSESubscriber {
	c := NewHTTPClient(baseURL, token)
	// Streams stay open for the whole run.
	c.httpClient = &http.Client{}
	return &SSESubscriber{client: c, path: StagesPath}
}

// Subscribe implements stream.Subscriber.
func (s *SSESubscriber) Subscribe(ctx context.Context, jobID, nodeID string) (stream.Subscription, error) {
	q := url.Values{}
	q.Set("transactionId", jobID)
	q.Set("nodeId", nodeID)

	ctx, cancel := context.WithCancel(ctx)
	req, err := s.client.newRequest(ctx, http.MethodGet, s.path+"?"+q.Encode(), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, &model.TransportError{Op: "open stage stream", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, &model.TransportError{
			Op:         "open stage stream",
			StatusCode: resp.StatusCode,
			Err:        &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))},
		}
	}

	sub := &sseSubscription{
		ch:     make(chan stream.Message, 64),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go sub.read(resp.Body)
	return sub, nil
}

type sseSubscription struct {
	ch     chan stream.Message
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

func (s *sseSubscription) Messages() <-chan stream.Message { return s.ch }

// Close stops the reader and aborts the request. It does not wait.
func (s *sseSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
	})
	return nil
}

func (s *sseSubscription) send(m stream.Message) bool {
	select {
	case s.ch <- m:
		return true
	case <-s.done:
		return false
	}
}

// read parses the event stream until it ends. A stream that ends while the
// subscription is open is reported as one final error message.
func (s *sseSubscription) read(body io.ReadCloser) {
	defer close(s.ch)
	defer body.Close()

	err := ParseSSE(body, func(m stream.Message) bool { return s.send(m) })
	select {
	case <-s.done:
		return
	default:
	}
	if err == nil {
		err = stream.ErrStreamClosed
	}
	s.send(stream.Message{Err: &model.TransportError{Op: "stage stream", Err: err}})
}

// errStopped is returned by ParseSSE when emit asks it to stop.
var errStopped = errors.New("sse: stopped")

// ParseSSE reads Server-Sent Events from r and calls emit for each
// dispatched event until r ends or emit returns false. Events without an
// explicit type are named "message". Comment lines are skipped and multiple
// data lines are joined with newlines. It returns nil at a clean end of
// input.
func ParseSSE(r io.Reader, emit func(stream.Message) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var event, id string
	var data []string
	hasData := false
	dispatch := func() bool {
		defer func() { event, data, hasData = "", nil, false }()
		if !hasData {
			return true
		}
		name := event
		if name == "" {
			name = "message"
		}
		return emit(stream.Message{ID: id, Stage: name, Data: []byte(strings.Join(data, "\n"))})
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if !dispatch() {
				return errStopped
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			id = value
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}
