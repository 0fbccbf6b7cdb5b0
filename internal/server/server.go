// Package server exposes a running investigation console over HTTP: a JSON
// API for the browser front end and an SSE fan-out of session changes.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/alfredjeanlab/tower/internal/camera"
	"github.com/alfredjeanlab/tower/internal/events"
	"github.com/alfredjeanlab/tower/internal/model"
	"github.com/alfredjeanlab/tower/internal/scene"
)

// SSE topics.
const (
	TopicSessionUpdated = "session.updated"
	TopicStagePrefix    = "stage."
)

// Console is the part of investigation.Controller the server drives.
type Console interface {
	Session() model.Session
	OnChange(fn func(model.Session))
	Submit(ctx context.Context, form model.TransactionForm) (model.Session, error)
	SetTab(tab model.Tab) error
	LoadGraph(ctx context.Context) error
	SetFraudOnly(on bool)
	View() *model.View
	Frame() scene.Frame
	Search(query string) (*model.Account, error)
	Click(id string) (*model.Account, error)
	Hover(id string) (string, bool)
	Zoom(dir int) camera.Pose
}

// ConsoleServer serves one Console.
type ConsoleServer struct {
	console Console
	sseHub  *sseHub
	logger  *slog.Logger

	mu       sync.Mutex
	rev      uint64
	jobID    string
	streamed int
}

// NewConsoleServer returns a server with an empty event hub. Bind must be
// called before serving requests.
func NewConsoleServer(logger *slog.Logger) *ConsoleServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleServer{sseHub: newSSEHub(), logger: logger}
}

// Bind attaches the console and starts mirroring its changes to SSE clients.
func (s *ConsoleServer) Bind(c Console) {
	s.console = c
	c.OnChange(s.sessionChanged)
}

// sessionChanged broadcasts the session and any stage events not yet sent
// for the current job. A session older than the last one broadcast is
// dropped.
func (s *ConsoleServer) sessionChanged(sess model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.Rev < s.rev {
		return
	}
	s.rev = sess.Rev
	if sess.JobID != s.jobID {
		s.jobID = sess.JobID
		s.streamed = 0
	}
	var fresh []model.StageEvent
	if len(sess.Events) > s.streamed {
		fresh = sess.Events[s.streamed:]
		s.streamed = len(sess.Events)
	}
	// Broadcast under s.mu so events keep their order across updates.
	for _, ev := range fresh {
		s.broadcastEvent(TopicStagePrefix+string(ev.Stage), ev)
	}
	s.broadcastEvent(TopicSessionUpdated, sess)
}

// Publisher returns an events.Publisher that mirrors every event to SSE
// clients, with the "tower." prefix removed from the topic, before handing
// it to next.
func (s *ConsoleServer) Publisher(next events.Publisher) events.Publisher {
	if next == nil {
		next = &events.NoopPublisher{}
	}
	return &hubPublisher{server: s, next: next}
}

type hubPublisher struct {
	server *ConsoleServer
	next   events.Publisher
}

func (p *hubPublisher) Publish(ctx context.Context, topic string, event any) error {
	p.server.broadcastEvent(strings.TrimPrefix(topic, "tower."), event)
	return p.next.Publish(ctx, topic, event)
}

func (p *hubPublisher) Close() error { return p.next.Close() }

// broadcastEvent fans an event out to SSE clients.
func (s *ConsoleServer) broadcastEvent(topic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(topic, payload)
}
