// Package graph holds the account graph: it loads snapshots from a Source,
// normalises them, and serves the filtered view that the scene renders.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/tower/internal/model"
)

// ErrSuperseded is returned by a Load whose result was discarded because a
// newer Load started or the Model was closed.
var ErrSuperseded = errors.New("graph load superseded")

// LoadError reports a failed snapshot load. The previous snapshot, if any,
// is still current.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load graph: %v", e.Err) }

func (e *LoadError) Unwrap() error { return e.Err }

// Model owns the current snapshot and the fraud-only flag. It allows one
// in-flight fetch at a time.
type Model struct {
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	snap      *model.Snapshot
	seq       uint64
	fraudOnly bool
	view      *model.View
	loadGen   uint64
	cancel    context.CancelFunc
	closed    bool
}

// New creates an empty Model.
func New(logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{logger: logger, now: time.Now}
}

// Load fetches and normalises a snapshot from src and makes it current.
// Starting a Load abandons any Load still in flight: its context is
// cancelled and its result is dropped with ErrSuperseded even if it
// arrives. On failure the previous snapshot is kept and a *LoadError is
// returned.
func (m *Model) Load(ctx context.Context, src Source) (*model.Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrSuperseded
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.loadGen++
	gen := m.loadGen
	lctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()
	defer cancel()

	start := m.now()
	body, err := src.FetchGraph(lctx)
	var nodes []*model.Account
	var links []*model.Transfer
	if err == nil {
		nodes, links, err = Normalize(body)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.loadGen || m.closed {
		loadsTotal.WithLabelValues("superseded").Inc()
		return nil, ErrSuperseded
	}
	m.cancel = nil
	loadDuration.Observe(m.now().Sub(start).Seconds())
	if err != nil {
		loadsTotal.WithLabelValues("error").Inc()
		m.logger.Warn("graph load failed", "error", err)
		return nil, &LoadError{Err: err}
	}

	m.seq++
	m.snap = &model.Snapshot{Seq: m.seq, Nodes: nodes, Links: links, LoadedAt: m.now()}
	m.view = nil
	loadsTotal.WithLabelValues("ok").Inc()
	snapshotNodes.Set(float64(len(nodes)))
	m.logger.Info("graph loaded", "seq", m.seq, "nodes", len(nodes), "links", len(links))
	return m.snap, nil
}

// Snapshot returns the current snapshot, or nil before the first successful load.
func (m *Model) Snapshot() *model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// SetFraudOnly sets the filter flag. The view is recomputed on next access.
func (m *Model) SetFraudOnly(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fraudOnly = on
}

// FraudOnly reports the filter flag.
func (m *Model) FraudOnly() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fraudOnly
}

// CurrentView returns the filtered view of the current snapshot, or nil when
// no snapshot has been loaded. Views are cached per revision and are never
// partially updated.
func (m *Model) CurrentView() *model.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentViewLocked()
}

func (m *Model) currentViewLocked() *model.View {
	if m.snap == nil {
		return nil
	}
	rev := model.Revision{Seq: m.snap.Seq, FraudOnly: m.fraudOnly}
	if m.view == nil || m.view.Revision != rev {
		m.view = FilterView(m.snap, m.fraudOnly)
	}
	return m.view
}

// FindNode looks up an account by exact id in the current view.
func (m *Model) FindNode(id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.currentViewLocked().Node(id); n != nil {
		return n, nil
	}
	return nil, &model.NotFoundError{Kind: "account", ID: id}
}

// Close abandons any in-flight load. Later loads fail with ErrSuperseded.
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}
