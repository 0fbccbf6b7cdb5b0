package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/tower/internal/model"
)

// State is a snapshot of the aggregator.
type State struct {
	JobID     string             `json:"job_id,omitempty"`
	NodeID    string             `json:"node_id,omitempty"`
	Status    model.Status       `json:"status"`
	Events    []model.StageEvent `json:"events"`
	Dropped   int                `json:"dropped"`
	LastError string             `json:"last_error,omitempty"`

	// DisconnectedAfterDone records a transport close that arrived after
	// the completion stage. It does not change Status.
	DisconnectedAfterDone bool `json:"disconnected_after_done,omitempty"`
}

func (s State) clone() State {
	s.Events = append([]model.StageEvent(nil), s.Events...)
	return s
}

// Options configures an Aggregator.
type Options struct {
	// IdleTimeout fails a running stream that has been silent this long.
	// Zero disables it.
	IdleTimeout time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

// Aggregator holds at most one subscription at a time and applies its
// messages, in order, to a status machine:
//
//	idle -> running -> done | failed
//
// done is reached only through the completion stage. A transport error
// fails a running stream but never overrides done. Only Start leaves a
// terminal status.
type Aggregator struct {
	sub    Subscriber
	idle   time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	gen      uint64
	active   *run
	onUpdate func(State)
	changed  chan struct{}
}

type run struct {
	gen     uint64
	sub     Subscription
	cancel  context.CancelFunc
	done    chan struct{}
	closing atomic.Bool
}

// stop closes the subscription and waits for its pump to exit.
func (r *run) stop() {
	r.closing.Store(true)
	r.cancel()
	_ = r.sub.Close()
	<-r.done
}

// New creates an idle Aggregator reading from sub.
func New(sub Subscriber, opts Options) *Aggregator {
	a := &Aggregator{
		sub:     sub,
		idle:    opts.IdleTimeout,
		logger:  opts.Logger,
		now:     opts.Now,
		state:   State{Status: model.StatusIdle, Events: []model.StageEvent{}},
		changed: make(chan struct{}),
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// OnUpdate registers fn to receive a copy of the state after every change.
// fn runs without the aggregator lock held.
func (a *Aggregator) OnUpdate(fn func(State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onUpdate = fn
}

// State returns a copy of the current state.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.clone()
}

// Start begins following jobID. Any previous subscription is closed, and
// its pump has exited, before the new one is opened. The log is cleared and
// the status becomes running. If the subscription cannot be opened the
// status becomes failed and the error is returned.
func (a *Aggregator) Start(ctx context.Context, jobID, nodeID string) error {
	a.mu.Lock()
	prev := a.active
	a.active = nil
	a.gen++
	gen := a.gen
	a.state = State{JobID: jobID, NodeID: nodeID, Status: model.StatusRunning, Events: []model.StageEvent{}}
	notify := a.changedLocked()
	a.mu.Unlock()

	if prev != nil {
		prev.stop()
	}
	notify()

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := a.sub.Subscribe(sctx, jobID, nodeID)
	if err != nil {
		cancel()
		a.fail(gen, err)
		return fmt.Errorf("subscribing to job %s: %w", jobID, err)
	}

	r := &run{gen: gen, sub: sub, cancel: cancel, done: make(chan struct{})}
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		cancel()
		_ = sub.Close()
		return nil
	}
	a.active = r
	a.mu.Unlock()

	activeSubscriptions.Inc()
	a.logger.Info("stage stream started", "job", jobID, "node", nodeID)
	go a.pump(sctx, r)
	return nil
}

// Stop closes the active subscription, if any, and waits for it to wind
// down. The state is left as it was.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	prev := a.active
	a.active = nil
	a.gen++
	a.mu.Unlock()
	if prev != nil {
		prev.stop()
	}
}

// Wait blocks until the status is terminal or ctx is done.
func (a *Aggregator) Wait(ctx context.Context) (State, error) {
	for {
		a.mu.Lock()
		st := a.state
		ch := a.changed
		a.mu.Unlock()
		if st.Status.IsTerminal() {
			return a.State(), nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return a.State(), ctx.Err()
		}
	}
}

func (a *Aggregator) pump(ctx context.Context, r *run) {
	defer close(r.done)
	defer activeSubscriptions.Dec()

	var idleC <-chan time.Time
	var idleTimer *time.Timer
	if a.idle > 0 {
		idleTimer = time.NewTimer(a.idle)
		defer idleTimer.Stop()
		idleC = idleTimer.C
	}

	msgs := r.sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case <-idleC:
			a.fail(r.gen, &model.TransportError{Op: "stage stream", Err: ErrIdleTimeout})
			a.closeRun(r)
			return
		case m, ok := <-msgs:
			if !ok {
				if !r.closing.Load() {
					a.fail(r.gen, &model.TransportError{Op: "stage stream", Err: ErrStreamClosed})
				}
				return
			}
			if idleTimer != nil {
				idleTimer.Reset(a.idle)
			}
			if m.Err != nil {
				a.fail(r.gen, m.Err)
				a.closeRun(r)
				return
			}
			if a.apply(r.gen, m) {
				a.drainAfterDone(r, msgs)
				a.closeRun(r)
				return
			}
		}
	}
}

// drainAfterDone consumes whatever the transport had already queued behind
// the completion stage, so a close that raced completion is recorded.
func (a *Aggregator) drainAfterDone(r *run, msgs <-chan Message) {
	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if m.Err != nil {
				a.fail(r.gen, m.Err)
				return
			}
			a.logger.Debug("ignoring stage after completion", "stage", m.Stage)
		default:
			return
		}
	}
}

func (a *Aggregator) closeRun(r *run) {
	r.closing.Store(true)
	if err := r.sub.Close(); err != nil {
		a.logger.Debug("closing subscription", "error", err)
	}
	a.mu.Lock()
	if a.active == r {
		a.active = nil
	}
	a.mu.Unlock()
}

// apply folds one event into the state and reports whether it completed
// the run.
func (a *Aggregator) apply(gen uint64, m Message) bool {
	payload, err := model.DecodeStageEvent(m.Stage, m.Data)

	a.mu.Lock()
	if gen != a.gen || a.state.Status != model.StatusRunning {
		a.mu.Unlock()
		return false
	}
	if err != nil {
		reason := "malformed"
		if errors.Is(err, model.ErrUnknownStage) {
			reason = "unknown_stage"
		}
		a.state.Dropped++
		a.state.LastError = err.Error()
		droppedTotal.WithLabelValues(reason).Inc()
		notify := a.changedLocked()
		a.mu.Unlock()
		a.logger.Warn("dropping stage event", "stage", m.Stage, "reason", reason, "error", err)
		notify()
		return false
	}

	stage := payload.Stage()
	a.state.Events = append(a.state.Events, model.StageEvent{
		Seq:        len(a.state.Events) + 1,
		Stage:      stage,
		Payload:    payload,
		Raw:        append([]byte(nil), m.Data...),
		ReceivedAt: a.now(),
	})
	eventsTotal.WithLabelValues(string(stage)).Inc()
	terminal := stage.IsTerminal()
	jobID, count := a.state.JobID, len(a.state.Events)
	if terminal {
		a.state.Status = model.StatusDone
		terminalTotal.WithLabelValues(string(model.StatusDone)).Inc()
	}
	notify := a.changedLocked()
	a.mu.Unlock()

	if terminal {
		a.logger.Info("pipeline completed", "job", jobID, "events", count)
	}
	notify()
	return terminal
}

// fail applies a transport failure: running becomes failed, done stays done.
func (a *Aggregator) fail(gen uint64, err error) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	switch a.state.Status {
	case model.StatusDone:
		a.state.DisconnectedAfterDone = true
		notify := a.changedLocked()
		a.mu.Unlock()
		a.logger.Info("stage stream closed after completion", "error", err)
		notify()
		return
	case model.StatusRunning:
		a.state.Status = model.StatusFailed
		a.state.LastError = err.Error()
		terminalTotal.WithLabelValues(string(model.StatusFailed)).Inc()
		notify := a.changedLocked()
		a.mu.Unlock()
		a.logger.Warn("stage stream failed", "error", err)
		notify()
		return
	}
	a.mu.Unlock()
}

// changedLocked wakes waiters and returns the OnUpdate call to make once
// the lock is released.
func (a *Aggregator) changedLocked() func() {
	close(a.changed)
	a.changed = make(chan struct{})
	fn := a.onUpdate
	if fn == nil {
		return func() {}
	}
	st := a.state.clone()
	return func() { fn(st) }
}
