// Package investigation owns the console session. It submits transactions,
// follows the resulting pipeline run and drives the graph view and camera.
package investigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/tower/internal/camera"
	"github.com/alfredjeanlab/tower/internal/events"
	"github.com/alfredjeanlab/tower/internal/graph"
	"github.com/alfredjeanlab/tower/internal/idgen"
	"github.com/alfredjeanlab/tower/internal/model"
	"github.com/alfredjeanlab/tower/internal/scene"
	"github.com/alfredjeanlab/tower/internal/stream"
)

// SearchMissMessage is shown when a search matches nothing in the view.
const SearchMissMessage = "Account not found in current view"

// reportTimeout bounds one report export.
const reportTimeout = 30 * time.Second

// Submitter posts transactions to the transaction service.
type Submitter interface {
	SubmitTransaction(ctx context.Context, req *model.TransactionRequest) (*model.TransactionResponse, error)
}

// Reporter receives the session once its run reaches a terminal status.
type Reporter interface {
	Report(ctx context.Context, s model.Session) error
}

// Options wires a Controller to its collaborators. Submitter, Stream and
// Graph are required.
type Options struct {
	Submitter   Submitter
	Stream      stream.Subscriber
	Graph       graph.Source
	Clock       camera.Clock
	Publisher   events.Publisher
	Reporter    Reporter
	IdleTimeout time.Duration
	Logger      *slog.Logger

	// NewJobID mints the local job id used when the transaction service
	// returns none. Defaults to idgen.LocalJobID.
	NewJobID func() (string, error)
}

// Controller is the single owner of a model.Session. Every other component
// receives copies.
type Controller struct {
	submitter Submitter
	source    graph.Source
	publisher events.Publisher
	reporter  Reporter
	newJobID  func() (string, error)
	logger    *slog.Logger

	agg    *stream.Aggregator
	graph  *graph.Model
	view   *scene.GraphView
	camera *camera.Controller

	mu        sync.Mutex
	session   model.Session
	rev       uint64
	submitGen uint64
	reported  string
	listeners []func(model.Session)

	// notifyMu serializes listener calls; delivered is the newest revision
	// handed to them.
	notifyMu  sync.Mutex
	delivered uint64

	reports sync.WaitGroup
}

// New returns a Controller with an idle session on the unsupervised tab.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = camera.RealClock{}
	}
	pub := opts.Publisher
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	newJobID := opts.NewJobID
	if newJobID == nil {
		newJobID = idgen.LocalJobID
	}
	c := &Controller{
		submitter: opts.Submitter,
		newJobID:  newJobID,
		source:    opts.Graph,
		publisher: pub,
		reporter:  opts.Reporter,
		logger:    logger,
		agg: stream.New(opts.Stream, stream.Options{
			IdleTimeout: opts.IdleTimeout,
			Logger:      logger,
			Now:         clock.Now,
		}),
		graph:  graph.New(logger),
		view:   scene.NewGraphView(),
		camera: camera.New(clock, logger),
		session: model.Session{
			Status: model.StatusIdle,
			Events: []model.StageEvent{},
			Tab:    model.TabUnsupervised,
		},
	}
	c.agg.OnUpdate(c.applyStream)
	c.view.OnSelect(func(n *model.Account) { c.selectNode(n, camera.FocusSelect) })
	return c
}

// OnChange registers fn to receive a copy of the session after every
// change. fn runs without the controller lock held. Calls are serialized
// and Session.Rev only increases across them: a copy overtaken by a newer
// one is never delivered.
func (c *Controller) OnChange(fn func(model.Session)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Session returns a copy of the current session.
func (c *Controller) Session() model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// Camera exposes the camera for pose subscriptions.
func (c *Controller) Camera() *camera.Controller { return c.camera }

// changedLocked stamps the session with the next revision, snapshots it
// and returns a function that delivers it to the listeners unless a newer
// revision got there first. Call the result after releasing c.mu.
func (c *Controller) changedLocked() func() {
	c.rev++
	c.session.Rev = c.rev
	s := c.session.Clone()
	fns := slices.Clone(c.listeners)
	return func() {
		c.notifyMu.Lock()
		defer c.notifyMu.Unlock()
		if s.Rev <= c.delivered {
			return
		}
		c.delivered = s.Rev
		for _, fn := range fns {
			fn(s)
		}
	}
}

// failSubmit marks the submission of generation gen failed, unless a newer
// submission replaced it.
func (c *Controller) failSubmit(gen uint64, err error) {
	c.mu.Lock()
	if gen == c.submitGen {
		c.session.Status = model.StatusFailed
		c.session.SubmitError = err.Error()
		c.session.Loading = false
	}
	notify := c.changedLocked()
	c.mu.Unlock()
	notify()
}

// Submit validates form, posts it and starts following the pipeline run.
// A form that fails validation returns a *model.ValidationError and sends
// nothing. A transport failure marks the session failed.
func (c *Controller) Submit(ctx context.Context, form model.TransactionForm) (model.Session, error) {
	req, err := form.Request()
	if err != nil {
		submissionsTotal.WithLabelValues("invalid").Inc()
		c.mu.Lock()
		c.session.SubmitError = err.Error()
		notify := c.changedLocked()
		c.mu.Unlock()
		notify()
		return c.Session(), err
	}

	// The previous run must not write into the fresh session.
	c.agg.Stop()

	c.mu.Lock()
	c.submitGen++
	gen := c.submitGen
	s := &c.session
	s.JobID, s.NodeID, s.LocalJobID = "", "", false
	s.Status = model.StatusIdle
	s.Events = []model.StageEvent{}
	s.Dropped = 0
	s.Result = nil
	s.SubmitError, s.StreamError = "", ""
	s.DisconnectedAfterDone = false
	s.Alerted = ""
	s.Loading = true
	notify := c.changedLocked()
	c.mu.Unlock()
	notify()

	resp, err := c.submitter.SubmitTransaction(ctx, req)
	if err != nil {
		submissionsTotal.WithLabelValues("failed").Inc()
		c.logger.Error("transaction submission failed", "source", req.SourceAccount, "error", err)
		c.failSubmit(gen, err)
		return c.Session(), err
	}

	jobID, local := "", false
	if resp != nil {
		jobID = resp.ID
	}
	if jobID == "" {
		jobID, err = c.newJobID()
		if err != nil {
			err = fmt.Errorf("minting local job id: %w", err)
			c.logger.Error("transaction accepted without id", "error", err)
			c.failSubmit(gen, err)
			return c.Session(), err
		}
		local = true
		submissionsTotal.WithLabelValues("local_id").Inc()
		c.logger.Warn("transaction service returned no id, following with local id", "job", jobID)
	} else {
		submissionsTotal.WithLabelValues("ok").Inc()
	}
	if resp == nil {
		resp = &model.TransactionResponse{}
	}

	c.mu.Lock()
	if gen != c.submitGen {
		c.mu.Unlock()
		return c.Session(), nil
	}
	c.session.JobID = jobID
	c.session.NodeID = req.SourceAccount
	c.session.LocalJobID = local
	c.session.Result = resp.Result()
	c.session.Tab = model.TabUnsupervised
	c.session.Loading = false
	notify = c.changedLocked()
	c.mu.Unlock()
	notify()

	c.publish(ctx, events.TopicInvestigationStarted, events.InvestigationStarted{
		JobID: jobID, NodeID: req.SourceAccount, LocalJobID: local,
	})

	if err := c.agg.Start(ctx, jobID, req.SourceAccount); err != nil {
		c.logger.Error("stage stream failed to open", "job", jobID, "error", err)
		return c.Session(), err
	}
	return c.Session(), nil
}

// applyStream folds an aggregator update into the session. Updates for a
// job other than the current one are ignored.
func (c *Controller) applyStream(st stream.State) {
	c.mu.Lock()
	if st.JobID == "" || st.JobID != c.session.JobID {
		c.mu.Unlock()
		return
	}
	s := &c.session
	s.Status = st.Status
	s.Events = st.Events
	s.Dropped = st.Dropped
	s.StreamError = st.LastError
	s.DisconnectedAfterDone = st.DisconnectedAfterDone
	if st.Status == model.StatusDone {
		s.Alerted = alertedNode(st.Events)
	}
	var report *model.Session
	if st.Status.IsTerminal() && c.reported != st.JobID {
		c.reported = st.JobID
		snap := s.Clone()
		report = &snap
	}
	notify := c.changedLocked()
	c.mu.Unlock()
	notify()

	if report != nil {
		c.finish(*report)
	}
}

// alertedNode returns the account flagged by the completion event, if any.
func alertedNode(evs []model.StageEvent) string {
	for i := len(evs) - 1; i >= 0; i-- {
		if p, ok := evs[i].Payload.(model.UnsupervisedCompleted); ok {
			if p.IsAnomalous {
				return p.NodeID
			}
			return ""
		}
	}
	return ""
}

// finish announces a terminal run and hands it to the reporter.
func (c *Controller) finish(s model.Session) {
	c.publish(context.Background(), events.TopicInvestigationFinished, events.InvestigationFinished{
		JobID:   s.JobID,
		NodeID:  s.NodeID,
		Status:  s.Status,
		Events:  len(s.Events),
		Dropped: s.Dropped,
		Error:   s.StreamError,
	})
	if c.reporter == nil {
		return
	}
	c.reports.Add(1)
	go func() {
		defer c.reports.Done()
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()
		if err := c.reporter.Report(ctx, s); err != nil {
			reportsTotal.WithLabelValues("error").Inc()
			c.logger.Warn("investigation report failed", "job", s.JobID, "error", err)
			return
		}
		reportsTotal.WithLabelValues("ok").Inc()
	}()
}

func (c *Controller) publish(ctx context.Context, topic string, event any) {
	if err := c.publisher.Publish(ctx, topic, event); err != nil {
		c.logger.Warn("publishing event failed", "topic", topic, "error", err)
	}
}

// SetTab switches the investigation panel. It never touches the stream.
func (c *Controller) SetTab(tab model.Tab) error {
	if !tab.IsValid() {
		return &model.ValidationError{Errors: []model.FieldError{{Field: "tab", Message: "is not a known tab"}}}
	}
	c.mu.Lock()
	c.session.Tab = tab
	notify := c.changedLocked()
	c.mu.Unlock()
	notify()
	return nil
}

// LoadGraph fetches a fresh snapshot and binds its view. On failure the
// previous snapshot stays in place and the error is recorded on the
// session. A load abandoned for a newer one returns nil.
func (c *Controller) LoadGraph(ctx context.Context) error {
	snap, err := c.graph.Load(ctx, c.source)
	if errors.Is(err, graph.ErrSuperseded) {
		return nil
	}
	if err != nil {
		c.mu.Lock()
		c.session.GraphError = err.Error()
		notify := c.changedLocked()
		c.mu.Unlock()
		notify()
		return err
	}
	c.camera.Reset()
	stats := c.refreshView(true)
	c.publish(ctx, events.TopicGraphLoaded, events.GraphLoaded{Seq: snap.Seq, Stats: stats})
	return nil
}

// RefreshGraph loads the graph immediately and then every interval until
// ctx is done. A zero interval loads once. Load failures are logged and
// recorded on the session; the loop keeps going.
func (c *Controller) RefreshGraph(ctx context.Context, interval time.Duration) {
	if err := c.LoadGraph(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warn("graph load failed", "error", err)
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.LoadGraph(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("graph refresh failed", "error", err)
			}
		}
	}
}

// refreshView rebinds the current view and schedules the settle fit when
// its revision is new.
func (c *Controller) refreshView(loaded bool) model.GraphStats {
	v := c.graph.CurrentView()
	if c.view.SetView(v) && v != nil {
		c.camera.ScheduleFit(v.Revision, c.view.Positions)
	}
	stats := v.Stats()

	c.mu.Lock()
	c.session.Graph = stats
	if loaded {
		c.session.GraphError = ""
	}
	c.session.FraudOnly = c.graph.FraudOnly()
	notify := c.changedLocked()
	c.mu.Unlock()
	notify()
	return stats
}

// SetFraudOnly toggles the fraud-only filter.
func (c *Controller) SetFraudOnly(on bool) {
	c.graph.SetFraudOnly(on)
	c.refreshView(false)
}

// View returns the current filtered view, or nil before the first load.
func (c *Controller) View() *model.View {
	return c.graph.CurrentView()
}

// Search looks up the trimmed query in the current view. A miss records
// the error and keeps the selection; a hit selects the account and moves
// the camera to it.
func (c *Controller) Search(query string) (*model.Account, error) {
	q := strings.TrimSpace(query)
	n, err := c.graph.FindNode(q)
	if err != nil {
		searchesTotal.WithLabelValues("miss").Inc()
		c.mu.Lock()
		c.session.SearchQuery = q
		c.session.SearchError = SearchMissMessage
		notify := c.changedLocked()
		c.mu.Unlock()
		notify()
		return nil, err
	}
	searchesTotal.WithLabelValues("hit").Inc()
	c.mu.Lock()
	c.session.SearchQuery = q
	c.session.SearchError = ""
	c.mu.Unlock()
	c.selectNode(n, camera.FocusSearch)
	return n, nil
}

// Click selects the node with id as if it had been clicked in the scene.
func (c *Controller) Click(id string) (*model.Account, error) {
	return c.view.Click(id)
}

func (c *Controller) selectNode(n *model.Account, kind camera.FocusKind) {
	c.mu.Lock()
	sel := *n
	c.session.Selected = &sel
	notify := c.changedLocked()
	c.mu.Unlock()
	notify()

	pos, ok := c.view.Position(n.ID)
	if !c.camera.Focus(pos, ok, kind) {
		c.logger.Debug("camera move skipped: position unresolved", "node", n.ID)
	}
}

// Hover marks id as hovered and returns its tooltip.
func (c *Controller) Hover(id string) (string, bool) {
	label, ok := c.view.Hover(id)
	c.mu.Lock()
	c.session.Hovered = c.view.Hovered()
	notify := c.changedLocked()
	c.mu.Unlock()
	notify()
	return label, ok
}

// Zoom moves the camera one step in (dir > 0) or out (dir < 0).
func (c *Controller) Zoom(dir int) camera.Pose {
	return c.camera.Zoom(dir)
}

// Frame returns the drawable scene from the current camera pose.
func (c *Controller) Frame() scene.Frame {
	c.mu.Lock()
	sel := scene.Selection{Alerted: c.session.Alerted, Hovered: c.session.Hovered}
	if c.session.Selected != nil {
		sel.Selected = c.session.Selected.ID
	}
	c.mu.Unlock()
	return c.view.Frame(sel, c.camera.Pose())
}

// Close stops the stream, abandons any graph load, cancels pending camera
// work and waits for outstanding reports.
func (c *Controller) Close() {
	c.agg.Stop()
	c.graph.Close()
	c.camera.Close()
	c.reports.Wait()
}
