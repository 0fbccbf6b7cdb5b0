// Package camera positions the viewpoint over the 3D account graph: the
// initial fit once a layout settles, the fly-to on selection and search, and
// stepped zoom.
package camera

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alfredjeanlab/tower/internal/model"
)

const (
	DefaultDistance = 900.0

	SelectScale    = 1.3
	SelectStandoff = 120.0
	SelectDuration = 1500 * time.Millisecond

	SearchScale    = 1.4
	SearchStandoff = 150.0
	SearchDuration = 1200 * time.Millisecond

	ZoomStep    = 120.0
	MinDistance = 150.0
	MaxDistance = 1800.0

	SettleDelay = 700 * time.Millisecond
	FitDuration = 900 * time.Millisecond
	FitPadding  = 80.0

	// FOV is the vertical field of view in degrees.
	FOV = 40.0
)

// DefaultPose looks at the origin from the default distance.
var DefaultPose = Pose{Position: Vec3{Z: DefaultDistance}}

// FocusKind picks the framing used when flying to a node.
type FocusKind int

const (
	FocusSelect FocusKind = iota
	FocusSearch
)

func (k FocusKind) params() (scale, standoff float64, d time.Duration) {
	if k == FocusSearch {
		return SearchScale, SearchStandoff, SearchDuration
	}
	return SelectScale, SelectStandoff, SelectDuration
}

// PositionsFunc reports the resolved node positions of the current layout,
// or false when the layout has not resolved them yet.
type PositionsFunc func() ([]Vec3, bool)

// Controller owns the camera pose. All methods are safe for concurrent use.
type Controller struct {
	clock  Clock
	logger *slog.Logger

	mu       sync.Mutex
	from, to Pose
	start    time.Time
	dur      time.Duration

	fitted   bool
	fitRev   model.Revision
	fitTimer Timer
	onChange func(Pose)
}

// New creates a Controller at DefaultPose. A nil clock means RealClock.
func New(clock Clock, logger *slog.Logger) *Controller {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{clock: clock, logger: logger, from: DefaultPose, to: DefaultPose}
}

// OnChange registers fn to be called with the target pose whenever a move
// starts. fn is called without the controller lock held.
func (c *Controller) OnChange(fn func(Pose)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Pose returns the pose at the current instant, part way through any
// running animation.
func (c *Controller) Pose() Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poseAtLocked(c.clock.Now())
}

// Target returns the pose the camera is moving to.
func (c *Controller) Target() Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.to
}

// Animating reports whether a move is still in progress.
func (c *Controller) Animating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dur > 0 && c.clock.Now().Before(c.start.Add(c.dur))
}

func (c *Controller) poseAtLocked(now time.Time) Pose {
	if c.dur <= 0 {
		return c.to
	}
	t := float64(now.Sub(c.start)) / float64(c.dur)
	if t >= 1 {
		return c.to
	}
	if t <= 0 {
		return c.from
	}
	e := easeInOutCubic(t)
	return Pose{
		Position: c.from.Position.Lerp(c.to.Position, e),
		LookAt:   c.from.LookAt.Lerp(c.to.LookAt, e),
	}
}

// moveLocked starts an animation from the current pose to p and returns the
// change callback to invoke after unlocking.
func (c *Controller) moveLocked(p Pose, d time.Duration) func() {
	now := c.clock.Now()
	c.from = c.poseAtLocked(now)
	c.to = p
	c.start = now
	c.dur = d
	if fn := c.onChange; fn != nil {
		return func() { fn(p) }
	}
	return func() {}
}

// Reset jumps to DefaultPose and forgets which revision was fitted. Any
// pending fit is cancelled.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.fitTimer != nil {
		c.fitTimer.Stop()
		c.fitTimer = nil
	}
	c.fitted = false
	notify := c.moveLocked(DefaultPose, 0)
	c.mu.Unlock()
	notify()
}

// ScheduleFit arranges a fit to the layout of rev once it has had time to
// settle. A revision is fitted at most once; scheduling a newer revision
// cancels a pending fit of an older one. When the timer fires and positions
// are not yet resolved, the fit is skipped. It reports whether a fit was
// scheduled.
func (c *Controller) ScheduleFit(rev model.Revision, positions PositionsFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fitted && c.fitRev == rev {
		return false
	}
	if c.fitTimer != nil {
		c.fitTimer.Stop()
	}
	c.fitted = true
	c.fitRev = rev
	c.fitTimer = c.clock.AfterFunc(SettleDelay, func() { c.runFit(rev, positions) })
	return true
}

func (c *Controller) runFit(rev model.Revision, positions PositionsFunc) {
	c.mu.Lock()
	if !c.fitted || c.fitRev != rev {
		c.mu.Unlock()
		return
	}
	c.fitTimer = nil
	c.mu.Unlock()

	pts, ok := positions()
	if !ok || len(pts) == 0 {
		c.logger.Debug("camera fit skipped: layout unresolved", "seq", rev.Seq)
		return
	}

	c.mu.Lock()
	if c.fitRev != rev {
		c.mu.Unlock()
		return
	}
	notify := c.moveLocked(FitPose(pts), FitDuration)
	c.mu.Unlock()
	notify()
}

// FitPose frames pts with FitPadding, looking down the z axis at their
// centre.
func FitPose(pts []Vec3) Pose {
	if len(pts) == 0 {
		return DefaultPose
	}
	lo, hi := pts[0], pts[0]
	for _, p := range pts[1:] {
		lo = Vec3{math.Min(lo.X, p.X), math.Min(lo.Y, p.Y), math.Min(lo.Z, p.Z)}
		hi = Vec3{math.Max(hi.X, p.X), math.Max(hi.Y, p.Y), math.Max(hi.Z, p.Z)}
	}
	center := lo.Add(hi).Scale(0.5)
	radius := 0.0
	for _, p := range pts {
		radius = math.Max(radius, p.Sub(center).Len())
	}
	radius += FitPadding
	half := FOV / 2 * math.Pi / 180
	dist := math.Max(radius/math.Sin(half), MinDistance)
	return Pose{Position: center.Add(Vec3{Z: dist}), LookAt: center}
}

// FocusPose is the framing of a node at target for the given kind.
func FocusPose(target Vec3, kind FocusKind) Pose {
	scale, standoff, _ := kind.params()
	return Pose{Position: target.Scale(scale).Add(Vec3{Z: standoff}), LookAt: target}
}

// Focus flies to target. When ok is false the node has no resolved
// position and the camera does not move. It reports whether a move started.
func (c *Controller) Focus(target Vec3, ok bool, kind FocusKind) bool {
	if !ok {
		c.logger.Debug("camera focus skipped: node position unresolved")
		return false
	}
	_, _, d := kind.params()
	c.mu.Lock()
	notify := c.moveLocked(FocusPose(target, kind), d)
	c.mu.Unlock()
	notify()
	return true
}

// Zoom moves the camera one step toward (dir > 0) or away from (dir < 0) the
// origin along its current direction. The distance is clamped to
// [MinDistance, MaxDistance] and the move is immediate.
func (c *Controller) Zoom(dir int) Pose {
	c.mu.Lock()
	cur := c.poseAtLocked(c.clock.Now())
	d := cur.Distance()
	step := 0.0
	switch {
	case dir > 0:
		step = -ZoomStep
	case dir < 0:
		step = ZoomStep
	}
	next := clamp(d+step, MinDistance, MaxDistance)
	axis := cur.Position.Unit()
	if d == 0 {
		axis = Vec3{Z: 1}
	}
	p := Pose{Position: axis.Scale(next), LookAt: cur.LookAt}
	notify := c.moveLocked(p, 0)
	c.mu.Unlock()
	notify()
	return p
}

// Close cancels any pending fit.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fitTimer != nil {
		c.fitTimer.Stop()
		c.fitTimer = nil
	}
}
