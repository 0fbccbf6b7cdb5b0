package scene

import (
	"math"

	"github.com/alfredjeanlab/tower/internal/camera"
	"github.com/alfredjeanlab/tower/internal/model"
)

// WarmupTicks is how many simulation steps run before a layout is shown.
const WarmupTicks = 120

// Force simulation parameters.
const (
	alphaMin       = 0.001
	velocityDecay  = 0.4
	chargeStrength = -30.0
	linkDistance   = 30.0
	initialRadius  = 10.0
	minDistance2   = 1.0
)

var (
	alphaDecay       = 1 - math.Pow(alphaMin, 1.0/300)
	initialAngleRoll = math.Pi * (3 - math.Sqrt(5))
	initialAngleYaw  = math.Pi * 20 / (9 + math.Sqrt(221))
)

// Layout holds settled node positions for one view revision.
type Layout struct {
	Revision  model.Revision
	Positions map[string]camera.Vec3
	order     []string
}

// Position returns the position of id, if the layout placed it.
func (l *Layout) Position(id string) (camera.Vec3, bool) {
	if l == nil {
		return camera.Vec3{}, false
	}
	p, ok := l.Positions[id]
	return p, ok
}

// Points returns every placed position in view order.
func (l *Layout) Points() []camera.Vec3 {
	if l == nil {
		return nil
	}
	pts := make([]camera.Vec3, 0, len(l.order))
	for _, id := range l.order {
		pts = append(pts, l.Positions[id])
	}
	return pts
}

type body struct {
	pos, vel camera.Vec3
}

type spring struct {
	src, dst int
	strength float64
	bias     float64
}

// ComputeLayout runs a 3D force simulation over v for ticks steps. Nodes
// found in prev start from their previous position; others start on a
// deterministic spiral, so the same input always yields the same layout.
// Links with an endpoint outside v exert no force.
func ComputeLayout(v *model.View, prev *Layout, ticks int) *Layout {
	l := &Layout{Positions: map[string]camera.Vec3{}}
	if v == nil {
		return l
	}
	l.Revision = v.Revision

	index := make(map[string]int, len(v.Nodes))
	bodies := make([]body, len(v.Nodes))
	for i, n := range v.Nodes {
		index[n.ID] = i
		l.order = append(l.order, n.ID)
		if p, ok := prev.Position(n.ID); ok {
			bodies[i].pos = p
			continue
		}
		bodies[i].pos = spiral(i)
	}

	count := make([]int, len(bodies))
	var springs []spring
	for _, lk := range v.Links {
		s, okS := index[lk.Source]
		d, okD := index[lk.Target]
		if !okS || !okD || s == d {
			continue
		}
		count[s]++
		count[d]++
		springs = append(springs, spring{src: s, dst: d})
	}
	for i := range springs {
		cs, cd := float64(count[springs[i].src]), float64(count[springs[i].dst])
		springs[i].strength = 1 / math.Min(cs, cd)
		springs[i].bias = cs / (cs + cd)
	}

	alpha := 1.0
	for range ticks {
		alpha += (0 - alpha) * alphaDecay
		applyLinks(bodies, springs, alpha)
		applyCharge(bodies, alpha)
		for i := range bodies {
			bodies[i].vel = bodies[i].vel.Scale(1 - velocityDecay)
			bodies[i].pos = bodies[i].pos.Add(bodies[i].vel)
		}
		center(bodies)
	}

	for i, b := range bodies {
		if isFinite(b.pos) {
			l.Positions[v.Nodes[i].ID] = b.pos
		}
	}
	return l
}

// spiral places node i on a phyllotaxis sphere around the origin.
func spiral(i int) camera.Vec3 {
	r := initialRadius * math.Cbrt(0.5+float64(i))
	roll := float64(i) * initialAngleRoll
	yaw := float64(i) * initialAngleYaw
	return camera.Vec3{
		X: r * math.Sin(roll) * math.Cos(yaw),
		Y: r * math.Cos(roll),
		Z: r * math.Sin(roll) * math.Sin(yaw),
	}
}

func applyLinks(bodies []body, springs []spring, alpha float64) {
	for _, s := range springs {
		a, b := &bodies[s.src], &bodies[s.dst]
		delta := b.pos.Add(b.vel).Sub(a.pos.Add(a.vel))
		if delta == (camera.Vec3{}) {
			delta = jiggle(s.src, s.dst)
		}
		dist := delta.Len()
		k := (dist - linkDistance) / dist * alpha * s.strength
		delta = delta.Scale(k)
		b.vel = b.vel.Sub(delta.Scale(s.bias))
		a.vel = a.vel.Add(delta.Scale(1 - s.bias))
	}
}

// applyCharge applies the many-body repulsion, approximating distant
// clusters through a Barnes-Hut octree rebuilt every tick.
func applyCharge(bodies []body, alpha float64) {
	if len(bodies) < 2 {
		return
	}
	t := newOctree(bodies)
	strength := chargeStrength * alpha
	for i := range bodies {
		bodies[i].vel = bodies[i].vel.Add(t.force(0, int32(i), strength))
	}
}

// center translates the system so its mean position is the origin.
func center(bodies []body) {
	if len(bodies) == 0 {
		return
	}
	var sum camera.Vec3
	for _, b := range bodies {
		sum = sum.Add(b.pos)
	}
	mean := sum.Scale(1 / float64(len(bodies)))
	for i := range bodies {
		bodies[i].pos = bodies[i].pos.Sub(mean)
	}
}

// jiggle separates coincident bodies by a tiny deterministic offset.
func jiggle(i, j int) camera.Vec3 {
	s := float64((i*31+j*17)%7+1) * 1e-6
	return camera.Vec3{X: s, Y: -s / 2, Z: s / 3}
}

func isFinite(v camera.Vec3) bool {
	for _, f := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
