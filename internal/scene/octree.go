package scene

import (
	"math"

	"github.com/alfredjeanlab/tower/internal/camera"
)

// theta2 is the squared Barnes-Hut opening criterion: a cell of width w at
// squared distance d2 acts as one body when w*w/theta2 < d2.
const theta2 = 0.81

// maxOctreeDepth stops subdividing cells whose bodies (nearly) coincide.
const maxOctreeDepth = 32

// octree is a Barnes-Hut tree over body positions. Each cell carries the
// number of bodies below it and their center of mass.
type octree struct {
	bodies []body
	cells  []octCell
}

type octCell struct {
	center   camera.Vec3 // geometric center
	half     float64     // half the cell width
	mass     float64
	com      camera.Vec3
	children [8]int32 // indexes into cells, 0 = empty (the root is never a child)
	leaf     []int32  // bodies held directly; only set when the cell has no children
	depth    int
}

func newOctree(bodies []body) *octree {
	t := &octree{bodies: bodies, cells: make([]octCell, 1, 2*len(bodies)+1)}
	lo, hi := bodies[0].pos, bodies[0].pos
	for _, b := range bodies[1:] {
		lo = camera.Vec3{X: math.Min(lo.X, b.pos.X), Y: math.Min(lo.Y, b.pos.Y), Z: math.Min(lo.Z, b.pos.Z)}
		hi = camera.Vec3{X: math.Max(hi.X, b.pos.X), Y: math.Max(hi.Y, b.pos.Y), Z: math.Max(hi.Z, b.pos.Z)}
	}
	span := math.Max(hi.X-lo.X, math.Max(hi.Y-lo.Y, hi.Z-lo.Z))
	t.cells[0] = octCell{center: lo.Add(hi).Scale(0.5), half: math.Max(span/2, 1e-3) * 1.0001}
	for i := range bodies {
		t.insert(0, int32(i))
	}
	t.summarize(0)
	return t
}

func (t *octree) octant(c *octCell, p camera.Vec3) int {
	o := 0
	if p.X >= c.center.X {
		o |= 1
	}
	if p.Y >= c.center.Y {
		o |= 2
	}
	if p.Z >= c.center.Z {
		o |= 4
	}
	return o
}

func (t *octree) child(ci int32, o int) int32 {
	if k := t.cells[ci].children[o]; k != 0 {
		return k
	}
	c := t.cells[ci]
	q := c.half / 2
	off := camera.Vec3{X: -q, Y: -q, Z: -q}
	if o&1 != 0 {
		off.X = q
	}
	if o&2 != 0 {
		off.Y = q
	}
	if o&4 != 0 {
		off.Z = q
	}
	t.cells = append(t.cells, octCell{center: c.center.Add(off), half: q, depth: c.depth + 1})
	k := int32(len(t.cells) - 1)
	t.cells[ci].children[o] = k
	return k
}

func (t *octree) insert(ci, bi int32) {
	for {
		c := &t.cells[ci]
		if c.children == [8]int32{} {
			if len(c.leaf) == 0 || c.depth >= maxOctreeDepth {
				c.leaf = append(c.leaf, bi)
				return
			}
			// Split: push the held bodies one level down.
			held := c.leaf
			c.leaf = nil
			for _, h := range held {
				hc := t.child(ci, t.octant(&t.cells[ci], t.bodies[h].pos))
				t.cells[hc].leaf = append(t.cells[hc].leaf, h)
			}
		}
		ci = t.child(ci, t.octant(&t.cells[ci], t.bodies[bi].pos))
	}
}

func (t *octree) summarize(ci int32) {
	c := &t.cells[ci]
	var mass float64
	var sum camera.Vec3
	for _, bi := range c.leaf {
		mass++
		sum = sum.Add(t.bodies[bi].pos)
	}
	for _, k := range c.children {
		if k == 0 {
			continue
		}
		t.summarize(k)
		kc := &t.cells[k]
		mass += kc.mass
		sum = sum.Add(kc.com.Scale(kc.mass))
	}
	c = &t.cells[ci]
	c.mass = mass
	if mass > 0 {
		c.com = sum.Scale(1 / mass)
	}
}

// force returns the velocity change the bodies in cell ci impart on body
// bi with the given per-body strength.
func (t *octree) force(ci, bi int32, strength float64) camera.Vec3 {
	c := &t.cells[ci]
	if c.mass == 0 {
		return camera.Vec3{}
	}
	p := t.bodies[bi].pos
	if c.children != [8]int32{} {
		delta := c.com.Sub(p)
		d2 := delta.Dot(delta)
		w := 2 * c.half
		if w*w/theta2 < d2 {
			return delta.Scale(strength * c.mass / math.Max(d2, minDistance2))
		}
		var dv camera.Vec3
		for _, k := range c.children {
			if k != 0 {
				dv = dv.Add(t.force(k, bi, strength))
			}
		}
		return dv
	}
	var dv camera.Vec3
	for _, j := range c.leaf {
		if j == bi {
			continue
		}
		delta := t.bodies[j].pos.Sub(p)
		if delta == (camera.Vec3{}) {
			delta = jiggle(int(bi), int(j))
		}
		d2 := math.Max(delta.Dot(delta), minDistance2)
		dv = dv.Add(delta.Scale(strength / d2))
	}
	return dv
}
