package camera

import "math"

// cellAspect is the height of a terminal cell relative to its width.
const cellAspect = 2.0

// Point is a projected screen position.
type Point struct {
	X, Y  int
	Depth float64
}

// Project maps p to a w×h character grid as seen from pose. It returns
// false for points behind the camera or off screen.
func Project(p Vec3, pose Pose, w, h int) (Point, bool) {
	if w <= 0 || h <= 0 {
		return Point{}, false
	}
	forward := pose.LookAt.Sub(pose.Position).Unit()
	if forward == (Vec3{}) {
		forward = Vec3{Z: -1}
	}
	right := forward.Cross(Vec3{Y: 1}).Unit()
	if right == (Vec3{}) {
		right = Vec3{X: 1}
	}
	up := right.Cross(forward)

	rel := p.Sub(pose.Position)
	z := rel.Dot(forward)
	if z <= 0 {
		return Point{}, false
	}
	f := 1 / math.Tan(FOV/2*math.Pi/180)
	halfH := float64(h) / 2
	sx := float64(w)/2 + rel.Dot(right)/z*f*halfH*cellAspect
	sy := halfH - rel.Dot(up)/z*f*halfH
	x, y := int(math.Round(sx)), int(math.Round(sy))
	if x < 0 || x >= w || y < 0 || y >= h {
		return Point{}, false
	}
	return Point{X: x, Y: y, Depth: z}, true
}
