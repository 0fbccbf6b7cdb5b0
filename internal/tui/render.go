package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alfredjeanlab/tower/internal/camera"
	"github.com/alfredjeanlab/tower/internal/scene"
)

// Scene glyphs.
const (
	glyphNode     = '●'
	glyphSelected = '◉'
	glyphAlerted  = '▲'
	glyphEdge     = '·'
)

const (
	// edgeSamples is how many points are plotted along each edge.
	edgeSamples = 12
	// edgeColor is the terminal stand-in for the translucent link colour.
	edgeColor = "240"
)

type cell struct {
	r     rune
	color string
	depth float64
}

// RenderScene projects a frame onto a w×h character grid. Nearer nodes win
// a shared cell; edges never cover nodes.
func RenderScene(f scene.Frame, w, h int) string {
	if w <= 0 || h <= 0 {
		return ""
	}
	grid := make([][]cell, h)
	for y := range grid {
		grid[y] = make([]cell, w)
	}

	for _, e := range f.Edges {
		if e.Dangling || e.From == nil || e.To == nil {
			continue
		}
		for i := 1; i < edgeSamples; i++ {
			p := e.From.Lerp(*e.To, float64(i)/edgeSamples)
			pt, ok := camera.Project(p, f.Camera, w, h)
			if !ok || grid[pt.Y][pt.X].r != 0 {
				continue
			}
			grid[pt.Y][pt.X] = cell{r: glyphEdge, color: edgeColor}
		}
	}

	for _, n := range f.Nodes {
		if !n.Resolved {
			continue
		}
		pt, ok := camera.Project(n.Position, f.Camera, w, h)
		if !ok {
			continue
		}
		c := &grid[pt.Y][pt.X]
		if c.r != 0 && c.r != glyphEdge && c.depth <= pt.Depth {
			continue
		}
		r := glyphNode
		switch {
		case n.Selected:
			r = glyphSelected
		case n.Alerted:
			r = glyphAlerted
		}
		*c = cell{r: r, color: n.Color, depth: pt.Depth}
	}

	var b strings.Builder
	for y, row := range grid {
		if y > 0 {
			b.WriteByte('\n')
		}
		for _, c := range row {
			if c.r == 0 {
				b.WriteByte(' ')
				continue
			}
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(c.color)).Render(string(c.r)))
		}
	}
	return b.String()
}
