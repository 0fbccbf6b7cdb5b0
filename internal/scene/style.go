package scene

import (
	"fmt"
	"math"

	"github.com/alfredjeanlab/tower/internal/model"
)

const (
	// NodeRelSize scales the cube root of a node's volume into a radius.
	NodeRelSize = 2.0
	minNodeVal  = 2.0

	selectedMinRadius = 6.0
	alertedMinRadius  = 7.0
	alertedScale      = 2.4

	nodeOpacity       = 0.9
	emissiveIntensity = 0.9
	emissiveNone      = "#000000"

	maxEdgeWidth  = 3.0
	EdgeColor     = "rgba(180,180,180,0.35)"
	edgeOpacity   = 0.6
	particleCount = 1
	particleWidth = 1.4
	particleSpeed = 0.004
)

// Selection is the interaction state that affects how nodes are drawn.
type Selection struct {
	Selected string `json:"selected,omitempty"`
	Alerted  string `json:"alerted,omitempty"`
	Hovered  string `json:"hovered,omitempty"`
}

// NodeVisual is the drawable form of one account.
type NodeVisual struct {
	ID                string  `json:"id"`
	Radius            float64 `json:"radius"`
	Color             string  `json:"color"`
	Emissive          string  `json:"emissive"`
	EmissiveIntensity float64 `json:"emissive_intensity"`
	Opacity           float64 `json:"opacity"`
	Label             string  `json:"label"`
	Selected          bool    `json:"selected,omitempty"`
	Alerted           bool    `json:"alerted,omitempty"`
	Hovered           bool    `json:"hovered,omitempty"`
}

// EdgeVisual is the drawable form of one transfer.
type EdgeVisual struct {
	Width         float64 `json:"width"`
	Color         string  `json:"color"`
	Opacity       float64 `json:"opacity"`
	Particles     int     `json:"particles"`
	ParticleWidth float64 `json:"particle_width"`
	ParticleSpeed float64 `json:"particle_speed"`
}

// BaseRadius is the unhighlighted sphere radius for a volume.
func BaseRadius(volume float64) float64 {
	return NodeRelSize * math.Cbrt(math.Max(minNodeVal, volume))
}

// NodeVisualFor maps an account and the current selection to its visual.
// It depends on nothing else.
func NodeVisualFor(n *model.Account, sel Selection) NodeVisual {
	base := BaseRadius(n.Volume)
	color := model.ColorFor(n.Anomalous)
	v := NodeVisual{
		ID:       n.ID,
		Radius:   base,
		Color:    color,
		Emissive: emissiveNone,
		Opacity:  nodeOpacity,
		Label:    Label(n),
		Hovered:  sel.Hovered != "" && sel.Hovered == n.ID,
	}
	if sel.Selected != "" && sel.Selected == n.ID {
		v.Selected = true
		v.Radius = math.Max(2*base, selectedMinRadius)
		v.Emissive = color
		v.EmissiveIntensity = emissiveIntensity
	}
	if sel.Alerted != "" && sel.Alerted == n.ID {
		v.Alerted = true
		v.Radius = math.Max(v.Radius, math.Max(alertedScale*base, alertedMinRadius))
	}
	return v
}

// Label is the hover tooltip for an account.
func Label(n *model.Account) string {
	status := "Normal"
	if n.Anomalous {
		status = "Fraud"
	}
	return fmt.Sprintf("Account %s\nAnomaly Score: %.2f\nStatus: %s", n.ID, n.AnomalyScore, status)
}

// EdgeWidth grows logarithmically with the amount moved, capped at 3.
func EdgeWidth(amount float64) float64 {
	return math.Min(maxEdgeWidth, math.Log(math.Max(0, amount)+1))
}

// EdgeVisualFor maps a transfer to its visual.
func EdgeVisualFor(l *model.Transfer) EdgeVisual {
	return EdgeVisual{
		Width:         EdgeWidth(l.Amount),
		Color:         EdgeColor,
		Opacity:       edgeOpacity,
		Particles:     particleCount,
		ParticleWidth: particleWidth,
		ParticleSpeed: particleSpeed,
	}
}

// EngineSettings are the fixed parameters handed to the rendering engine.
type EngineSettings struct {
	EnableNodeDrag  bool    `json:"enable_node_drag"`
	WarmupTicks     int     `json:"warmup_ticks"`
	CooldownTicks   int     `json:"cooldown_ticks"`
	BackgroundColor string  `json:"background_color"`
	NodeRelSize     float64 `json:"node_rel_size"`
	ArrowLength     float64 `json:"arrow_length"`
}

// DefaultEngineSettings disables dragging and settles the layout up front.
var DefaultEngineSettings = EngineSettings{
	EnableNodeDrag:  false,
	WarmupTicks:     WarmupTicks,
	CooldownTicks:   0,
	BackgroundColor: "rgba(0,0,0,0)",
	NodeRelSize:     NodeRelSize,
	ArrowLength:     3.5,
}
