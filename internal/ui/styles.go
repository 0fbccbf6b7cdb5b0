package ui

import (
	"fmt"

	"github.com/alfredjeanlab/tower/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorFraud  = 203 // red, close to model.ColorFraud
	colorNormal = 41  // green, close to model.ColorNormal
	colorWarn   = 214 // amber
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return render(colorCmd, s) }

// RenderFraud returns s in the anomalous-account color.
func RenderFraud(s string) string { return render(colorFraud, s) }

// RenderNormal returns s in the normal-account color.
func RenderNormal(s string) string { return render(colorNormal, s) }

// RenderStatus colors a run status: running amber, done green, failed red.
func RenderStatus(s model.Status) string {
	switch s {
	case model.StatusRunning:
		return render(colorWarn, s.String())
	case model.StatusDone:
		return render(colorNormal, s.String())
	case model.StatusFailed:
		return render(colorFraud, s.String())
	}
	return RenderMuted(s.String())
}

// RenderAccount colors an account id by its anomaly flag.
func RenderAccount(a *model.Account) string {
	if a == nil {
		return ""
	}
	if a.Anomalous {
		return RenderFraud(a.ID)
	}
	return RenderNormal(a.ID)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
