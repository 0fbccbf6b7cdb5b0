package ui

import (
	"strings"
	"testing"

	"github.com/alfredjeanlab/tower/internal/model"
)

func TestRenderStatus(t *testing.T) {
	for _, tc := range []struct {
		status model.Status
		code   string
	}{
		{model.StatusRunning, "214"},
		{model.StatusDone, "41"},
		{model.StatusFailed, "203"},
		{model.StatusIdle, "245"},
	} {
		got := RenderStatus(tc.status)
		if !strings.Contains(got, "38;5;"+tc.code+"m") || !strings.Contains(got, string(tc.status)) {
			t.Errorf("RenderStatus(%q) = %q, want color %s", tc.status, got, tc.code)
		}
	}
}

func TestRenderAccount(t *testing.T) {
	if got := RenderAccount(nil); got != "" {
		t.Errorf("RenderAccount(nil) = %q", got)
	}
	fraud := RenderAccount(&model.Account{ID: "A", Anomalous: true})
	if !strings.Contains(fraud, "38;5;203m") {
		t.Errorf("anomalous account = %q", fraud)
	}
	normal := RenderAccount(&model.Account{ID: "B"})
	if !strings.Contains(normal, "38;5;41m") {
		t.Errorf("normal account = %q", normal)
	}
}

func TestShouldUseColor_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv("CLICOLOR_FORCE", "1")
	if ShouldUseColor() {
		t.Error("NO_COLOR should win over CLICOLOR_FORCE")
	}
}

func TestShouldUseColor_Force(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("CLICOLOR_FORCE", "1")
	if !ShouldUseColor() {
		t.Error("CLICOLOR_FORCE=1 should enable color")
	}
}

func TestShouldUseColor_ClicolorZero(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("CLICOLOR_FORCE", "")
	t.Setenv("CLICOLOR", "0")
	if ShouldUseColor() {
		t.Error("CLICOLOR=0 should disable color")
	}
}

func TestColorWanted(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		tty  bool
		want bool
	}{
		{"tty", nil, true, true},
		{"pipe", nil, false, false},
		{"no color beats force", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, true, false},
		{"force on pipe", map[string]string{"CLICOLOR_FORCE": " 1 "}, false, true},
		{"clicolor off on tty", map[string]string{"CLICOLOR": "0"}, true, false},
		{"force beats clicolor off", map[string]string{"CLICOLOR": "0", "CLICOLOR_FORCE": "1"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(k string) string { return tt.env[k] }
			if got := colorWanted(getenv, tt.tty); got != tt.want {
				t.Errorf("colorWanted = %v, want %v", got, tt.want)
			}
		})
	}
}
