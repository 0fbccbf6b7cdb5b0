package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/alfredjeanlab/tower/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("74"))

	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("245"))
	activeTabStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).
			Foreground(lipgloss.Color("230")).Background(lipgloss.Color("24"))

	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(model.ColorFraud))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func statusStyle(s model.Status) lipgloss.Style {
	st := lipgloss.NewStyle().Bold(true)
	switch s {
	case model.StatusRunning:
		return st.Foreground(lipgloss.Color("214"))
	case model.StatusDone:
		return st.Foreground(lipgloss.Color(model.ColorNormal))
	case model.StatusFailed:
		return st.Foreground(lipgloss.Color(model.ColorFraud))
	}
	return st.Foreground(lipgloss.Color("245"))
}
