// Package tui is the terminal front end of the investigation console. It
// drives the same controller as the HTTP server and draws the graph scene
// as projected glyphs.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/alfredjeanlab/tower/internal/camera"
	"github.com/alfredjeanlab/tower/internal/model"
	"github.com/alfredjeanlab/tower/internal/scene"
)

// frameInterval paces redraws so camera animations play smoothly.
const frameInterval = 50 * time.Millisecond

// maxEvents is how many recent stage events the timeline shows.
const maxEvents = 8

// Console is the part of investigation.Controller the terminal drives.
type Console interface {
	Session() model.Session
	OnChange(fn func(model.Session))
	Submit(ctx context.Context, form model.TransactionForm) (model.Session, error)
	SetTab(tab model.Tab) error
	LoadGraph(ctx context.Context) error
	SetFraudOnly(on bool)
	Frame() scene.Frame
	Search(query string) (*model.Account, error)
	Zoom(dir int) camera.Pose
}

type focus int

const (
	focusForm focus = iota
	focusSearch
	focusGraph
)

// Form fields, in tab order.
const (
	fieldSource = iota
	fieldTarget
	fieldAmount
	fieldCount
)

type sessionMsg model.Session

type tickMsg time.Time

// actionMsg reports the outcome of a console call made off the UI loop.
type actionMsg struct {
	op  string
	err error
}

// Model is the bubbletea model for the console.
type Model struct {
	ctx     context.Context
	console Console
	updates chan model.Session

	inputs []textinput.Model
	search textinput.Model
	focus  focus
	field  int

	session model.Session
	lastErr string

	width    int
	height   int
	quitting bool
}

// New returns a console model bound to c. Session changes reach the model
// through a latest-wins mailbox, so a slow terminal never blocks c.
func New(ctx context.Context, c Console) Model {
	m := Model{
		ctx:     ctx,
		console: c,
		updates: make(chan model.Session, 1),
		session: c.Session(),
	}
	for i, p := range []string{"source account", "target account", "amount"} {
		in := textinput.New()
		in.Placeholder = p
		in.CharLimit = 64
		in.Width = 24
		if i == 0 {
			in.Focus()
		}
		m.inputs = append(m.inputs, in)
	}
	m.search = textinput.New()
	m.search.Placeholder = "account id"
	m.search.Prompt = "/ "
	m.search.CharLimit = 64

	updates := m.updates
	c.OnChange(func(s model.Session) {
		select {
		case updates <- s:
			return
		default:
		}
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- s:
		default:
		}
	})
	return m
}

// Init starts the session listener, the redraw ticker and the first graph load.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForSession(), tick(), m.loadGraph())
}

func (m Model) waitForSession() tea.Cmd {
	updates := m.updates
	return func() tea.Msg { return sessionMsg(<-updates) }
}

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) loadGraph() tea.Cmd {
	ctx, c := m.ctx, m.console
	return func() tea.Msg {
		return actionMsg{op: "load graph", err: c.LoadGraph(ctx)}
	}
}

func (m Model) submit() tea.Cmd {
	form := model.TransactionForm{
		Source: m.inputs[fieldSource].Value(),
		Target: m.inputs[fieldTarget].Value(),
		Amount: m.inputs[fieldAmount].Value(),
	}
	ctx, c := m.ctx, m.console
	return func() tea.Msg {
		_, err := c.Submit(ctx, form)
		return actionMsg{op: "submit", err: err}
	}
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case sessionMsg:
		if msg.Rev >= m.session.Rev {
			m.session = model.Session(msg)
		}
		return m, m.waitForSession()

	case tickMsg:
		return m, tick()

	case actionMsg:
		if msg.err != nil {
			m.lastErr = msg.op + ": " + msg.err.Error()
		} else {
			m.lastErr = ""
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		switch m.focus {
		case focusForm:
			return m.updateForm(msg)
		case focusSearch:
			return m.updateSearch(msg)
		default:
			return m.updateGraph(msg)
		}
	}
	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "down":
		return m.focusField((m.field + 1) % fieldCount), nil
	case "shift+tab", "up":
		return m.focusField((m.field + fieldCount - 1) % fieldCount), nil
	case "enter":
		if m.field < fieldAmount {
			return m.focusField(m.field + 1), nil
		}
		return m, m.submit()
	case "esc":
		return m.setFocus(focusGraph), nil
	}
	var cmd tea.Cmd
	m.inputs[m.field], cmd = m.inputs[m.field].Update(msg)
	return m, cmd
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		// A miss is recorded on the session as SearchError.
		_, _ = m.console.Search(m.search.Value())
		return m.setFocus(focusGraph), nil
	case "esc":
		return m.setFocus(focusGraph), nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m Model) updateGraph(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "s":
		return m.setFocus(focusForm), nil
	case "/":
		m.search.SetValue("")
		return m.setFocus(focusSearch), nil
	case "f":
		m.console.SetFraudOnly(!m.session.FraudOnly)
	case "+", "=":
		m.console.Zoom(1)
	case "-":
		m.console.Zoom(-1)
	case "r":
		return m, m.loadGraph()
	case "1", "2", "3":
		if err := m.console.SetTab(model.Tabs[key[0]-'1']); err != nil {
			m.lastErr = err.Error()
		}
	}
	return m, nil
}

func (m Model) focusField(i int) Model {
	m.inputs[m.field].Blur()
	m.field = i
	m.inputs[m.field].Focus()
	return m
}

func (m Model) setFocus(f focus) Model {
	m.focus = f
	for i := range m.inputs {
		m.inputs[i].Blur()
	}
	m.search.Blur()
	switch f {
	case focusForm:
		m.inputs[m.field].Focus()
	case focusSearch:
		m.search.Focus()
	}
	return m
}

// View renders the console.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	w, h := m.width, m.height
	if w == 0 || h == 0 {
		w, h = 100, 32
	}
	leftW := 42
	sceneW := max(w-leftW-4, 10)
	sceneH := max(h-8, 5)

	left := panelStyle.Width(leftW - 2).Render(m.viewInvestigation())
	right := panelStyle.Render(m.viewGraph(sceneW, sceneH))

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("tower · fraud investigation console"),
		m.viewTabs(),
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		m.viewFooter(),
	)
}

func (m Model) viewTabs() string {
	var tabs []string
	for i, t := range model.Tabs {
		label := fmt.Sprintf("%d %s", i+1, t.Label())
		if t == m.session.Tab {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) viewInvestigation() string {
	s := m.session
	var b strings.Builder

	for _, in := range m.inputs {
		b.WriteString(in.View() + "\n")
	}
	if s.Loading {
		b.WriteString(labelStyle.Render("submitting...") + "\n")
	}
	if s.SubmitError != "" {
		b.WriteString(errorStyle.Render(s.SubmitError) + "\n")
	}
	b.WriteString("\n")

	if !s.Tab.Enabled() {
		b.WriteString(labelStyle.Render(s.Tab.Label()+" analysis is not enabled.") + "\n")
		return b.String()
	}

	if r := s.Result; r != nil {
		score := "n/a"
		if r.RiskScore != nil {
			score = fmt.Sprintf("%.2f", *r.RiskScore)
		}
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("risk:"), score)
		for _, reason := range r.Reasons {
			b.WriteString("  " + reason + "\n")
		}
	}

	job := s.JobID
	if s.LocalJobID {
		job += " (local)"
	}
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("job:"), orDash(job))
	fmt.Fprintf(&b, "%s %s", labelStyle.Render("status:"), statusStyle(s.Status).Render(s.Status.String()))
	if s.Dropped > 0 {
		fmt.Fprintf(&b, " %s", labelStyle.Render(fmt.Sprintf("(%d dropped)", s.Dropped)))
	}
	b.WriteString("\n")
	if s.StreamError != "" {
		b.WriteString(errorStyle.Render(s.StreamError) + "\n")
	}
	if s.DisconnectedAfterDone {
		b.WriteString(labelStyle.Render("stream closed after completion") + "\n")
	}

	events := s.Events
	if len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}
	for _, ev := range events {
		fmt.Fprintf(&b, "%2d %-22s %s\n", ev.Seq, ev.Stage, ev.Summary())
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) viewGraph(w, h int) string {
	s := m.session
	var b strings.Builder
	filter := "all accounts"
	if s.FraudOnly {
		filter = "fraud only"
	}
	fmt.Fprintf(&b, "%s %d nodes, %d links, %d anomalous (%s)\n",
		labelStyle.Render("graph:"), s.Graph.Nodes, s.Graph.Links, s.Graph.Anomalous, filter)
	if s.GraphError != "" {
		b.WriteString(errorStyle.Render(s.GraphError) + "\n")
	}

	b.WriteString(RenderScene(m.console.Frame(), w, h))
	b.WriteString("\n")

	if m.focus == focusSearch {
		b.WriteString(m.search.View())
	} else if s.SearchError != "" {
		b.WriteString(errorStyle.Render(s.SearchError))
	} else if sel := s.Selected; sel != nil {
		b.WriteString(strings.ReplaceAll(scene.Label(sel), "\n", " · "))
	}
	return b.String()
}

func (m Model) viewFooter() string {
	var help string
	switch m.focus {
	case focusForm:
		help = "tab next field · enter submit · esc graph · ctrl+c quit"
	case focusSearch:
		help = "enter search · esc cancel"
	default:
		help = "s form · / search · f fraud only · +/- zoom · r reload · 1-3 tabs · q quit"
	}
	if m.lastErr != "" {
		return errorStyle.Render(m.lastErr) + "\n" + helpStyle.Render(help)
	}
	return helpStyle.Render(help)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Run starts the console on the terminal and blocks until the user quits.
func Run(ctx context.Context, c Console) error {
	p := tea.NewProgram(New(ctx, c), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
