// Package tui implements the terminal controller: the only channel
// through which a human answers an agent's blocking question. It owns
// a small in-memory snapshot of active sessions, pending questions,
// and recent chains/artifacts, refreshed on a 2s tick and on every
// event-bus notification.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/advpropsys/tinymem/internal/eventbus"
	"github.com/advpropsys/tinymem/internal/model"
	"github.com/advpropsys/tinymem/internal/rendezvous"
	"github.com/advpropsys/tinymem/internal/store"
)

const tickInterval = 2 * time.Second

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	focusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// panel identifies which of the three lists currently has the cursor.
type panel int

const (
	panelPending panel = iota
	panelChains
	panelArtifacts
)

// snapshot is the controller's authoritative view of server state,
// re-read wholesale on every refresh rather than patched incrementally.
type snapshot struct {
	Sessions  []*model.Session
	Pending   []*model.Question
	Chains    []model.Chain
	Artifacts []*model.Artifact
}

type snapshotMsg snapshot
type tickMsg struct{}
type busMsg eventbus.Notification
type errMsg error

// Model is the bubbletea Elm-architecture model for the controller.
type Model struct {
	store      *store.Store
	rendezvous *rendezvous.Rendezvous
	bus        *eventbus.Bus
	now        func() int64

	snap    snapshot
	focus   panel
	cursor  int
	editing bool
	input   textarea.Model

	width, height int
	quitting      bool
	err           error

	onQuit func()
}

// New builds the controller's initial model. onQuit, if non-nil, is
// invoked when the user presses 'q' (or ctrl+c), just before the
// controller asks the bubbletea program to quit, letting the caller
// begin the rest of orderly shutdown.
func New(s *store.Store, r *rendezvous.Rendezvous, bus *eventbus.Bus, now func() int64, onQuit func()) Model {
	ta := textarea.New()
	ta.Placeholder = "type an answer, Enter to submit, Esc to cancel"
	ta.ShowLineNumbers = false
	ta.SetHeight(1)

	return Model{
		store:      s,
		rendezvous: r,
		bus:        bus,
		now:        now,
		input:      ta,
		onQuit:     onQuit,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(fetchSnapshot(m.store), tick(), waitForBus(m.bus))
}

func fetchSnapshot(s *store.Store) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		all, err := s.ListSessions(ctx)
		if err != nil {
			return errMsg(err)
		}
		sessions := make([]*model.Session, 0, len(all))
		for _, sess := range all {
			if sess.Status == model.SessionActive {
				sessions = append(sessions, sess)
			}
		}
		pending, err := s.GlobalPendingQuestions(ctx)
		if err != nil {
			return errMsg(err)
		}
		chains, err := s.ChainList(ctx)
		if err != nil {
			return errMsg(err)
		}
		artifacts, err := s.ListArtifacts(ctx)
		if err != nil {
			return errMsg(err)
		}
		return snapshotMsg(snapshot{Sessions: sessions, Pending: pending, Chains: chains, Artifacts: artifacts})
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func waitForBus(bus *eventbus.Bus) tea.Cmd {
	return func() tea.Msg {
		n := <-bus.Events()
		return busMsg(n)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.SetWidth(msg.Width - 4)
		return m, nil

	case snapshotMsg:
		m.snap = snapshot(msg)
		m.clampCursor()
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetchSnapshot(m.store), tick())

	case busMsg:
		return m, tea.Batch(fetchSnapshot(m.store), waitForBus(m.bus))

	case errMsg:
		m.err = msg
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editing {
		return m.handleEditingKey(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		if m.onQuit != nil {
			m.onQuit()
		}
		return m, tea.Quit

	case "tab":
		m.focus = (m.focus + 1) % 3
		m.cursor = 0
		return m, nil

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < m.panelLen()-1 {
			m.cursor++
		}
		return m, nil

	case "r":
		return m, fetchSnapshot(m.store)

	case "y", "n":
		return m.deliverLiteral(msg.String())

	case "e", "enter":
		if m.focus == panelPending && m.cursor < len(m.snap.Pending) {
			m.editing = true
			m.input.Reset()
			m.input.Focus()
			return m, textarea.Blink
		}
		return m, nil

	case "d":
		return m.deleteSelected()
	}
	return m, nil
}

func (m Model) handleEditingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		answer := strings.TrimSpace(m.input.Value())
		m.editing = false
		m.input.Blur()
		if answer == "" || m.cursor >= len(m.snap.Pending) {
			return m, nil
		}
		qid := m.snap.Pending[m.cursor].ID
		return m, m.deliverCmd(qid, answer)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) deliverLiteral(answer string) (tea.Model, tea.Cmd) {
	if m.focus != panelPending || m.cursor >= len(m.snap.Pending) {
		return m, nil
	}
	qid := m.snap.Pending[m.cursor].ID
	return m, m.deliverCmd(qid, answer)
}

func (m Model) deliverCmd(qid, answer string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := m.rendezvous.Deliver(ctx, qid, answer, m.now()); err != nil {
			return errMsg(err)
		}
		return tickMsg{}
	}
}

func (m Model) deleteSelected() (tea.Model, tea.Cmd) {
	switch m.focus {
	case panelChains:
		if m.cursor >= len(m.snap.Chains) {
			return m, nil
		}
		name := m.snap.Chains[m.cursor].Name
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.store.DeleteChain(ctx, name); err != nil {
				return errMsg(err)
			}
			return tickMsg{}
		}
	case panelArtifacts:
		if m.cursor >= len(m.snap.Artifacts) {
			return m, nil
		}
		id := m.snap.Artifacts[m.cursor].ID
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.store.DeleteArtifact(ctx, id); err != nil {
				return errMsg(err)
			}
			return tickMsg{}
		}
	}
	return m, nil
}

func (m Model) panelLen() int {
	switch m.focus {
	case panelPending:
		return len(m.snap.Pending)
	case panelChains:
		return len(m.snap.Chains)
	case panelArtifacts:
		return len(m.snap.Artifacts)
	}
	return 0
}

func (m *Model) clampCursor() {
	n := m.panelLen()
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) View() string {
	if m.quitting {
		return "tinymem: shutting down\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("tinymem"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  sessions: %d  pending: %d  chains: %d  artifacts: %d\n\n",
		len(m.snap.Sessions), len(m.snap.Pending), len(m.snap.Chains), len(m.snap.Artifacts))))

	b.WriteString(m.renderPanel("Pending questions", panelPending, m.pendingLines()))
	b.WriteString(m.renderPanel("Chains", panelChains, m.chainLines()))
	b.WriteString(m.renderPanel("Artifacts", panelArtifacts, m.artifactLines()))

	if m.editing {
		b.WriteString("\n")
		b.WriteString(inputStyle.Render(m.input.View()))
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errStyle.Render(m.err.Error()))
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("tab: switch panel  ↑/↓: move  y/n: quick answer  e/enter: free-form answer  d: delete  r: refresh  q: quit"))
	return b.String()
}

func (m Model) renderPanel(title string, p panel, lines []string) string {
	var b strings.Builder
	if m.focus == p {
		b.WriteString(focusStyle.Render("▸ " + title))
	} else {
		b.WriteString(dimStyle.Render("  " + title))
	}
	b.WriteString("\n")
	if len(lines) == 0 {
		b.WriteString(dimStyle.Render("    (none)\n"))
		return b.String()
	}
	for i, line := range lines {
		prefix := "    "
		if m.focus == p && i == m.cursor {
			prefix = "  > "
		}
		b.WriteString(prefix + line + "\n")
	}
	return b.String()
}

func (m Model) pendingLines() []string {
	out := make([]string, 0, len(m.snap.Pending))
	for _, q := range m.snap.Pending {
		out = append(out, fmt.Sprintf("[%s] %s", q.SessionID[:minInt(8, len(q.SessionID))], q.Question))
	}
	return out
}

func (m Model) chainLines() []string {
	out := make([]string, 0, len(m.snap.Chains))
	for _, c := range m.snap.Chains {
		out = append(out, fmt.Sprintf("%s (%d links)", c.Name, c.LinkCount))
	}
	return out
}

func (m Model) artifactLines() []string {
	out := make([]string, 0, len(m.snap.Artifacts))
	for _, a := range m.snap.Artifacts {
		out = append(out, fmt.Sprintf("%s %s", a.ID, a.Title))
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
