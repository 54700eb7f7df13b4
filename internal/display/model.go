// Package display renders the read-aloud popup in the terminal using
// Bubble Tea: the document preview with the current sentence highlighted,
// a progress bar, and key bindings that send playback commands to the host.
// The model never changes playback state itself; it only reflects the
// snapshots the host broadcasts.
package display

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/protocol"
)

// ── Styles ───────────────────────────────────────────────────────

var (
	barBg = lipgloss.NewStyle().
		Background(lipgloss.Color("#27272a")).
		Foreground(lipgloss.Color("#a1a1aa"))

	playingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0")).
			Bold(true)

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fde68a"))

	stoppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a"))

	// Current sentence: soft sky blue on a dark band.
	currentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0c4a6e")).
			Background(lipgloss.Color("#bae6fd"))

	primaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4d4d8"))

	secondaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a"))

	urgentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fca5a5"))

	sepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#52525b"))
)

// rateStep is how much one faster/slower key press changes the rate.
const rateStep = 0.1

// Sender delivers a command to the playback host.
type Sender interface {
	Send(cmd protocol.Command) error
}

// Option configures the Model.
type Option func(*Model)

// WithTitle sets the header title (page title or URL).
func WithTitle(title string) Option {
	return func(m *Model) { m.title = title }
}

// WithLanguage shows the detected document language.
func WithLanguage(lang string) Option {
	return func(m *Model) { m.lang = lang }
}

// WithSettings seeds the rate shown and adjusted by the faster/slower keys.
func WithSettings(s domain.Settings) Option {
	return func(m *Model) { m.settings = s }
}

// WithDocument hands the model the full text behind sentences. The host
// is sent INIT with it when it does not already hold this document:
// straight away when autoplay is set, otherwise on the first play key.
func WithDocument(text string, start int, autoplay bool) Option {
	return func(m *Model) {
		m.text = text
		m.start = start
		m.autoplay = autoplay
	}
}

// LanguageFunc asks the host for the document language. It runs off the
// UI goroutine.
type LanguageFunc func() (string, error)

// WithLanguageDetector detects the language in the background once the
// popup is shown.
func WithLanguageDetector(f LanguageFunc) Option {
	return func(m *Model) { m.detect = f }
}

// WithMessage replaces the preview with a fixed message, for pages that
// cannot be read.
func WithMessage(msg string) Option {
	return func(m *Model) { m.message = msg }
}

// Model is the Bubble Tea model of the popup.
type Model struct {
	sentences []string
	send      Sender
	updates   <-chan domain.Snapshot

	text     string
	start    int
	autoplay bool
	synced   bool // host holds this document
	checked  bool // first snapshot seen
	detect   LanguageFunc

	cursor    int
	selecting bool

	snap     domain.Snapshot
	settings domain.Settings
	title    string
	lang     string
	message  string
	err      string
	offline  bool

	keys     keyMap
	help     help.Model
	progress progress.Model
	width    int
	height   int
}

// New creates the popup model for the given sentences. Snapshots arriving
// on updates drive the highlight; commands go out through send.
func New(sentences []string, send Sender, updates <-chan domain.Snapshot, opts ...Option) Model {
	m := Model{
		sentences: sentences,
		send:      send,
		updates:   updates,
		settings:  domain.DefaultSettings(),
		keys:      defaultKeys(),
		help:      help.New(),
		progress:  progress.New(progress.WithSolidFill("#bae6fd"), progress.WithoutPercentage()),
		width:     80,
		height:    24,
		snap:      domain.Snapshot{TotalSentences: len(sentences)},
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.cursor = clampIndex(m.start, len(sentences))
	return m
}

// Run shows the popup until the user closes it or ctx ends.
func Run(ctx context.Context, m Model) error {
	_, err := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen()).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// ── Messages ─────────────────────────────────────────────────────

// SnapshotMsg carries a broadcast playback state.
type SnapshotMsg domain.Snapshot

// disconnectedMsg is sent when the update stream ends.
type disconnectedMsg struct{}

// languageMsg carries the result of language detection.
type languageMsg struct {
	lang string
	err  error
}

func detectLanguage(f LanguageFunc) tea.Cmd {
	if f == nil {
		return nil
	}
	return func() tea.Msg {
		lang, err := f()
		return languageMsg{lang: lang, err: err}
	}
}

func waitForSnapshot(ch <-chan domain.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return SnapshotMsg(s)
	}
}

// ── Update ───────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(m.updates),
		detectLanguage(m.detect),
		tea.SetWindowTitle("Read Aloud"),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.progress.Width = max(10, msg.Width-4)
		return m, nil

	case SnapshotMsg:
		m.snap = domain.Snapshot(msg)
		m.err = ""
		m.synced = m.holdsDocument(m.snap)
		if !m.selecting {
			m.cursor = clampIndex(m.snap.CurrentIndex, len(m.sentences))
		}
		if !m.checked {
			m.checked = true
			// A reopened popup keeps whatever the host is already reading.
			if !m.synced && m.autoplay && m.text != "" && len(m.sentences) > 0 {
				m.sendCmd(m.initAt(m.start))
			}
		}
		return m, waitForSnapshot(m.updates)

	case languageMsg:
		if msg.err == nil && msg.lang != "" {
			m.lang = msg.lang
		}
		return m, nil

	case disconnectedMsg:
		m.offline = true
		m.snap.IsPlaying, m.snap.IsPaused = false, false
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	if m.message != "" || len(m.sentences) == 0 {
		return m, nil
	}

	var cmd protocol.Command
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(+1)
		return m, nil
	case key.Matches(msg, m.keys.Select):
		m.selecting = false
		cmd = m.play(protocol.Jump{Index: m.cursor}, m.cursor)
	case key.Matches(msg, m.keys.Toggle):
		cmd = m.play(protocol.TogglePlay{}, m.start)
	case key.Matches(msg, m.keys.Pause):
		cmd = m.play(protocol.Pause{}, m.start)
	case key.Matches(msg, m.keys.Stop):
		cmd = protocol.Stop{}
	case key.Matches(msg, m.keys.Next):
		cmd = protocol.Next{}
	case key.Matches(msg, m.keys.Prev):
		cmd = protocol.Prev{}
	case key.Matches(msg, m.keys.Restart):
		cmd = m.play(protocol.Jump{Index: 0}, 0)
	case key.Matches(msg, m.keys.Faster):
		cmd = m.adjustRate(rateStep)
	case key.Matches(msg, m.keys.Slower):
		cmd = m.adjustRate(-rateStep)
	case key.Matches(msg, m.keys.Test):
		cmd = protocol.Test{}
	}
	if cmd == nil {
		return m, nil
	}

	m.sendCmd(cmd)
	return m, nil
}

func (m *Model) sendCmd(cmd protocol.Command) {
	if err := m.send.Send(cmd); err != nil {
		m.err = err.Error()
	}
}

// play returns cmd when the host already holds this document, otherwise
// an INIT that loads it and starts at index.
func (m *Model) play(cmd protocol.Command, index int) protocol.Command {
	if m.synced || m.text == "" {
		return cmd
	}
	return m.initAt(index)
}

func (m *Model) initAt(index int) protocol.Command {
	m.synced = true
	return protocol.Init{Text: m.text, Index: index}
}

// holdsDocument reports whether a host snapshot describes this document.
// Only the sentence count is compared; the host does not send its text.
func (m Model) holdsDocument(s domain.Snapshot) bool {
	return len(m.sentences) > 0 && s.TotalSentences == len(m.sentences)
}

func (m *Model) moveCursor(delta int) {
	m.selecting = true
	m.cursor = clampIndex(m.cursor+delta, len(m.sentences))
}

func (m *Model) adjustRate(delta float64) protocol.Command {
	r := math.Round((m.settings.Rate+delta)*10) / 10
	m.settings = m.settings.Merge(domain.SettingsPatch{Rate: &r})
	rate := m.settings.Rate
	return protocol.UpdateSettings{Settings: domain.SettingsPatch{Rate: &rate}}
}

// ── View ─────────────────────────────────────────────────────────

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderBar())
	b.WriteString("\n\n")

	switch {
	case m.message != "":
		b.WriteString(secondaryStyle.Render("  " + m.message))
		b.WriteByte('\n')
	case len(m.sentences) == 0:
		b.WriteString(secondaryStyle.Render("  No readable text found on this page."))
		b.WriteByte('\n')
	default:
		b.WriteString(m.renderSentences())
		b.WriteByte('\n')
		b.WriteString("  " + m.progress.ViewAs(m.fraction()))
		b.WriteByte('\n')
	}

	if m.err != "" {
		b.WriteString(urgentStyle.Render("  " + m.err))
		b.WriteByte('\n')
	}
	if m.offline {
		b.WriteString(urgentStyle.Render("  Disconnected from the playback host."))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString("  " + m.help.View(m.keys))
	return b.String()
}

func (m Model) renderBar() string {
	var status string
	switch m.snap.Status() {
	case "playing":
		status = playingStyle.Render("▶ playing")
	case "paused":
		status = pausedStyle.Render("⏸ paused")
	default:
		status = stoppedStyle.Render("■ " + m.snap.Status())
	}

	parts := []string{status}
	if n := len(m.sentences); n > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d", min(m.snap.CurrentIndex+1, n), n))
	}
	parts = append(parts, fmt.Sprintf("%.1fx", m.settings.Rate))
	if m.lang != "" {
		parts = append(parts, m.lang)
	}
	if m.title != "" {
		parts = append(parts, truncate(m.title, 40))
	}

	content := " " + strings.Join(parts, sepStyle.Render("  │  ")) + " "
	return barBg.Width(max(m.width, 20)).Render(content)
}

// renderSentences shows a window of sentences around the current one.
func (m Model) renderSentences() string {
	before, after := m.window()
	cur := min(m.snap.CurrentIndex, len(m.sentences)-1)
	if m.selecting {
		cur = m.cursor
	}
	from := max(0, cur-before)
	to := min(len(m.sentences), cur+after+1)

	wrap := lipgloss.NewStyle().Width(max(m.width-4, 16))
	var lines []string
	for i := from; i < to; i++ {
		text := wrap.Render(m.sentences[i])
		switch {
		case i == m.snap.CurrentIndex && (m.snap.IsPlaying || m.snap.IsPaused):
			text = currentStyle.Render(text)
		case i < m.snap.CurrentIndex:
			text = secondaryStyle.Render(text)
		default:
			text = primaryStyle.Render(text)
		}
		line := indent(text, "  ")
		if m.selecting && i == m.cursor {
			line = "› " + strings.TrimPrefix(line, "  ")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// window splits the free rows between context before and after the
// current sentence, favoring what comes next.
func (m Model) window() (before, after int) {
	rows := max(m.height-8, 3)
	before = rows / 4
	return before, rows - before - 1
}

func (m Model) fraction() float64 {
	n := len(m.sentences)
	if n == 0 {
		return 0
	}
	done := m.snap.CurrentIndex
	if !m.snap.IsPlaying && !m.snap.IsPaused && done == 0 {
		return 0
	}
	return float64(done) / float64(n)
}

// ── Helpers ──────────────────────────────────────────────────────

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func clampIndex(i, n int) int {
	return max(0, min(i, n-1))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
