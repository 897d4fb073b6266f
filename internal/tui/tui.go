// Package tui provides a Bubble Tea terminal user interface for museum-dl.
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/skyarchive/museum-dl/internal/config"
	"github.com/skyarchive/museum-dl/internal/fetch"
	"github.com/skyarchive/museum-dl/internal/harvest"
	"github.com/skyarchive/museum-dl/internal/provider"
	"github.com/skyarchive/museum-dl/internal/store"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)

	providerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500"))
)

// State represents the current UI state.
type State int

const (
	StateInput State = iota
	StateHarvesting
	StateComplete
	StateError
)

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   harvest.Level
}

// runner executes the harvest across providers and exposes its progress to
// the polling UI.
type runner struct {
	settings  *config.Settings
	providers []string

	totalSteps int64 // provider x term combinations
	doneSteps  int64

	mu     sync.Mutex
	logs   []LogEntry
	totals harvest.Report
}

func newRunner(settings *config.Settings) *runner {
	names := settings.Providers
	if len(names) == 0 {
		names = provider.Names()
	}
	return &runner{
		settings:   settings,
		providers:  names,
		totalSteps: int64(len(names) * len(settings.Terms)),
	}
}

// run drives every provider/term combination. It only returns a fatal error
// for setup failures; harvest failures are absorbed into the reports.
func (r *runner) run(ctx context.Context) error {
	logger := zap.NewNop()
	queries := r.settings.Queries()

	for _, name := range r.providers {
		info := providerInfo(name)
		key := r.settings.KeyFor(name)
		if info.NeedsKey && key == "" {
			r.appendLog(LogEntry{
				Message: fmt.Sprintf("skipping %s: set %s to enable", name, info.KeyEnv),
				Level:   harvest.LevelWarning,
			})
			atomic.AddInt64(&r.doneSteps, int64(len(queries)))
			continue
		}

		client := fetch.NewClient(fetch.Config{
			UserAgent:         r.settings.UserAgent,
			RequestsPerSecond: r.settings.RequestsPerSecond,
		})

		adapter, err := provider.New(name, provider.Config{Client: client, APIKey: key})
		if err != nil {
			return err
		}

		st, err := store.Open(filepath.Join(r.settings.OutputRoot, name))
		if err != nil {
			return err
		}

		ctrl := harvest.New(adapter, st, client, logger, harvest.Config{
			Workers:   r.settings.Workers,
			PageDelay: r.settings.PageDelay,
			DryRun:    r.settings.DryRun,
			OnEvent: func(event harvest.Event) {
				r.appendLog(LogEntry{Message: event.Message, Level: event.Level})
			},
		})

		for _, query := range queries {
			report := ctrl.HarvestTerm(ctx, query)
			r.addReport(report)
			atomic.AddInt64(&r.doneSteps, 1)
			if report.Outcome == harvest.OutcomeCanceled {
				return ctx.Err()
			}
		}
	}
	return nil
}

func (r *runner) appendLog(entry LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, entry)
	if len(r.logs) > 50 {
		r.logs = r.logs[len(r.logs)-50:]
	}
}

func (r *runner) addReport(report harvest.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.Found += report.Found
	r.totals.Excluded += report.Excluded
	r.totals.Skipped += report.Skipped
	r.totals.Processed += report.Processed
	r.totals.AssetFailures += report.AssetFailures
}

// snapshot returns recent logs, accumulated totals, and progress.
func (r *runner) snapshot(n int) ([]LogEntry, harvest.Report, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logs := r.logs
	if len(logs) > n {
		logs = logs[len(logs)-n:]
	}
	out := make([]LogEntry, len(logs))
	copy(out, logs)

	var percent float64
	if r.totalSteps > 0 {
		percent = float64(atomic.LoadInt64(&r.doneSteps)) / float64(r.totalSteps)
	}
	return out, r.totals, percent
}

func providerInfo(name string) provider.Info {
	for _, info := range provider.Catalog {
		if info.Name == name {
			return info
		}
	}
	return provider.Info{Name: name}
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	settings  *config.Settings
	logs      []LogEntry
	totals    harvest.Report
	percent   float64
	err       error

	ctx    context.Context
	cancel context.CancelFunc

	runner *runner

	// Options
	dryRun  bool
	verbose bool

	width  int
	height int
}

// NewModel creates a new TUI model.
func NewModel(settings *config.Settings) Model {
	ti := textinput.New()
	ti.Placeholder = strings.Join(settings.Terms, ", ")
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:     StateInput,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		settings:  settings,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Message types
type (
	// HarvestDoneMsg is sent when every provider has finished.
	HarvestDoneMsg struct {
		Err error
	}

	// TickMsg is for periodic progress updates.
	TickMsg struct{}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 80 {
			m.progress.Width = 80
		}
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateInput {
				return m, tea.Quit
			}
			if m.state == StateHarvesting {
				m.cancel()
				m.state = StateError
				m.err = fmt.Errorf("cancelled by user")
			}

		case "enter":
			if m.state == StateInput {
				if value := strings.TrimSpace(m.textInput.Value()); value != "" {
					m.settings.Terms = splitTerms(value)
				}
				m.settings.DryRun = m.dryRun
				m.runner = newRunner(m.settings)
				m.state = StateHarvesting
				return m, tea.Batch(m.startHarvest(), m.tickProgress(), m.spinner.Tick)
			}

		case "d":
			if m.state == StateInput {
				m.dryRun = !m.dryRun
			}

		case "v":
			if m.state == StateInput {
				m.verbose = !m.verbose
			}

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}

		case "r":
			if m.state == StateComplete || m.state == StateError {
				// Reset for a new harvest
				m.state = StateInput
				m.logs = nil
				m.totals = harvest.Report{}
				m.percent = 0
				m.err = nil
				m.runner = nil
				m.ctx, m.cancel = context.WithCancel(context.Background())
				m.textInput.SetValue("")
				m.textInput.Focus()
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case HarvestDoneMsg:
		m.syncFromRunner()
		if msg.Err != nil && m.ctx.Err() == nil {
			m.state = StateError
			m.err = msg.Err
		} else if m.ctx.Err() != nil {
			m.state = StateError
			m.err = fmt.Errorf("cancelled by user")
		} else {
			m.state = StateComplete
		}

	case TickMsg:
		if m.runner != nil && m.state == StateHarvesting {
			m.syncFromRunner()
			cmds = append(cmds, m.progress.SetPercent(m.percent), m.tickProgress())
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	// Update text input
	if m.state == StateInput {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) syncFromRunner() {
	logs, totals, percent := m.runner.snapshot(10)
	if !m.verbose {
		filtered := logs[:0]
		for _, entry := range logs {
			if entry.Level != harvest.LevelVerbose {
				filtered = append(filtered, entry)
			}
		}
		logs = filtered
	}
	m.logs = logs
	m.totals = totals
	m.percent = percent
}

// tickProgress returns a command to tick progress updates.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// startHarvest runs the harvest in the background.
func (m *Model) startHarvest() tea.Cmd {
	runner := m.runner
	ctx := m.ctx
	return func() tea.Msg {
		return HarvestDoneMsg{Err: runner.run(ctx)}
	}
}

func splitTerms(value string) []string {
	var terms []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			terms = append(terms, part)
		}
	}
	return terms
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	// Header
	b.WriteString(titleStyle.Render("museum-dl"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Harvest openly licensed images from museum collections"))
	b.WriteString("\n\n")

	switch m.state {
	case StateInput:
		b.WriteString(m.viewInput())
	case StateHarvesting:
		b.WriteString(m.viewHarvesting())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	// Footer
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Search terms (comma-separated, empty for defaults):"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")

	dryRunCheck := "[ ]"
	if m.dryRun {
		dryRunCheck = "[x]"
	}
	verboseCheck := "[ ]"
	if m.verbose {
		verboseCheck = "[x]"
	}

	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s Dry run, no downloads (d)\n", dryRunCheck))
	b.WriteString(fmt.Sprintf("  %s Verbose output (v)\n", verboseCheck))
	b.WriteString("\n")

	b.WriteString(infoStyle.Render("Providers:"))
	b.WriteString("\n")
	for _, info := range provider.Catalog {
		status := "ready"
		if info.NeedsKey && m.settings.KeyFor(info.Name) == "" {
			status = "no key (" + info.KeyEnv + ")"
		}
		b.WriteString(providerStyle.Render(fmt.Sprintf("  %-13s", info.Name)))
		b.WriteString(dimStyle.Render(status))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Output: %s", m.settings.OutputRoot)))
	b.WriteString("\n")

	return b.String()
}

func (m Model) viewHarvesting() string {
	var b strings.Builder

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render("Harvesting..."))
	b.WriteString("\n\n")

	b.WriteString(m.progress.ViewAs(m.percent))
	b.WriteString("\n")

	b.WriteString(infoStyle.Render(fmt.Sprintf(
		"Processed: %d | Skipped: %d | Excluded: %d | Failures: %d",
		m.totals.Processed,
		m.totals.Skipped,
		m.totals.Excluded,
		m.totals.AssetFailures,
	)))
	b.WriteString("\n\n")

	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewComplete() string {
	var b strings.Builder

	dryRunNote := ""
	if m.settings.DryRun {
		dryRunNote = "\n(dry run - nothing downloaded)"
	}

	box := boxStyle.Render(fmt.Sprintf(
		"Harvest Complete\n\n"+
			"Found: %d\n"+
			"Processed: %d\n"+
			"Skipped: %d\n"+
			"Excluded: %d\n"+
			"Asset failures: %d%s",
		m.totals.Found,
		m.totals.Processed,
		m.totals.Skipped,
		m.totals.Excluded,
		m.totals.AssetFailures,
		dryRunNote,
	))
	b.WriteString(box)

	return b.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(fmt.Sprintf("  %s", m.err.Error()))
	}

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		var style lipgloss.Style
		prefix := "-"
		switch log.Level {
		case harvest.LevelError:
			style = errorStyle
			prefix = "x"
		case harvest.LevelWarning:
			style = warningStyle
			prefix = "!"
		case harvest.LevelSuccess:
			style = successStyle
			prefix = "+"
		case harvest.LevelInfo:
			style = infoStyle
			prefix = ">"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + log.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateInput:
		return "enter: start | d: dry run | v: verbose | esc: quit"
	case StateHarvesting:
		return "esc: cancel"
	case StateComplete, StateError:
		return "r: new harvest | q: quit"
	}
	return ""
}

// Run starts the TUI application.
func Run() error {
	_ = godotenv.Load()

	settings, err := config.Load("")
	if err != nil {
		return err
	}

	p := tea.NewProgram(NewModel(settings), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
