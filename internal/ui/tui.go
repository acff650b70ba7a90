package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer shows a one-line spinner with live counts using bubbletea.
// It never reads the keyboard, so standard input stays available as a
// search source, and it leaves signal handling to the caller.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *searchModel
	tracker *ProgressTracker
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer.
// Returns an error if the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newSearchModel(tracker, cfg.SpinnerStyle)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	opts := []tea.ProgramOption{
		tea.WithContext(ctx),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.tracker.Update(event)
	r.send(progressUpdateMsg(event))
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.tracker.AddError(event)
	r.send(errorMsg(event))
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.send(completeMsg(stats))
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()

	if p == nil {
		return nil
	}
	p.Quit()

	// Bounded so an unresponsive terminal cannot hang shutdown.
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

// Message types for bubbletea
type progressUpdateMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats

// searchModel is the bubbletea model for search progress.
type searchModel struct {
	tracker  *ProgressTracker
	width    int
	spinner  spinner.Model
	styles   Styles
	complete bool
	stats    CompletionStats
}

func spinnerFor(style string) spinner.Spinner {
	switch style {
	case "line":
		return spinner.Line
	case "points":
		return spinner.Points
	default:
		return spinner.Dot
	}
}

func newSearchModel(tracker *ProgressTracker, spinnerStyle string) *searchModel {
	s := spinner.New()
	s.Spinner = spinnerFor(spinnerStyle)
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	return &searchModel{
		tracker: tracker,
		spinner: s,
		styles:  DefaultStyles(),
		width:   80,
	}
}

// Init implements tea.Model.
func (m *searchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *searchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case progressUpdateMsg, errorMsg:
		// Already recorded by the tracker; the next frame shows it.
		return m, nil

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *searchModel) View() string {
	if m.complete {
		return m.renderComplete()
	}

	stats := m.tracker.Stats()
	parts := []string{
		m.spinner.View() + " " + m.styles.Header.Render("Searching"),
		m.styles.Active.Render(fmt.Sprintf("%d", stats.Searched)) + m.styles.Label.Render(" files"),
		m.styles.Active.Render(fmt.Sprintf("%d", stats.Records)) + m.styles.Label.Render(" records"),
	}
	if stats.Speed.Current > 0 {
		parts = append(parts, m.styles.Speed.Render(fmt.Sprintf("%.0f files/s", stats.Speed.Current)))
	}
	if stats.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d", stats.WarnCount)))
	}
	if stats.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d", stats.ErrorCount)))
	}

	line := strings.Join(parts, m.styles.Dim.Render("  •  "))
	if file := stats.CurrentFile; file != "" {
		room := m.width - lipgloss.Width(line) - 2
		if room > 10 {
			line += "  " + m.styles.Dim.Render(truncateFilePath(file, room))
		}
	}
	return line + "\n"
}

func (m *searchModel) renderComplete() string {
	summary := fmt.Sprintf("✓ %d files searched, %d records in %s",
		m.stats.Files, m.stats.Records, formatDuration(m.stats.Duration))
	out := m.styles.Success.Render(summary)
	if m.stats.Errors > 0 {
		out += "  " + m.styles.Error.Render(fmt.Sprintf("✗ %d errors", m.stats.Errors))
	}
	if m.stats.Warnings > 0 {
		out += "  " + m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", m.stats.Warnings))
	}
	return out + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(100 * time.Millisecond)
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	d = d.Round(time.Second)
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}

// truncateFilePath truncates a file path to fit within maxLen.
func truncateFilePath(path string, maxLen int) string {
	if path == "" || len(path) <= maxLen {
		return path
	}

	// Keep the filename and as much of the path as fits
	parts := strings.Split(path, "/")
	if len(parts) == 1 {
		if maxLen < 4 {
			return "..."
		}
		return "..." + path[len(path)-maxLen+3:]
	}

	filename := parts[len(parts)-1]
	if len(filename)+4 > maxLen {
		if maxLen < 4 {
			return "..."
		}
		return "..." + filename[len(filename)-maxLen+3:]
	}

	remaining := maxLen - len(filename) - 4 // 4 for ".../"
	if remaining <= 0 {
		return ".../" + filename
	}

	prefix := strings.Join(parts[:len(parts)-1], "/")
	return "..." + prefix[len(prefix)-remaining:] + "/" + filename
}

// Ensure TUIRenderer implements Renderer
var _ Renderer = (*TUIRenderer)(nil)
