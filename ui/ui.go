// Package ui provides the terminal UI for conversion runs.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dgnsrekt/animatekit/pipeline"
)

const statusMessageTimeout = time.Second * 3

// Config holds UI settings passed down from the CLI.
type Config struct {
	// ModelsDir is shown in the header and used for clipboard copies.
	ModelsDir string

	// Device is the compile target shown in the header.
	Device string

	// EnableMouse turns on mouse cell motion.
	EnableMouse bool
}

// NewProgram returns a Tea program rendering the given conversion plan. The
// caller drives it by sending stage messages from the conversion goroutine.
func NewProgram(cfg Config, specs []pipeline.StageSpec) *tea.Program {
	log.Debug("starting conversion ui", "stages", len(specs), "device", cfg.Device)

	opts := []tea.ProgramOption{}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, specs), opts...)
}

// StageBeganMsg marks a stage entering conversion.
type StageBeganMsg struct {
	ID pipeline.StageID
}

// StageDoneMsg marks a stage leaving conversion.
type StageDoneMsg struct {
	ID      pipeline.StageID
	Skipped bool
	Size    int64
	Err     error
}

// RunFinishedMsg ends the run. Err is the first stage error, if any.
type RunFinishedMsg struct {
	Err error
}

type statusMessageTimeoutMsg struct{}

// stageStatus is the per-stage state machine. A stage either converts or,
// when its artifact already exists, is skipped.
type stageStatus int

const (
	statusPending stageStatus = iota
	statusConverting
	statusConverted
	statusSkipped
	statusFailed
)

type stageRow struct {
	spec   pipeline.StageSpec
	status stageStatus
	size   int64
	err    error
}

type model struct {
	cfg   Config
	rows  []stageRow
	title cases.Caser

	spinner  spinner.Model
	progress progress.Model

	width         int
	done          bool
	runErr        error
	statusMessage string
	fatalErr      error
}

func newModel(cfg Config, specs []pipeline.StageSpec) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	rows := make([]stageRow, len(specs))
	for i, spec := range specs {
		rows[i] = stageRow{spec: spec}
	}

	return model{
		cfg:      cfg,
		rows:     rows,
		title:    cases.Title(language.English),
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient()),
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "c":
			cmd := m.copyArtifactPaths()
			if cmd != nil {
				m.statusMessage = "artifact paths copied"
			}
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 8
		if m.progress.Width > 60 {
			m.progress.Width = 60
		}

	case StageBeganMsg:
		m.setStatus(msg.ID, func(r *stageRow) {
			r.status = statusConverting
		})

	case StageDoneMsg:
		m.setStatus(msg.ID, func(r *stageRow) {
			r.size = msg.Size
			r.err = msg.Err
			switch {
			case msg.Err != nil:
				r.status = statusFailed
			case msg.Skipped:
				r.status = statusSkipped
			default:
				r.status = statusConverted
			}
		})

	case RunFinishedMsg:
		m.done = true
		m.runErr = msg.Err
		if msg.Err != nil {
			return m, tea.Quit
		}
		return m, nil

	case statusMessageTimeoutMsg:
		m.statusMessage = ""

	case errMsg:
		m.fatalErr = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

func (m *model) setStatus(id pipeline.StageID, apply func(*stageRow)) {
	for i := range m.rows {
		if m.rows[i].spec.ID == id {
			apply(&m.rows[i])
			return
		}
	}
}

// completed counts stages that reached a terminal status.
func (m model) completed() int {
	var n int
	for _, r := range m.rows {
		switch r.status {
		case statusConverted, statusSkipped, statusFailed:
			n++
		}
	}
	return n
}

func (m model) copyArtifactPaths() tea.Cmd {
	var paths []string
	for _, r := range m.rows {
		if r.status == statusConverted || r.status == statusSkipped {
			paths = append(paths, r.spec.ArtifactPath(m.cfg.ModelsDir))
		}
	}
	if len(paths) == 0 {
		return nil
	}

	if err := clipboard.WriteAll(strings.Join(paths, "\n")); err != nil {
		log.Error("clipboard copy failed", "error", err)
		return nil
	}

	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{}
	})
}

// View renders the stage table, one line per stage, with an overall
// progress bar underneath.
func (m model) View() string {
	if m.fatalErr != nil {
		return errorStyle.Render("Error: "+m.fatalErr.Error()) + "\n"
	}

	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("Converting stages  %s → %s", m.cfg.ModelsDir, m.cfg.Device)))
	b.WriteString("\n\n")

	nameWidth := 0
	for _, r := range m.rows {
		if w := runewidth.StringWidth(m.stageLabel(r)); w > nameWidth {
			nameWidth = w
		}
	}

	for _, r := range m.rows {
		label := runewidth.FillRight(m.stageLabel(r), nameWidth+2)
		b.WriteString("  ")
		b.WriteString(m.statusGlyph(r))
		b.WriteString(" ")
		b.WriteString(label)
		b.WriteString(m.statusText(r))
		b.WriteString("\n")
	}

	b.WriteString("\n  ")
	b.WriteString(m.progress.ViewAs(float64(m.completed()) / float64(len(m.rows))))
	b.WriteString("\n")

	if m.statusMessage != "" {
		b.WriteString("\n  " + statusMessageStyle.Render(m.statusMessage))
	}

	if m.done {
		if m.runErr != nil {
			b.WriteString("\n  " + errorStyle.Render("conversion failed: "+m.runErr.Error()))
		} else {
			b.WriteString("\n  " + successStyle.Render("all stages ready") + subtleStyle.Render("  q to quit, c to copy paths"))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func (m model) stageLabel(r stageRow) string {
	return m.title.String(strings.ReplaceAll(r.spec.ID.String(), "_", " "))
}

func (m model) statusGlyph(r stageRow) string {
	switch r.status {
	case statusConverting:
		return m.spinner.View()
	case statusConverted:
		return successStyle.Render("✓")
	case statusSkipped:
		return skippedStyle.Render("•")
	case statusFailed:
		return errorStyle.Render("✗")
	default:
		return subtleStyle.Render("·")
	}
}

func (m model) statusText(r stageRow) string {
	switch r.status {
	case statusConverting:
		return subtleStyle.Render("converting")
	case statusConverted:
		return successStyle.Render("converted ") + subtleStyle.Render(humanize.Bytes(uint64(r.size)))
	case statusSkipped:
		return skippedStyle.Render("cached")
	case statusFailed:
		return errorStyle.Render(r.err.Error())
	default:
		return subtleStyle.Render("pending")
	}
}
