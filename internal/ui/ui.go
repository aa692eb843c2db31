// Package ui implements the interactive sync monitor using bubbletea's Elm architecture.
//
// The [SyncModel] renders one row per kind being synced, fed by the progress
// channel the engine emits on. The model drains the channel without blocking
// the pipeline; when the channel closes the final report is shown and the
// program exits.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/tasks"
)

// kindState tracks one kind's row in the monitor.
type kindState int

const (
	kindWaiting kindState = iota
	kindFetching
	kindOK
	kindFailed
)

type kindRow struct {
	state     kindState
	committed int
	message   string
}

// keyMap defines the [key.Binding] mapping for the monitor.
type keyMap struct {
	quit key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// progressMsg wraps one engine update as a [tea.Msg].
type progressMsg tasks.ProgressUpdate

// drainedMsg signals the progress channel closed; the run is over.
type drainedMsg struct{}

// SyncModel is the bubbletea model for a live sync run.
type SyncModel struct {
	title    string
	kinds    []models.Kind
	rows     map[models.Kind]*kindRow
	progress <-chan tasks.ProgressUpdate
	spinner  spinner.Model
	keys     keyMap
	purged   int64
	done     bool
	quitting bool
}

// NewSyncModel creates a monitor for the given kinds reading from progress.
// The engine's caller closes the channel once the run finishes.
func NewSyncModel(title string, kinds []models.Kind, progress <-chan tasks.ProgressUpdate) SyncModel {
	if len(kinds) == 0 {
		kinds = models.AllKinds()
	}

	rows := make(map[models.Kind]*kindRow, len(kinds))
	for _, kind := range kinds {
		rows[kind] = &kindRow{}
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.warn

	return SyncModel{
		title:    title,
		kinds:    kinds,
		rows:     rows,
		progress: progress,
		spinner:  sp,
		keys:     newKeyMap(),
	}
}

// Init implements [tea.Model].
func (m SyncModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForUpdate())
}

// waitForUpdate blocks on the progress channel in a command so the event
// loop stays responsive.
func (m SyncModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		update, ok := <-m.progress
		if !ok {
			return drainedMsg{}
		}
		return progressMsg(update)
	}
}

// Update implements [tea.Model].
func (m SyncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case progressMsg:
		m.apply(tasks.ProgressUpdate(msg))
		return m, m.waitForUpdate()

	case drainedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// apply folds one engine update into the row table.
func (m *SyncModel) apply(update tasks.ProgressUpdate) {
	if update.Phase == tasks.Purge {
		m.purged = int64(update.Step)
		return
	}

	row, ok := m.rows[update.Kind]
	if !ok {
		return
	}

	switch update.Phase {
	case tasks.FetchPage:
		row.state = kindFetching
		row.message = update.Message
	case tasks.CommitBatch:
		row.state = kindFetching
		row.committed = update.Step
	case tasks.KindDone:
		row.committed = update.Step
		if strings.HasPrefix(update.Message, "✗") {
			row.state = kindFailed
			row.message = update.Message
		} else {
			row.state = kindOK
			row.message = ""
		}
	}
}

// View implements [tea.Model].
func (m SyncModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.title.Render(m.title))
	b.WriteString("\n")

	for _, kind := range m.kinds {
		row := m.rows[kind]
		b.WriteString(m.renderRow(kind, row))
		b.WriteString("\n")
	}

	if m.done {
		b.WriteString("\n")
		b.WriteString(styles.ok.Render("Sync finished."))
		b.WriteString("\n")
	} else {
		b.WriteString("\n")
		b.WriteString(styles.help.Render("q to quit"))
		b.WriteString("\n")
	}

	return b.String()
}

func (m SyncModel) renderRow(kind models.Kind, row *kindRow) string {
	label := fmt.Sprintf("%-15s", kind)

	switch row.state {
	case kindWaiting:
		return fmt.Sprintf("  %s %s", label, styles.help.Render("waiting"))
	case kindFetching:
		return fmt.Sprintf("%s %s %s", m.spinner.View(), label, styles.warn.Render(fmt.Sprintf("%d stored", row.committed)))
	case kindOK:
		return fmt.Sprintf("%s %s %s", styles.ok.Render("✓"), label, fmt.Sprintf("%d associations", row.committed))
	case kindFailed:
		return fmt.Sprintf("%s %s %s", styles.err.Render("✗"), label, styles.err.Render(row.message))
	default:
		return label
	}
}

// Done reports whether the engine finished and the channel drained.
func (m SyncModel) Done() bool { return m.done }
