// Package tui renders a live terminal view of the active download, driven
// by job snapshots from the session manager.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vidgrab/vidgrab/internal/session"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	cancelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Canceller lets the view request cancellation on ctrl+c / q.
type Canceller interface {
	RequestCancel(jobID string)
}

// jobMsg carries the next job snapshot into the update loop.
type jobMsg session.Job

// updatesClosedMsg signals the subscription ended.
type updatesClosedMsg struct{}

// Model is the bubbletea model for one download.
type Model struct {
	updates  <-chan session.Job
	cancel   Canceller
	job      session.Job
	bar      progress.Model
	spin     spinner.Model
	width    int
	finished bool
}

// NewModel creates a progress view fed by the given snapshot channel.
func NewModel(updates <-chan session.Job, cancel Canceller) Model {
	bar := progress.New(progress.WithDefaultGradient())
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	return Model{
		updates: updates,
		cancel:  cancel,
		job:     session.Job{Status: session.StatusInitializing},
		bar:     bar,
		spin:    sp,
		width:   60,
	}
}

// Run blocks until the download reaches a terminal state or the user quits.
func Run(updates <-chan session.Job, cancel Canceller) (session.Job, error) {
	p := tea.NewProgram(NewModel(updates, cancel))
	final, err := p.Run()
	if err != nil {
		return session.Job{}, err
	}
	m, ok := final.(Model)
	if !ok {
		return session.Job{}, fmt.Errorf("unexpected final model %T", final)
	}
	return m.job, nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.spin.Tick)
}

func (m Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		job, ok := <-m.updates
		if !ok {
			return updatesClosedMsg{}
		}
		return jobMsg(job)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 8
		if m.bar.Width > 72 {
			m.bar.Width = 72
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.finished {
				return m, tea.Quit
			}
			if m.cancel != nil {
				m.cancel.RequestCancel(m.job.ID)
			}
			return m, nil
		}
		return m, nil

	case jobMsg:
		m.job = session.Job(msg)
		if m.job.Status.IsTerminal() || m.job.Status == session.StatusIdle {
			m.finished = true
			return m, tea.Quit
		}
		return m, m.waitForUpdate()

	case updatesClosedMsg:
		m.finished = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	header := m.job.Title
	if header == "" {
		header = m.job.SourceURL
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	switch m.job.Status {
	case session.StatusInitializing:
		b.WriteString(m.spin.View())
		b.WriteString(" ")
		b.WriteString(statusLine(m.job, "Starting download..."))

	case session.StatusDownloading, session.StatusProcessing:
		b.WriteString(m.bar.ViewAs(m.job.Percent / 100))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(statusLine(m.job, "")))

	case session.StatusCompleted:
		b.WriteString(okStyle.Render("✓ " + statusLine(m.job, "Download completed")))

	case session.StatusCancelled:
		b.WriteString(cancelStyle.Render("✗ " + statusLine(m.job, "Download cancelled")))

	case session.StatusError:
		b.WriteString(errorStyle.Render("✗ " + statusLine(m.job, "Download failed")))

	default:
		b.WriteString(mutedStyle.Render("waiting..."))
	}

	b.WriteString("\n\n")
	if !m.finished {
		b.WriteString(mutedStyle.Render("press q to cancel"))
	}

	return panelStyle.Render(b.String()) + "\n"
}

func statusLine(job session.Job, fallback string) string {
	if job.StatusMessage != "" {
		return job.StatusMessage
	}
	return fallback
}
