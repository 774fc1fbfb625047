package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/bnema/planqk-cli/internal/adapters/render/status"
	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type jobPolledMsg struct {
	status domain.Status
}

type jobSettledMsg struct {
	err error
}

// waitModel shows the live status of a job while `job wait` polls it.
type waitModel struct {
	spinner spinner.Model
	jobID   string
	status  domain.Status
	polls   int
	poll    tea.Cmd
	err     error
	settled bool
}

func newWaitModel(jobID string, poll tea.Cmd) waitModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return waitModel{spinner: s, jobID: jobID, poll: poll}
}

func (m waitModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll)
}

func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case jobPolledMsg:
		m.status = msg.status
		m.polls++
		return m, nil
	case jobSettledMsg:
		m.settled = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m waitModel) View() string {
	if m.settled {
		return ""
	}

	line := fmt.Sprintf("%s Waiting for job %s...", m.spinner.View(), m.jobID)
	if m.polls == 0 {
		return line
	}
	return fmt.Sprintf("%s %s (%d checks)", line, status.StatusBadge(m.status), m.polls)
}

// waitWithSpinner runs wait while the spinner line follows every polled status.
func waitWithSpinner(ctx context.Context, output io.Writer, jobID string, wait func(ctx context.Context, polled func(domain.Document)) error) error {
	var p *tea.Program
	poll := func() tea.Msg {
		return jobSettledMsg{err: wait(ctx, func(doc domain.Document) {
			p.Send(jobPolledMsg{status: doc.Status()})
		})}
	}

	p = tea.NewProgram(
		newWaitModel(jobID, poll),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := finalModel.(waitModel)
	if !ok {
		return fmt.Errorf("unexpected final wait model type %T", finalModel)
	}

	return result.err
}
