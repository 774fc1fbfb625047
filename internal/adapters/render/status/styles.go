package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title     lipgloss.Style
	header    lipgloss.Style
	job       lipgloss.Style
	detail    lipgloss.Style
	warning   lipgloss.Style
	section   lipgloss.Style
	empty     lipgloss.Style
	limitKey  lipgloss.Style
	limitMeta lipgloss.Style
	statusNew lipgloss.Style
	running   lipgloss.Style
	done      lipgloss.Style
	failed    lipgloss.Style
	canceled  lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:     lipgloss.NewStyle().Bold(true),
		header:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		job:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		warning:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section:   lipgloss.NewStyle().MarginTop(1),
		empty:     lipgloss.NewStyle().Faint(true),
		limitKey:  lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		limitMeta: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		statusNew: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		running:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		done:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		failed:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		canceled:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}
