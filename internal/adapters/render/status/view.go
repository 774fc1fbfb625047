package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

type RenderOptions struct {
	Now time.Time
}

// RenderJobs draws one block per job record.
func RenderJobs(jobs []domain.Document, opts RenderOptions) (string, error) {
	return render(func(s styles) string {
		return renderJobs(jobs, opts, s)
	})
}

func RenderLimits(limits domain.UsageLimits) (string, error) {
	return render(func(s styles) string {
		return renderLimits(limits, s)
	})
}

func renderJobs(jobs []domain.Document, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("PlanQK Jobs"),
		s.header.Render(fmt.Sprintf("jobs: %d", len(jobs))),
	}

	if len(jobs) == 0 {
		lines = append(lines, s.empty.Render("No jobs found."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, job := range jobs {
		lines = append(lines, s.section.Render(renderJob(job, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderJob(job domain.Document, opts RenderOptions, s styles) string {
	title := lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.job.Render(jobTitle(job)),
		" ",
		statusStyle(job.Status(), s).Render(statusLabel(job.Status())),
	)
	parts := []string{title}

	if kind := job.Get("emulatorType").String(); kind != "" {
		parts = append(parts, s.detail.Render("type: "+kind))
	}
	if created, ok := timestamp(job, "createdAt", "creationDate"); ok {
		parts = append(parts, s.detail.Render("created: "+relative(created, opts.Now)))
	}
	if ended, ok := timestamp(job, "endedAt", "finishedAt"); ok {
		parts = append(parts, s.detail.Render("finished: "+relative(ended, opts.Now)))
	}

	uploads := job.Count(domain.FileSourceUploads.CountField())
	results := job.Count(domain.FileSourceResults.CountField())
	if uploads > 0 || results > 0 {
		parts = append(parts, s.limitMeta.Render(fmt.Sprintf("files: %d uploaded, %d results", uploads, results)))
	}

	if job.Status().IsFailed() {
		if message := job.Get("message").String(); message != "" {
			parts = append(parts, s.warning.Render("error: "+message))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderLimits(limits domain.UsageLimits, s styles) string {
	lines := []string{s.title.Render("PlanQK Usage Limits")}

	if limits.IsZero() {
		lines = append(lines, s.empty.Render("No usage limits reported."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	lines = append(lines,
		limitLine("executions:", humanize.Comma(limits.ExecutionCount), s),
		limitLine("execution time:", formatDuration(limits.ExecutionTime), s),
		limitLine("max job timeout:", formatDuration(limits.MaxTimeout), s),
	)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func limitLine(label string, value string, s styles) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, s.limitKey.Render(label), " ", s.detail.Render(value))
}

func jobTitle(job domain.Document) string {
	name := strings.TrimSpace(job.Get("name").String())
	id := job.ID()
	if name == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}

// StatusBadge renders status in the colour used by the job listing.
func StatusBadge(status domain.Status) string {
	return statusStyle(status, newStyles()).Render(statusLabel(status))
}

func statusLabel(status domain.Status) string {
	if status == "" {
		return "UNKNOWN"
	}
	return string(status)
}

func statusStyle(status domain.Status, s styles) lipgloss.Style {
	switch status {
	case domain.StatusNew:
		return s.statusNew
	case domain.StatusRunning:
		return s.running
	case domain.StatusDone:
		return s.done
	case domain.StatusError:
		return s.failed
	case domain.StatusCanceled:
		return s.canceled
	default:
		return s.empty
	}
}

func timestamp(job domain.Document, fields ...string) (time.Time, bool) {
	for _, field := range fields {
		raw := job.Get(field).String()
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func relative(at time.Time, now time.Time) string {
	if now.IsZero() {
		return at.Format(time.RFC3339)
	}
	return humanize.RelTime(at, now, "ago", "from now")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "unlimited"
	}
	return d.String()
}
