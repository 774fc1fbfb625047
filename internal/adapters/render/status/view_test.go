package status

import (
	"testing"
	"time"

	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSingleJob(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

	output, err := RenderJobs([]domain.Document{
		domain.Document(`{"id":"exec-1","name":"bell","status":"DONE","emulatorType":"SIMULATOR","createdAt":"2026-02-14T10:00:00Z","numberOfUploadedFiles":1,"numberOfResultedFiles":2}`),
	}, RenderOptions{Now: now})

	require.NoError(t, err)
	assert.Contains(t, output, "jobs: 1")
	assert.Contains(t, output, "bell (exec-1)")
	assert.Contains(t, output, "DONE")
	assert.Contains(t, output, "type: SIMULATOR")
	assert.Contains(t, output, "created: 1 hour ago")
	assert.Contains(t, output, "files: 1 uploaded, 2 results")
	assert.NotContains(t, output, "error:")
}

func TestRenderFailedJobShowsMessage(t *testing.T) {
	output, err := RenderJobs([]domain.Document{
		domain.Document(`{"id":"exec-2","status":"ERROR","message":"Timeout exceeded"}`),
		domain.Document(`{"id":"exec-3","status":"RUNNING"}`),
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "jobs: 2")
	assert.Contains(t, output, "exec-2 ERROR")
	assert.Contains(t, output, "error: Timeout exceeded")
	assert.Contains(t, output, "exec-3 RUNNING")
}

func TestRenderEmptyJobs(t *testing.T) {
	output, err := RenderJobs(nil, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "jobs: 0")
	assert.Contains(t, output, "No jobs found.")
}

func TestRenderLimits(t *testing.T) {
	output, err := RenderLimits(domain.UsageLimits{
		ExecutionCount: 12000,
		ExecutionTime:  10 * time.Minute,
		MaxTimeout:     0,
	})

	require.NoError(t, err)
	assert.Contains(t, output, "executions: 12,000")
	assert.Contains(t, output, "execution time: 10m0s")
	assert.Contains(t, output, "max job timeout: unlimited")
}

func TestRenderZeroLimits(t *testing.T) {
	output, err := RenderLimits(domain.UsageLimits{})

	require.NoError(t, err)
	assert.Contains(t, output, "No usage limits reported.")
}

func TestStatusLabelUnknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN", statusLabel(""))
	assert.Equal(t, "CANCELED", statusLabel(domain.StatusCanceled))
}
