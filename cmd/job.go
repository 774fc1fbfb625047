package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	statusadapter "github.com/bnema/planqk-cli/internal/adapters/render/status"
	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/bnema/planqk-cli/internal/execution"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

func newJobCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Submit and manage remote jobs",
	}

	cmd.AddCommand(
		newJobSubmitCmd(app),
		newJobStatusCmd(app),
		newJobWaitCmd(app),
		newJobStopCmd(app),
		newJobDeleteFilesCmd(app),
		newJobListCmd(app),
		newJobDownloadCmd(app),
	)

	return cmd
}

func newJobSubmitCmd(app *app) *cobra.Command {
	var request execution.SubmitRequest

	cmd := &cobra.Command{
		Use:   "submit [files...]",
		Short: "Submit a job with its input files",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				request.Files = append(request.Files, execution.FromPath(path))
			}

			client, closeSession, err := app.jobClient(cmd, nil)
			if err != nil {
				return err
			}
			defer closeSession()

			warnOnTimeoutCeiling(app, client, request.TimeoutSeconds)

			job, err := client.Submit(cmd.Context(), request)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), job.ID)
			return err
		},
	}

	cmd.Flags().StringVar(&request.Type, "type", "", "Backend or emulator type")
	cmd.Flags().StringVar(&request.Name, "name", "", "Job name")
	cmd.Flags().StringVar(&request.Label, "label", "", "Job label")
	cmd.Flags().IntVar(&request.TimeoutSeconds, "timeout", 0, "Job timeout in seconds")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("timeout")

	return cmd
}

// limitsReporter is implemented by native sessions.
type limitsReporter interface {
	Limits() domain.UsageLimits
}

func warnOnTimeoutCeiling(app *app, client *execution.Client, timeoutSeconds int) {
	reporter, ok := client.Conn.(limitsReporter)
	if !ok || timeoutSeconds <= 0 {
		return
	}

	limits := reporter.Limits()
	if limits.AllowsTimeout(time.Duration(timeoutSeconds) * time.Second) {
		return
	}
	app.logger.Warn().
		Int("timeout_seconds", timeoutSeconds).
		Dur("max_timeout", limits.MaxTimeout).
		Msg("job timeout exceeds the account maximum, the service may shorten or reject it")
}

func newJobStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeSession, err := app.jobClient(cmd, nil)
			if err != nil {
				return err
			}
			defer closeSession()

			doc, err := client.Status(cmd.Context(), domain.Execution{ID: args[0]})
			if err != nil {
				return err
			}

			return writeDocuments(cmd, app, []domain.Document{doc}, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status document")

	return cmd
}

func newJobWaitCmd(app *app) *cobra.Command {
	var (
		interval time.Duration
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Poll a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeSession, err := app.jobClient(cmd, nil)
			if err != nil {
				return err
			}
			defer closeSession()

			job := domain.Execution{ID: args[0]}
			var doc domain.Document
			wait := func(ctx context.Context, polled func(domain.Document)) error {
				client.Polled = polled
				var err error
				doc, err = client.Wait(ctx, job, interval)
				return err
			}

			if asJSON {
				err = wait(cmd.Context(), nil)
			} else {
				err = waitWithSpinner(cmd.Context(), cmd.ErrOrStderr(), job.ID, wait)
			}
			if err != nil {
				return err
			}

			if err := writeDocuments(cmd, app, []domain.Document{doc}, asJSON); err != nil {
				return err
			}
			if doc.Status().IsFailed() {
				return fmt.Errorf("job %s finished with status %s", job.ID, doc.Status())
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Polling interval")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the final status document without a spinner")

	return cmd
}

func newJobStopCmd(app *app) *cobra.Command {
	return newJobActionCmd(app, "stop <job-id>", "Stop a running job", "Stopped",
		func(ctx context.Context, client *execution.Client, job domain.Execution) (bool, error) {
			return client.Stop(ctx, job)
		})
}

func newJobDeleteFilesCmd(app *app) *cobra.Command {
	return newJobActionCmd(app, "delete-files <job-id>", "Delete the uploaded and result files of a job", "Deleted files of",
		func(ctx context.Context, client *execution.Client, job domain.Execution) (bool, error) {
			return client.DeleteFiles(ctx, job)
		})
}

func newJobActionCmd(app *app, use string, short string, verb string, action func(context.Context, *execution.Client, domain.Execution) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeSession, err := app.jobClient(cmd, nil)
			if err != nil {
				return err
			}
			defer closeSession()

			job := domain.Execution{ID: args[0]}
			if _, err := action(cmd.Context(), client, job); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s job %s\n", verb, job.ID)
			return err
		},
	}
}

func newJobListCmd(app *app) *cobra.Command {
	var (
		filter domain.ListFilter
		status string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter.Status = domain.Status(strings.ToUpper(strings.TrimSpace(status)))

			client, closeSession, err := app.jobClient(cmd, nil)
			if err != nil {
				return err
			}
			defer closeSession()

			jobs, err := client.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			return writeDocuments(cmd, app, jobs, asJSON)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only jobs with this status (NEW, RUNNING, DONE, ERROR, CANCELED)")
	cmd.Flags().StringVar(&filter.UserEmail, "user", "", "Only jobs submitted by this email")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Page size")
	cmd.Flags().IntVar(&filter.Page, "page", 0, "Page number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw job documents")

	return cmd
}

func newJobDownloadCmd(app *app) *cobra.Command {
	var (
		dir     string
		uploads bool
	)

	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download the result files of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sizes := map[string]int64{}
			progress := func(p execution.Progress) {
				sizes[p.File] = p.Downloaded
			}

			client, closeSession, err := app.jobClient(cmd, progress)
			if err != nil {
				return err
			}
			defer closeSession()

			job := domain.Execution{ID: args[0]}
			download := client.DownloadResultFiles
			if uploads {
				download = client.DownloadUploadedFiles
			}

			files, err := download(cmd.Context(), job, dir)
			for _, path := range files {
				size := sizes[filepath.Base(path)]
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", path, humanize.Bytes(uint64(size)))
			}
			if err != nil {
				return err
			}

			if len(files) == 0 {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Job %s has no files to download\n", job.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Destination directory")
	cmd.Flags().BoolVar(&uploads, "uploads", false, "Download the uploaded input files instead of the results")

	return cmd
}

func writeDocuments(cmd *cobra.Command, app *app, docs []domain.Document, asJSON bool) error {
	if asJSON {
		for _, doc := range docs {
			if _, err := cmd.OutOrStdout().Write(pretty.Pretty(doc)); err != nil {
				return err
			}
		}
		return nil
	}

	rendered, err := app.jobsRenderer(docs, statusadapter.RenderOptions{Now: app.now()})
	if err != nil {
		return fmt.Errorf("render jobs: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func writeJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
