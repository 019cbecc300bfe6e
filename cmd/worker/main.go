package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"outreach-pipeline/internal/app"
	"outreach-pipeline/internal/config"
	"outreach-pipeline/internal/logging"
	"outreach-pipeline/internal/models"
	"outreach-pipeline/internal/telemetry"
)

var (
	cfg        config.Config
	flushLogs  func()
	serveStats bool
)

var rootCmd = &cobra.Command{
	Use:   "outreach-worker",
	Short: "Run or preview the outreach email job from the command line",
	Long: `outreach-worker runs the same email job as POST /trigger-emails, in the
foreground, against the configured storage backends.

Examples:
  outreach-worker preview        # show who would be mailed
  outreach-worker run            # send, then print the final job status
  outreach-worker run --metrics  # also expose /metrics on OUTREACH_METRICS_ADDR`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		flushLogs, err = logging.Init(cfg.LogJSON)
		if err != nil {
			return errors.Wrap(err, "init logging")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if flushLogs != nil {
			flushLogs()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Send to every new recipient found in stored posts",
	RunE:  runJob,
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "List the recipients a run would mail, without sending",
	RunE:  runPreview,
}

func init() {
	runCmd.Flags().BoolVar(&serveStats, "metrics", false, "serve Prometheus metrics while the job runs")
	rootCmd.AddCommand(runCmd, previewCmd)
}

func runJob(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer components.Close()

	if serveStats {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
				zap.L().Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	if _, err := components.Job.Trigger(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		components.Job.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// a started job is not cancellable
		zap.L().Warn("interrupted, waiting for the email job to finish")
		<-done
	}

	status := components.Job.Status()
	if err := printJSON(cmd, status); err != nil {
		return err
	}
	if status.Status == models.StatusFailed {
		return errors.Newf("email job failed: %s", status.Message)
	}
	return nil
}

func runPreview(cmd *cobra.Command, _ []string) error {
	components, err := app.Build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer components.Close()

	plan, err := components.Job.Preview(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd, plan)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
