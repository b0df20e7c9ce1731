package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nazmulh/jobdelta/internal/notifier"
	"github.com/nazmulh/jobdelta/internal/pipeline"
)

var (
	runSourceName string
	runDryRun     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one discovery cycle and exit",
	Long:  "Runs the full pipeline once for every enabled source (or one source with --source), then exits.",
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().StringVar(&runSourceName, "source", "", "run only the named source")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "discover and diff but persist and notify nothing")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	n := setupNotifier(cfg, httpClient, logger)
	if runDryRun {
		logger.Info("dry-run mode: nothing will be persisted or notified")
		n = notifier.NewLogNotifier(logger)
	}

	suggester, closeSuggester, err := setupSuggester(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up expansion", "error", err)
		os.Exit(1)
	}
	defer closeSuggester()

	runners, closers, err := buildRunners(cfg, n, suggester, httpClient, logger, runDryRun)
	if err != nil {
		logger.Error("failed to build runners", "error", err)
		os.Exit(1)
	}
	defer runClosers(closers)

	if runSourceName != "" {
		var filtered []*pipeline.Runner
		for _, r := range runners {
			if r.Name() == runSourceName {
				filtered = append(filtered, r)
			}
		}
		if len(filtered) == 0 {
			return fmt.Errorf("no enabled source named %q", runSourceName)
		}
		runners = filtered
	}
	if len(runners) == 0 {
		return fmt.Errorf("no sources to run")
	}

	failed := 0
	for _, r := range runners {
		if _, err := r.Run(ctx); err != nil {
			logger.Error("run failed", "source", r.Name(), "error", err)
			failed++
		}
	}

	if failed == len(runners) {
		return fmt.Errorf("all %d sources failed", failed)
	}
	logger.Info("run complete", "sources", len(runners), "failed", failed)
	return nil
}
