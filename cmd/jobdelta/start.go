package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nazmulh/jobdelta/internal/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the discovery daemon",
	Long:  "Starts the interval scheduler; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"interval", cfg.Interval.String(),
		"sources", len(cfg.Sources),
		"keywords", len(cfg.Rotation.Keywords),
		"locations", len(cfg.Rotation.Locations),
		"storage", cfg.Storage.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	n := setupNotifier(cfg, httpClient, logger)

	suggester, closeSuggester, err := setupSuggester(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up expansion", "error", err)
		os.Exit(1)
	}
	defer closeSuggester()

	runners, closers, err := buildRunners(cfg, n, suggester, httpClient, logger, false)
	if err != nil {
		logger.Error("failed to build runners", "error", err)
		os.Exit(1)
	}
	defer runClosers(closers)

	if len(runners) == 0 {
		logger.Error("no sources to run")
		os.Exit(1)
	}

	sched := scheduler.New(runners, cfg.Interval, cfg.SourcePause, logger)
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
