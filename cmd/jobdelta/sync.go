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

	"github.com/nazmulh/jobdelta/internal/snapshot"
	"github.com/nazmulh/jobdelta/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push the last run's deltas downstream",
	Long:  "Reads each source's added/removed delta files and pushes them to the configured document database.",
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if !cfg.Sync.Enabled {
		return fmt.Errorf("sync is not enabled in config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 60 * time.Second}
	s := syncer.New(syncer.Config{
		Endpoint:     cfg.Sync.Endpoint,
		ProjectID:    cfg.Sync.ProjectID,
		APIKey:       cfg.Sync.APIKey,
		DatabaseID:   cfg.Sync.DatabaseID,
		CollectionID: cfg.Sync.CollectionID,
	}, httpClient, logger)

	// Both storage backends export deltas as JSON files, so sync always reads
	// them through a file store.
	var synced, failed int
	for _, sc := range cfg.Sources {
		if !sc.Enabled {
			continue
		}

		files, err := snapshot.NewFileStore(cfg.Storage.Dir, sc.Name)
		if err != nil {
			logger.Error("failed to open delta files", "source", sc.Name, "error", err)
			failed++
			continue
		}
		added, err := files.LoadAdded()
		if err != nil {
			logger.Error("failed to read added delta", "source", sc.Name, "error", err)
			failed++
			continue
		}
		removed, err := files.LoadRemoved()
		if err != nil {
			logger.Error("failed to read removed delta", "source", sc.Name, "error", err)
			failed++
			continue
		}
		if len(added) == 0 && len(removed) == 0 {
			logger.Info("nothing to sync", "source", sc.Name)
			continue
		}

		if _, err := s.Push(ctx, added, removed); err != nil {
			logger.Error("sync failed", "source", sc.Name, "error", err)
			failed++
			continue
		}
		synced++
	}

	if failed > 0 && synced == 0 {
		return fmt.Errorf("sync failed for all %d sources", failed)
	}
	logger.Info("sync finished", "synced", synced, "failed", failed)
	return nil
}
