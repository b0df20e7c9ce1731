package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nazmulh/jobdelta/internal/browse"
	"github.com/nazmulh/jobdelta/internal/config"
	"github.com/nazmulh/jobdelta/internal/model"
	"github.com/nazmulh/jobdelta/internal/snapshot"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the snapshot interactively (TUI)",
	Long:  "Shows the source picker TUI, then launches the split-pane snapshot browser.",
	RunE:  runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var enabled []config.SourceConfig
	for _, sc := range cfg.Sources {
		if sc.Enabled {
			enabled = append(enabled, sc)
		}
	}
	if len(enabled) == 0 {
		fmt.Println("No enabled sources in config.")
		return nil
	}

	for {
		entries := make([]browse.SourceEntry, 0, len(enabled))
		for _, sc := range enabled {
			records, err := loadSnapshotRecords(cfg, sc.Name)
			if err != nil {
				fmt.Printf("Error loading snapshot for %s: %v\n", sc.Name, err)
				return nil
			}
			entries = append(entries, browse.SourceEntry{Name: sc.Name, Records: len(records)})
		}

		choice, err := browse.RunSourcePicker(entries)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return nil
		}
		if choice < 0 {
			return nil
		}
		sc := enabled[choice]

		records, err := loadSnapshotRecords(cfg, sc.Name)
		if err != nil {
			fmt.Printf("Error loading snapshot: %v\n", err)
			continue
		}
		// The added delta is always a JSON file, whichever backend holds the
		// snapshot.
		files, err := snapshot.NewFileStore(cfg.Storage.Dir, sc.Name)
		if err != nil {
			fmt.Printf("Error opening deltas: %v\n", err)
			continue
		}
		added, err := files.LoadAdded()
		if err != nil {
			fmt.Printf("Error loading added delta: %v\n", err)
			continue
		}

		wantQuit, err := browse.RunBrowseTUI(records, added)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return nil
		}
		// otherwise loop back to the picker
	}
}

func loadSnapshotRecords(cfg *config.Config, sourceName string) ([]model.Record, error) {
	store, closeStore, err := openStore(cfg.Storage, sourceName)
	if err != nil {
		return nil, err
	}
	defer closeStore()
	return store.LoadSnapshot()
}
