package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/nazmulh/jobdelta/internal/config"
	"github.com/nazmulh/jobdelta/internal/enrich"
	"github.com/nazmulh/jobdelta/internal/expand"
	"github.com/nazmulh/jobdelta/internal/model"
	"github.com/nazmulh/jobdelta/internal/notifier"
	"github.com/nazmulh/jobdelta/internal/pipeline"
	"github.com/nazmulh/jobdelta/internal/ratelimit"
	"github.com/nazmulh/jobdelta/internal/reconcile"
	"github.com/nazmulh/jobdelta/internal/retry"
	"github.com/nazmulh/jobdelta/internal/rotation"
	"github.com/nazmulh/jobdelta/internal/snapshot"
	"github.com/nazmulh/jobdelta/internal/source"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobdelta",
	Short: "Incremental job-posting discovery",
	Long:  "jobdelta scrapes configured job sources, diffs each run against the previous snapshot, and reports which postings appeared and disappeared.",
	// Default to `start` so that `jobdelta` with no args runs the daemon.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBDELTA_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBDELTA_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("JOBDELTA_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

// setupSuggester builds the search-term expansion suggester. Returns a nil
// suggester when expansion is disabled; the returned cleanup is always safe to
// call.
func setupSuggester(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pipeline.Suggester, func(), error) {
	exp := cfg.Expansion
	switch exp.Provider {
	case "openai":
		client := &http.Client{Timeout: exp.Timeout}
		provider := expand.NewOpenAIProvider(exp.BaseURL, exp.APIKey, exp.Model, client)
		logger.Info("expansion enabled", "provider", "openai", "model", exp.Model)
		return expand.NewLLMSuggester(provider, exp.ExtraKeywords, exp.ExtraLocations, logger), func() {}, nil
	case "gemini":
		provider, err := expand.NewGeminiProvider(ctx, exp.APIKey, exp.Model)
		if err != nil {
			return nil, func() {}, fmt.Errorf("creating gemini provider: %w", err)
		}
		logger.Info("expansion enabled", "provider", "gemini", "model", exp.Model)
		return expand.NewLLMSuggester(provider, exp.ExtraKeywords, exp.ExtraLocations, logger), func() { provider.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

// openStore opens the configured snapshot backend for one source. The
// returned cleanup closes the backend when it holds resources.
func openStore(storage config.StorageConfig, sourceName string) (snapshot.Store, func(), error) {
	switch storage.Backend {
	case "sqlite":
		st, err := snapshot.NewSQLiteStore(storage.DBPath, storage.Dir, sourceName)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	default:
		st, err := snapshot.NewFileStore(storage.Dir, sourceName)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	}
}

// createSource builds the discovery source and enrichment session factory for
// one configured source kind.
func createSource(sc config.SourceConfig, httpClient *http.Client, logger *slog.Logger) (model.DiscoverySource, model.SessionFactory, bool) {
	switch sc.Kind {
	case "careerjet":
		cj := source.NewCareerJet(source.CareerJetConfig{
			APIKey:      sc.APIKey,
			Locale:      sc.Locale,
			UserIP:      sc.UserIP,
			UserAgent:   sc.UserAgent,
			RefererBase: sc.RefererBase,
		}, httpClient, logger)
		return cj, source.NewHintSessionFactory(sc.Name), true
	case "bdjobs":
		b := source.NewBDJobs(logger)
		return b, b, true
	case "linkedin":
		l := source.NewLinkedIn(sc.APIKey, httpClient, logger)
		return l, l, true
	default:
		logger.Warn("unsupported source kind, skipping", "name", sc.Name, "kind", sc.Kind)
		return nil, nil, false
	}
}

// dryRunStore serves reads from the wrapped store and drops all writes.
type dryRunStore struct {
	snapshot.Store
}

func (dryRunStore) Commit(_, _, _ []model.Record) error { return nil }
func (dryRunStore) SaveState(rotation.State) error      { return nil }

// buildRunners wires one pipeline runner per enabled source. The returned
// cleanups close the per-source stores and must run after the runners finish.
func buildRunners(cfg *config.Config, n model.Notifier, suggester pipeline.Suggester, httpClient *http.Client, logger *slog.Logger, dryRun bool) ([]*pipeline.Runner, []func(), error) {
	rotSched := rotation.NewScheduler(
		cfg.Rotation.Keywords,
		cfg.Rotation.Locations,
		cfg.Rotation.Anchors,
		cfg.Rotation.KeywordBatch,
		cfg.Rotation.LocationBatch,
	)
	reconciler := reconcile.New(cfg.Reconcile.GuardThreshold)

	var (
		runners []*pipeline.Runner
		closers []func()
	)
	for _, sc := range cfg.Sources {
		if !sc.Enabled {
			continue
		}

		src, factory, ok := createSource(sc, httpClient, logger)
		if !ok {
			continue
		}

		limiter := ratelimit.NewSourceRateLimiter(cfg.RateLimit.MinDelayFor(sc.Name))
		var wrapped model.DiscoverySource = ratelimit.NewRateLimitedSource(src, limiter, sc.Name)
		wrapped = retry.NewRetrySource(wrapped, cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, logger)

		store, closeStore, err := openStore(cfg.Storage, sc.Name)
		if err != nil {
			runClosers(closers)
			return nil, nil, fmt.Errorf("opening store for %s: %w", sc.Name, err)
		}
		closers = append(closers, closeStore)
		if dryRun {
			store = dryRunStore{Store: store}
		}

		runners = append(runners, pipeline.NewRunner(pipeline.Deps{
			Source:     sc.Name,
			Discovery:  wrapped,
			Pool:       enrich.NewPool(factory, sc.Concurrency, sc.WorkerDelay, logger),
			Store:      store,
			Scheduler:  rotSched,
			Reconciler: reconciler,
			Suggester:  suggester,
			Notifier:   n,
			Logger:     logger,
		}))
		logger.Info("registered source", "name", sc.Name, "kind", sc.Kind)
	}
	return runners, closers, nil
}

func runClosers(closers []func()) {
	for _, c := range closers {
		c()
	}
}
