package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the jobdelta pipeline.
type Config struct {
	Interval     time.Duration // gap between full cycles in daemon mode
	SourcePause  time.Duration // gap between sources within one cycle
	Storage      StorageConfig
	Sources      []SourceConfig
	Rotation     RotationConfig
	Reconcile    ReconcileConfig
	Expansion    ExpansionConfig
	Notification NotificationConfig
	Sync         SyncConfig
	RateLimit    RateLimitConfig
	Retry        RetryConfig
}

// StorageConfig selects the snapshot backend.
type StorageConfig struct {
	Backend string // "file" or "sqlite"
	Dir     string // snapshot and delta directory
	DBPath  string // sqlite database path, used when backend is "sqlite"
}

// SourceConfig describes one discovery source. Kind-specific fields are only
// read by the matching source kind.
type SourceConfig struct {
	Name        string
	Kind        string // "careerjet", "bdjobs" or "linkedin"
	Enabled     bool
	APIKey      string        // careerjet affiliate key / linkedin search key
	Concurrency int           // enrichment workers
	WorkerDelay time.Duration // pause between items per worker

	// CareerJet-specific.
	Locale      string
	UserIP      string
	UserAgent   string
	RefererBase string
}

// RotationConfig defines the static search universe and per-run batch sizes.
type RotationConfig struct {
	Keywords      []string
	Locations     []string
	Anchors       []string // locations queried every run
	KeywordBatch  int
	LocationBatch int
}

// ReconcileConfig controls the partial-failure safety guard.
type ReconcileConfig struct {
	GuardThreshold float64
}

// ExpansionConfig controls the optional LLM search-term expansion.
type ExpansionConfig struct {
	Provider       string // "none", "openai" or "gemini"
	BaseURL        string // openai-compatible endpoint, defaults to api.openai.com
	Model          string
	APIKey         string // expanded from env var by Load
	Timeout        time.Duration
	ExtraKeywords  int
	ExtraLocations int
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

// SyncConfig holds the downstream document-database connection.
type SyncConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Endpoint     string `yaml:"endpoint"`
	ProjectID    string `yaml:"project_id"`
	APIKey       string `yaml:"api_key"`
	DatabaseID   string `yaml:"database_id"`
	CollectionID string `yaml:"collection_id"`
}

// RateLimitConfig controls per-source request pacing.
type RateLimitConfig struct {
	MinDelay        time.Duration
	SourceOverrides map[string]time.Duration
}

// MinDelayFor returns the configured delay for the given source, falling back
// to MinDelay.
func (r RateLimitConfig) MinDelayFor(source string) time.Duration {
	if d, ok := r.SourceOverrides[source]; ok {
		return d
	}
	return r.MinDelay
}

// RetryConfig controls the discovery retry decorator.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultLocale        = "en_BD"
)

// rawConfig is used for YAML unmarshaling (snake_case fields, durations as
// strings).
type rawConfig struct {
	Interval     string             `yaml:"interval"`
	SourcePause  string             `yaml:"source_pause"`
	Storage      rawStorageConfig   `yaml:"storage"`
	Sources      []rawSourceConfig  `yaml:"sources"`
	Rotation     rawRotationConfig  `yaml:"rotation"`
	Reconcile    rawReconcileConfig `yaml:"reconcile"`
	Expansion    rawExpansionConfig `yaml:"expansion"`
	Notification NotificationConfig `yaml:"notification"`
	Sync         SyncConfig         `yaml:"sync"`
	RateLimit    rawRateLimitConfig `yaml:"rate_limit"`
	Retry        rawRetryConfig     `yaml:"retry"`
}

type rawStorageConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	DBPath  string `yaml:"db_path"`
}

type rawSourceConfig struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Enabled     bool   `yaml:"enabled"`
	APIKey      string `yaml:"api_key"`
	Concurrency int    `yaml:"concurrency"`
	WorkerDelay string `yaml:"worker_delay"`
	Locale      string `yaml:"locale"`
	UserIP      string `yaml:"user_ip"`
	UserAgent   string `yaml:"user_agent"`
	RefererBase string `yaml:"referer_base"`
}

type rawRotationConfig struct {
	Keywords      []string `yaml:"keywords"`
	Locations     []string `yaml:"locations"`
	Anchors       []string `yaml:"anchors"`
	KeywordBatch  int      `yaml:"keyword_batch"`
	LocationBatch int      `yaml:"location_batch"`
}

type rawReconcileConfig struct {
	GuardThreshold float64 `yaml:"guard_threshold"`
}

type rawExpansionConfig struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	Timeout        string `yaml:"timeout"`
	ExtraKeywords  int    `yaml:"extra_keywords"`
	ExtraLocations int    `yaml:"extra_locations"`
}

type rawRateLimitConfig struct {
	MinDelay        string            `yaml:"min_delay"`
	SourceOverrides map[string]string `yaml:"source_overrides"`
}

type rawRetryConfig struct {
	MaxRetries int    `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
}

// Load reads and parses the YAML config file at path, expands environment
// variables, applies defaults, validates, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	interval, err := durationOr(raw.Interval, 6*time.Hour, "interval")
	if err != nil {
		return nil, err
	}
	pause, err := durationOr(raw.SourcePause, 5*time.Second, "source_pause")
	if err != nil {
		return nil, err
	}

	sources := make([]SourceConfig, 0, len(raw.Sources))
	for i, rs := range raw.Sources {
		delay, err := durationOr(rs.WorkerDelay, 2*time.Second, fmt.Sprintf("sources[%d].worker_delay", i))
		if err != nil {
			return nil, err
		}
		concurrency := rs.Concurrency
		if concurrency <= 0 {
			concurrency = 3
		}
		name := rs.Name
		if name == "" {
			name = rs.Kind
		}
		locale := rs.Locale
		if locale == "" {
			locale = defaultLocale
		}
		sources = append(sources, SourceConfig{
			Name:        name,
			Kind:        rs.Kind,
			Enabled:     rs.Enabled,
			APIKey:      rs.APIKey,
			Concurrency: concurrency,
			WorkerDelay: delay,
			Locale:      locale,
			UserIP:      rs.UserIP,
			UserAgent:   rs.UserAgent,
			RefererBase: rs.RefererBase,
		})
	}

	keywordBatch := raw.Rotation.KeywordBatch
	if keywordBatch <= 0 {
		keywordBatch = 5
	}
	locationBatch := raw.Rotation.LocationBatch
	if locationBatch <= 0 {
		locationBatch = 3
	}

	threshold := raw.Reconcile.GuardThreshold
	if threshold == 0 {
		threshold = 0.5
	}

	expTimeout, err := durationOr(raw.Expansion.Timeout, 30*time.Second, "expansion.timeout")
	if err != nil {
		return nil, err
	}
	expProvider := raw.Expansion.Provider
	if expProvider == "" {
		expProvider = "none"
	}
	expBaseURL := raw.Expansion.BaseURL
	if expBaseURL == "" {
		expBaseURL = defaultOpenAIBaseURL
	}
	extraKeywords := raw.Expansion.ExtraKeywords
	if extraKeywords <= 0 {
		extraKeywords = 3
	}
	extraLocations := raw.Expansion.ExtraLocations
	if extraLocations <= 0 {
		extraLocations = 2
	}

	minDelay, err := durationOr(raw.RateLimit.MinDelay, 5*time.Second, "rate_limit.min_delay")
	if err != nil {
		return nil, err
	}
	overrides := make(map[string]time.Duration)
	for source, s := range raw.RateLimit.SourceOverrides {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("parse rate_limit.source_overrides[%q]: %w", source, err)
		}
		overrides[source] = d
	}

	retryBase, err := durationOr(raw.Retry.BaseDelay, 2*time.Second, "retry.base_delay")
	if err != nil {
		return nil, err
	}
	maxRetries := raw.Retry.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}

	backend := raw.Storage.Backend
	if backend == "" {
		backend = "file"
	}
	dir := raw.Storage.Dir
	if dir == "" {
		dir = "data"
	}
	dbPath := raw.Storage.DBPath
	if dbPath == "" {
		dbPath = "data/jobdelta.db"
	}

	cfg := &Config{
		Interval:    interval,
		SourcePause: pause,
		Storage: StorageConfig{
			Backend: backend,
			Dir:     dir,
			DBPath:  dbPath,
		},
		Sources: sources,
		Rotation: RotationConfig{
			Keywords:      raw.Rotation.Keywords,
			Locations:     raw.Rotation.Locations,
			Anchors:       raw.Rotation.Anchors,
			KeywordBatch:  keywordBatch,
			LocationBatch: locationBatch,
		},
		Reconcile: ReconcileConfig{GuardThreshold: threshold},
		Expansion: ExpansionConfig{
			Provider:       expProvider,
			BaseURL:        expBaseURL,
			Model:          raw.Expansion.Model,
			APIKey:         raw.Expansion.APIKey,
			Timeout:        expTimeout,
			ExtraKeywords:  extraKeywords,
			ExtraLocations: extraLocations,
		},
		Notification: raw.Notification,
		Sync:         raw.Sync,
		RateLimit: RateLimitConfig{
			MinDelay:        minDelay,
			SourceOverrides: overrides,
		},
		Retry: RetryConfig{
			MaxRetries: maxRetries,
			BaseDelay:  retryBase,
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func durationOr(s string, def time.Duration, field string) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return d, nil
}

func validate(cfg *Config) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", cfg.Interval)
	}

	if cfg.Storage.Backend != "file" && cfg.Storage.Backend != "sqlite" {
		return fmt.Errorf("storage.backend must be \"file\" or \"sqlite\", got %q", cfg.Storage.Backend)
	}

	enabled := 0
	for i, s := range cfg.Sources {
		if !s.Enabled {
			continue
		}
		enabled++
		switch s.Kind {
		case "careerjet", "linkedin":
			if s.APIKey == "" {
				return fmt.Errorf("sources[%d] (%s): api_key is required for kind %q", i, s.Name, s.Kind)
			}
		case "bdjobs":
		default:
			return fmt.Errorf("sources[%d] (%s): unknown kind %q", i, s.Name, s.Kind)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}

	if len(cfg.Rotation.Keywords) == 0 {
		return fmt.Errorf("rotation.keywords must not be empty")
	}
	if len(cfg.Rotation.Locations) == 0 && len(cfg.Rotation.Anchors) == 0 {
		return fmt.Errorf("rotation needs at least one location or anchor")
	}

	if t := cfg.Reconcile.GuardThreshold; t < 0 || t > 1 {
		return fmt.Errorf("reconcile.guard_threshold must be in (0, 1], got %v", t)
	}

	switch cfg.Expansion.Provider {
	case "none":
	case "openai", "gemini":
		if cfg.Expansion.APIKey == "" {
			return fmt.Errorf("expansion.api_key is required when provider is %q", cfg.Expansion.Provider)
		}
		if cfg.Expansion.Model == "" {
			return fmt.Errorf("expansion.model is required when provider is %q", cfg.Expansion.Provider)
		}
	default:
		return fmt.Errorf("expansion.provider must be \"none\", \"openai\" or \"gemini\", got %q", cfg.Expansion.Provider)
	}

	if cfg.Notification.Type == "slack" {
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	}

	if cfg.Sync.Enabled {
		if cfg.Sync.Endpoint == "" || cfg.Sync.ProjectID == "" || cfg.Sync.APIKey == "" ||
			cfg.Sync.DatabaseID == "" || cfg.Sync.CollectionID == "" {
			return fmt.Errorf("sync requires endpoint, project_id, api_key, database_id and collection_id when enabled")
		}
	}

	return nil
}
