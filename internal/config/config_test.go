package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
interval: 4h
sources:
  - name: careerjet
    kind: careerjet
    api_key: "cj-key"
    enabled: true
  - name: bdjobs
    kind: bdjobs
    enabled: true
    concurrency: 2
    worker_delay: 3s
rotation:
  keywords:
    - Accountant
    - Finance Officer
  locations:
    - Dhaka
    - Chattogram
  anchors:
    - Bangladesh
  keyword_batch: 2
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Interval != 4*time.Hour {
		t.Errorf("Interval = %v, want 4h", cfg.Interval)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("Sources = %d, want 2", len(cfg.Sources))
	}
	if cfg.Sources[0].Kind != "careerjet" || cfg.Sources[0].APIKey != "cj-key" {
		t.Errorf("Sources[0] = %+v", cfg.Sources[0])
	}
	if cfg.Sources[1].Concurrency != 2 || cfg.Sources[1].WorkerDelay != 3*time.Second {
		t.Errorf("Sources[1] = %+v", cfg.Sources[1])
	}
	if len(cfg.Rotation.Keywords) != 2 || cfg.Rotation.KeywordBatch != 2 {
		t.Errorf("Rotation = %+v", cfg.Rotation)
	}
	if len(cfg.Rotation.Anchors) != 1 || cfg.Rotation.Anchors[0] != "Bangladesh" {
		t.Errorf("Anchors = %v", cfg.Rotation.Anchors)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Storage.Backend != "file" || cfg.Storage.Dir != "data" {
		t.Errorf("Storage = %+v, want file backend with data dir", cfg.Storage)
	}
	if cfg.Reconcile.GuardThreshold != 0.5 {
		t.Errorf("GuardThreshold = %v, want 0.5", cfg.Reconcile.GuardThreshold)
	}
	if cfg.Expansion.Provider != "none" {
		t.Errorf("Expansion.Provider = %q, want none", cfg.Expansion.Provider)
	}
	if cfg.Sources[0].Concurrency != 3 {
		t.Errorf("default concurrency = %d, want 3", cfg.Sources[0].Concurrency)
	}
	if cfg.Sources[0].Locale != "en_BD" {
		t.Errorf("default locale = %q, want en_BD", cfg.Sources[0].Locale)
	}
	if cfg.RateLimit.MinDelay != 5*time.Second {
		t.Errorf("default min delay = %v, want 5s", cfg.RateLimit.MinDelay)
	}
	if cfg.Retry.MaxRetries != 2 || cfg.Retry.BaseDelay != 2*time.Second {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.SourcePause != 5*time.Second {
		t.Errorf("SourcePause = %v, want 5s", cfg.SourcePause)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_CJ_KEY", "secret-from-env")
	content := `
interval: 1h
sources:
  - kind: careerjet
    api_key: "${TEST_CJ_KEY}"
    enabled: true
rotation:
  keywords: [Accountant]
  locations: [Dhaka]
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sources[0].APIKey != "secret-from-env" {
		t.Errorf("APIKey = %q, want expanded env value", cfg.Sources[0].APIKey)
	}
	if cfg.Sources[0].Name != "careerjet" {
		t.Errorf("Name = %q, want kind fallback", cfg.Sources[0].Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml")); err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "interval: [broken")); err == nil {
		t.Fatal("Load: expected error for invalid YAML")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "no enabled sources",
			content: `
interval: 1h
sources:
  - kind: bdjobs
    enabled: false
rotation:
  keywords: [Accountant]
  locations: [Dhaka]
`,
		},
		{
			name: "unknown source kind",
			content: `
interval: 1h
sources:
  - kind: indeed
    enabled: true
rotation:
  keywords: [Accountant]
  locations: [Dhaka]
`,
		},
		{
			name: "careerjet without api key",
			content: `
interval: 1h
sources:
  - kind: careerjet
    enabled: true
rotation:
  keywords: [Accountant]
  locations: [Dhaka]
`,
		},
		{
			name: "empty keywords",
			content: `
interval: 1h
sources:
  - kind: bdjobs
    enabled: true
rotation:
  keywords: []
  locations: [Dhaka]
`,
		},
		{
			name: "guard threshold above one",
			content: `
interval: 1h
sources:
  - kind: bdjobs
    enabled: true
rotation:
  keywords: [Accountant]
  locations: [Dhaka]
reconcile:
  guard_threshold: 1.5
`,
		},
		{
			name: "slack without webhook",
			content: `
interval: 1h
sources:
  - kind: bdjobs
    enabled: true
rotation:
  keywords: [Accountant]
  locations: [Dhaka]
notification:
  type: slack
`,
		},
		{
			name: "bad webhook host",
			content: `
interval: 1h
sources:
  - kind: bdjobs
    enabled: true
rotation:
  keywords: [Accountant]
  locations: [Dhaka]
notification:
  type: slack
  webhook_url: https://evil.example.com/hook
`,
		},
		{
			name: "expansion provider without key",
			content: `
interval: 1h
sources:
  - kind: bdjobs
    enabled: true
rotation:
  keywords: [Accountant]
  locations: [Dhaka]
expansion:
  provider: openai
  model: gpt-4o-mini
`,
		},
		{
			name: "sync enabled without endpoint",
			content: `
interval: 1h
sources:
  - kind: bdjobs
    enabled: true
rotation:
  keywords: [Accountant]
  locations: [Dhaka]
sync:
  enabled: true
  project_id: p
  api_key: k
  database_id: d
  collection_id: c
`,
		},
		{
			name: "bad storage backend",
			content: `
interval: 1h
storage:
  backend: postgres
sources:
  - kind: bdjobs
    enabled: true
rotation:
  keywords: [Accountant]
  locations: [Dhaka]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load: expected validation error")
			}
		})
	}
}

func TestMinDelayFor(t *testing.T) {
	r := RateLimitConfig{
		MinDelay:        5 * time.Second,
		SourceOverrides: map[string]time.Duration{"bdjobs": 10 * time.Second},
	}
	if d := r.MinDelayFor("bdjobs"); d != 10*time.Second {
		t.Errorf("MinDelayFor(bdjobs) = %v, want override", d)
	}
	if d := r.MinDelayFor("careerjet"); d != 5*time.Second {
		t.Errorf("MinDelayFor(careerjet) = %v, want fallback", d)
	}
}
