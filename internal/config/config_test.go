package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"parallax/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("file should not exist")
	}

	defaults := config.Default()
	if cfg.Matching.MaxRatio != defaults.Matching.MaxRatio {
		t.Errorf("max_ratio = %v, want default %v", cfg.Matching.MaxRatio, defaults.Matching.MaxRatio)
	}
	if cfg.Exhaustive.BlockSize != defaults.Exhaustive.BlockSize {
		t.Errorf("block_size = %d, want default %d", cfg.Exhaustive.BlockSize, defaults.Exhaustive.BlockSize)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[database]
path = "workspace.db"

[matching]
num_threads = 4
min_num_matches = 20

[sequential]
overlap = 5
quadratic_overlap = false
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved = %q exists = %v", resolved, exists)
	}

	if !strings.HasSuffix(cfg.Database.Path, "workspace.db") || !filepath.IsAbs(cfg.Database.Path) {
		t.Errorf("database path not normalized: %q", cfg.Database.Path)
	}
	if cfg.Matching.NumThreads != 4 || cfg.Matching.MinNumMatches != 20 {
		t.Errorf("matching overrides not applied: %+v", cfg.Matching)
	}
	if cfg.Sequential.Overlap != 5 || cfg.Sequential.QuadraticOverlap {
		t.Errorf("sequential overrides not applied: %+v", cfg.Sequential)
	}
	// Untouched sections keep defaults.
	if cfg.Spatial.MaxNumNeighbors != config.Default().Spatial.MaxNumNeighbors {
		t.Errorf("spatial defaults lost: %+v", cfg.Spatial)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{
			name: "block size too small",
			content: `
[exhaustive]
block_size = 1
`,
		},
		{
			name: "negative overlap",
			content: `
[sequential]
overlap = -2
`,
		},
		{
			name: "zero spatial distance",
			content: `
[spatial]
max_distance = 0.0
`,
		},
		{
			name: "zero transitive iterations",
			content: `
[transitive]
num_iterations = 0
`,
		},
		{
			name: "bad log format",
			content: `
[logging]
format = "yaml"
`,
		},
		{
			name: "zero max matches",
			content: `
[matching]
max_num_matches = 0
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, _, _, err := config.Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("sample file should exist")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("sample config should validate: %v", err)
	}
}
