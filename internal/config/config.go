package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Database contains the workspace database location.
type Database struct {
	Path string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Matching contains the global descriptor-matching options shared by every
// strategy.
type Matching struct {
	NumThreads    int     `toml:"num_threads"`
	UseGPU        bool    `toml:"use_gpu"`
	GPUIndex      string  `toml:"gpu_index"`
	MaxRatio      float64 `toml:"max_ratio"`
	MaxDistance   float64 `toml:"max_distance"`
	CrossCheck    bool    `toml:"cross_check"`
	MinNumMatches int     `toml:"min_num_matches"`
	MaxNumMatches int     `toml:"max_num_matches"`
}

// Exhaustive contains options for exhaustive block matching.
type Exhaustive struct {
	BlockSize int `toml:"block_size"`
}

// Sequential contains options for sequential (ordered-by-name) matching.
type Sequential struct {
	Overlap          int  `toml:"overlap"`
	QuadraticOverlap bool `toml:"quadratic_overlap"`
}

// Spatial contains options for spatial matching over location priors.
type Spatial struct {
	MaxNumNeighbors int     `toml:"max_num_neighbors"`
	MaxDistance     float64 `toml:"max_distance"`
	IsGPS           bool    `toml:"is_gps"`
	IgnoreZ         bool    `toml:"ignore_z"`
}

// Transitive contains options for transitive-closure matching.
type Transitive struct {
	BatchSize     int `toml:"batch_size"`
	NumIterations int `toml:"num_iterations"`
}

// ImagePairs contains options for matching a user-supplied pair list.
type ImagePairs struct {
	BlockSize int `toml:"block_size"`
}

// Config encapsulates all configuration values for parallax.
type Config struct {
	Database   Database   `toml:"database"`
	Logging    Logging    `toml:"logging"`
	Matching   Matching   `toml:"matching"`
	Exhaustive Exhaustive `toml:"exhaustive"`
	Sequential Sequential `toml:"sequential"`
	Spatial    Spatial    `toml:"spatial"`
	Transitive Transitive `toml:"transitive"`
	ImagePairs ImagePairs `toml:"image_pairs"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/parallax/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file
// yields the defaults.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("parallax.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.Database.Path) != "" {
		expanded, err := expandPath(c.Database.Path)
		if err != nil {
			return err
		}
		c.Database.Path = expanded
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Matching.GPUIndex = strings.TrimSpace(c.Matching.GPUIndex)
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
