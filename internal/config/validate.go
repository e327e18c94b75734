package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration invariants shared by every subcommand.
// Strategy option structs re-check their own fields before a run starts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Matching.MaxRatio <= 0 {
		return fmt.Errorf("matching.max_ratio must be positive, got %v", c.Matching.MaxRatio)
	}
	if c.Matching.MaxDistance <= 0 {
		return fmt.Errorf("matching.max_distance must be positive, got %v", c.Matching.MaxDistance)
	}
	if c.Matching.MinNumMatches < 0 {
		return fmt.Errorf("matching.min_num_matches must not be negative, got %d", c.Matching.MinNumMatches)
	}
	if c.Matching.MaxNumMatches <= 0 {
		return fmt.Errorf("matching.max_num_matches must be positive, got %d", c.Matching.MaxNumMatches)
	}
	if c.Exhaustive.BlockSize <= 1 {
		return fmt.Errorf("exhaustive.block_size must be greater than 1, got %d", c.Exhaustive.BlockSize)
	}
	if c.Sequential.Overlap <= 0 {
		return fmt.Errorf("sequential.overlap must be positive, got %d", c.Sequential.Overlap)
	}
	if c.Spatial.MaxNumNeighbors <= 0 {
		return fmt.Errorf("spatial.max_num_neighbors must be positive, got %d", c.Spatial.MaxNumNeighbors)
	}
	if c.Spatial.MaxDistance <= 0 {
		return fmt.Errorf("spatial.max_distance must be positive, got %v", c.Spatial.MaxDistance)
	}
	if c.Transitive.BatchSize <= 0 {
		return fmt.Errorf("transitive.batch_size must be positive, got %d", c.Transitive.BatchSize)
	}
	if c.Transitive.NumIterations <= 0 {
		return fmt.Errorf("transitive.num_iterations must be positive, got %d", c.Transitive.NumIterations)
	}
	if c.ImagePairs.BlockSize <= 0 {
		return fmt.Errorf("image_pairs.block_size must be positive, got %d", c.ImagePairs.BlockSize)
	}
	return nil
}
