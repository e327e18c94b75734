package main

import (
	"log/slog"
	"strings"

	"parallax/internal/config"
	"parallax/internal/database"
	"parallax/internal/feature"
	"parallax/internal/logging"
)

// commandContext lazily resolves the configuration, logger, and database
// shared by subcommands.
type commandContext struct {
	configFlag   *string
	databaseFlag *string

	cfg        *config.Config
	configPath string
	logger     *slog.Logger
}

func newCommandContext(configFlag, databaseFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, databaseFlag: databaseFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	cfg, path, _, err := config.Load(*c.configFlag)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(*c.databaseFlag) != "" {
		cfg.Database.Path = *c.databaseFlag
	}
	c.cfg = cfg
	c.configPath = path
	return cfg, nil
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}

	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, err
	}
	c.logger = logger
	return logger, nil
}

func (c *commandContext) openDatabase() (*database.DB, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return database.Open(cfg.Database.Path)
}

// siftOptions maps the [matching] config section onto kernel options.
func siftOptions(cfg *config.Config) feature.SiftOptions {
	return feature.SiftOptions{
		NumThreads:    cfg.Matching.NumThreads,
		UseGPU:        cfg.Matching.UseGPU,
		GPUIndex:      cfg.Matching.GPUIndex,
		MaxRatio:      cfg.Matching.MaxRatio,
		MaxDistance:   cfg.Matching.MaxDistance,
		CrossCheck:    cfg.Matching.CrossCheck,
		MinNumMatches: cfg.Matching.MinNumMatches,
		MaxNumMatches: cfg.Matching.MaxNumMatches,
	}
}
