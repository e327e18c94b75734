package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"parallax/internal/config"
	"parallax/internal/database"
	"parallax/internal/feature"
	"parallax/internal/matching"
)

// strategyRunner is implemented by every matcher driver.
type strategyRunner interface {
	Run(ctx context.Context) error
}

func newMatchCommand(cmdCtx *commandContext) *cobra.Command {
	var numThreads int
	var useGPU bool
	var gpuIndex string

	matchCmd := &cobra.Command{
		Use:   "match",
		Short: "Run a pair-selection strategy and match features",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	matchCmd.PersistentFlags().IntVar(&numThreads, "num-threads", 0, "CPU matcher workers (<= 0 uses all CPUs)")
	matchCmd.PersistentFlags().BoolVar(&useGPU, "use-gpu", false, "Match on GPU workers")
	matchCmd.PersistentFlags().StringVar(&gpuIndex, "gpu-index", "", "Comma-separated GPU devices (-1 selects all)")

	applyFlags := func(cmd *cobra.Command, cfg *config.Config) {
		if cmd.Flags().Changed("num-threads") {
			cfg.Matching.NumThreads = numThreads
		}
		if cmd.Flags().Changed("use-gpu") {
			cfg.Matching.UseGPU = useGPU
		}
		if cmd.Flags().Changed("gpu-index") {
			cfg.Matching.GPUIndex = gpuIndex
		}
	}

	matchCmd.AddCommand(newMatchExhaustiveCommand(cmdCtx, applyFlags))
	matchCmd.AddCommand(newMatchSequentialCommand(cmdCtx, applyFlags))
	matchCmd.AddCommand(newMatchSpatialCommand(cmdCtx, applyFlags))
	matchCmd.AddCommand(newMatchTransitiveCommand(cmdCtx, applyFlags))
	matchCmd.AddCommand(newMatchPairsCommand(cmdCtx, applyFlags))

	return matchCmd
}

type flagApplier func(cmd *cobra.Command, cfg *config.Config)

// runStrategy resolves collaborators, builds the driver, and runs it with
// interrupt-driven cancellation.
func runStrategy(cmdCtx *commandContext, cmd *cobra.Command, applyFlags flagApplier,
	build func(cfg *config.Config, siftOpts feature.SiftOptions, db *database.DB, logger *slog.Logger) (strategyRunner, error),
) error {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	logger, err := cmdCtx.ensureLogger()
	if err != nil {
		return err
	}

	db, err := cmdCtx.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	runner, err := build(cfg, siftOptions(cfg), db, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runner.Run(ctx)
}

func newMatchExhaustiveCommand(cmdCtx *commandContext, applyFlags flagApplier) *cobra.Command {
	var blockSize int

	cmd := &cobra.Command{
		Use:   "exhaustive",
		Short: "Match every image pair, block by block",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStrategy(cmdCtx, cmd, applyFlags, func(cfg *config.Config, siftOpts feature.SiftOptions, db *database.DB, logger *slog.Logger) (strategyRunner, error) {
				opts := matching.ExhaustiveOptions{BlockSize: cfg.Exhaustive.BlockSize}
				if cmd.Flags().Changed("block-size") {
					opts.BlockSize = blockSize
				}
				matcher, err := matching.NewExhaustiveMatcher(opts, siftOpts, db, logger, nil)
				if err != nil {
					return nil, err
				}
				return matcher, nil
			})
		},
	}
	cmd.Flags().IntVar(&blockSize, "block-size", 0, "Images per matching block")
	return cmd
}

func newMatchSequentialCommand(cmdCtx *commandContext, applyFlags flagApplier) *cobra.Command {
	var overlap int
	var quadratic bool

	cmd := &cobra.Command{
		Use:   "sequential",
		Short: "Match consecutive images in name order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStrategy(cmdCtx, cmd, applyFlags, func(cfg *config.Config, siftOpts feature.SiftOptions, db *database.DB, logger *slog.Logger) (strategyRunner, error) {
				opts := matching.SequentialOptions{
					Overlap:          cfg.Sequential.Overlap,
					QuadraticOverlap: cfg.Sequential.QuadraticOverlap,
				}
				if cmd.Flags().Changed("overlap") {
					opts.Overlap = overlap
				}
				if cmd.Flags().Changed("quadratic-overlap") {
					opts.QuadraticOverlap = quadratic
				}
				matcher, err := matching.NewSequentialMatcher(opts, siftOpts, db, logger, nil)
				if err != nil {
					return nil, err
				}
				return matcher, nil
			})
		},
	}
	cmd.Flags().IntVar(&overlap, "overlap", 0, "Number of following images to match against")
	cmd.Flags().BoolVar(&quadratic, "quadratic-overlap", false, "Also match power-of-two offsets")
	return cmd
}

func newMatchSpatialCommand(cmdCtx *commandContext, applyFlags flagApplier) *cobra.Command {
	var maxNumNeighbors int
	var maxDistance float64
	var isGPS bool
	var ignoreZ bool

	cmd := &cobra.Command{
		Use:   "spatial",
		Short: "Match images near each other in space",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStrategy(cmdCtx, cmd, applyFlags, func(cfg *config.Config, siftOpts feature.SiftOptions, db *database.DB, logger *slog.Logger) (strategyRunner, error) {
				opts := matching.SpatialOptions{
					MaxNumNeighbors: cfg.Spatial.MaxNumNeighbors,
					MaxDistance:     cfg.Spatial.MaxDistance,
					IsGPS:           cfg.Spatial.IsGPS,
					IgnoreZ:         cfg.Spatial.IgnoreZ,
				}
				if cmd.Flags().Changed("max-num-neighbors") {
					opts.MaxNumNeighbors = maxNumNeighbors
				}
				if cmd.Flags().Changed("max-distance") {
					opts.MaxDistance = maxDistance
				}
				if cmd.Flags().Changed("is-gps") {
					opts.IsGPS = isGPS
				}
				if cmd.Flags().Changed("ignore-z") {
					opts.IgnoreZ = ignoreZ
				}
				matcher, err := matching.NewSpatialMatcher(opts, siftOpts, db, logger, nil)
				if err != nil {
					return nil, err
				}
				return matcher, nil
			})
		},
	}
	cmd.Flags().IntVar(&maxNumNeighbors, "max-num-neighbors", 0, "Neighbors retrieved per image")
	cmd.Flags().Float64Var(&maxDistance, "max-distance", 0, "Maximum neighbor distance")
	cmd.Flags().BoolVar(&isGPS, "is-gps", false, "Interpret priors as lat/lon/alt")
	cmd.Flags().BoolVar(&ignoreZ, "ignore-z", false, "Zero the third coordinate")
	return cmd
}

func newMatchTransitiveCommand(cmdCtx *commandContext, applyFlags flagApplier) *cobra.Command {
	var batchSize int
	var numIterations int

	cmd := &cobra.Command{
		Use:   "transitive",
		Short: "Match pairs implied by the existing match graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStrategy(cmdCtx, cmd, applyFlags, func(cfg *config.Config, siftOpts feature.SiftOptions, db *database.DB, logger *slog.Logger) (strategyRunner, error) {
				opts := matching.TransitiveOptions{
					BatchSize:     cfg.Transitive.BatchSize,
					NumIterations: cfg.Transitive.NumIterations,
				}
				if cmd.Flags().Changed("batch-size") {
					opts.BatchSize = batchSize
				}
				if cmd.Flags().Changed("num-iterations") {
					opts.NumIterations = numIterations
				}
				matcher, err := matching.NewTransitiveMatcher(opts, siftOpts, db, logger, nil)
				if err != nil {
					return nil, err
				}
				return matcher, nil
			})
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Pairs dispatched per transaction")
	cmd.Flags().IntVar(&numIterations, "num-iterations", 0, "Closure iterations")
	return cmd
}

func newMatchPairsCommand(cmdCtx *commandContext, applyFlags flagApplier) *cobra.Command {
	var blockSize int

	cmd := &cobra.Command{
		Use:   "pairs <match-list>",
		Short: "Match the image pairs named in a list file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStrategy(cmdCtx, cmd, applyFlags, func(cfg *config.Config, siftOpts feature.SiftOptions, db *database.DB, logger *slog.Logger) (strategyRunner, error) {
				opts := matching.ImagePairsOptions{
					BlockSize:     cfg.ImagePairs.BlockSize,
					MatchListPath: args[0],
				}
				if cmd.Flags().Changed("block-size") {
					opts.BlockSize = blockSize
				}
				matcher, err := matching.NewImagePairsMatcher(opts, siftOpts, db, logger, nil)
				if err != nil {
					return nil, err
				}
				return matcher, nil
			})
		},
	}
	cmd.Flags().IntVar(&blockSize, "block-size", 0, "Listed pairs dispatched per transaction")
	return cmd
}
