package matching

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"parallax/internal/database"
	"parallax/internal/logging"
)

// pairBatch is one unit of dispatch: the pairs are matched inside a single
// database transaction.
type pairBatch struct {
	label string
	pairs []database.ImagePair
}

// pairSource enumerates candidate pair batches for one strategy. Batch
// boundaries are part of each strategy's contract: they set the transaction
// granularity and the descriptor locality the GPU elision depends on.
type pairSource interface {
	// next returns the next batch, or ok=false when the source is
	// exhausted.
	next(ctx context.Context) (batch pairBatch, ok bool, err error)
}

// runBatches drives a pair source to exhaustion: each batch is dispatched
// through the pool inside its own transaction, so every completed batch is
// durable before the next begins. Cancellation is honored between batches
// and returns cleanly without error.
func runBatches(ctx context.Context, logger *slog.Logger, store Store, pool *Pool, source pairSource, numBatches int) error {
	bar := newProgressBar(numBatches)
	defer finishProgressBar(bar)

	for {
		if ctx.Err() != nil {
			logger.Info("matching stopped")
			return nil
		}

		batch, ok, err := source.next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		start := time.Now()
		err = store.WithTransaction(ctx, func(ctx context.Context) error {
			return pool.Match(ctx, batch.pairs)
		})
		if err != nil {
			return err
		}

		if bar != nil {
			_ = bar.Add(1)
		}
		logger.Debug("batch matched",
			logging.String("batch", batch.label),
			logging.Int("num_pairs", len(batch.pairs)),
			logging.Duration("elapsed", time.Since(start)))
	}
}

// newProgressBar returns a progress bar over numBatches, or nil when stdout
// is not a terminal or the total is unknown.
func newProgressBar(numBatches int) *progressbar.ProgressBar {
	if numBatches <= 0 {
		return nil
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return nil
	}
	return progressbar.NewOptions(numBatches,
		progressbar.OptionSetDescription("matching"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func finishProgressBar(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Finish()
	}
}
