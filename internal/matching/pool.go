package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"parallax/internal/database"
	"parallax/internal/feature"
	"parallax/internal/logging"
)

// Pool owns the matcher workers and the queues between them and the dispatch
// loop. The driver goroutine is the sole producer on the input queue and the
// sole consumer on the output queue; workers are the sole consumers of input
// and sole producers of output.
type Pool struct {
	opts    feature.SiftOptions
	store   Store
	cache   *Cache
	logger  *slog.Logger
	workers []*matcherWorker
	input   *JobQueue[matchJob]
	output  *JobQueue[matchJob]
	isSetup bool
}

// NewPool validates the options and builds the worker set: one CPU worker
// per effective thread, or one GPU worker per selected device. Workers are
// not started until Setup.
func NewPool(opts feature.SiftOptions, store Store, cache *Cache, logger *slog.Logger, gpu *GPUProvider) (*Pool, error) {
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if gpu == nil {
		gpu = &DefaultGPUProvider
	}

	p := &Pool{
		opts:   opts,
		store:  store,
		cache:  cache,
		logger: logging.NewComponentLogger(logger, "pool"),
		input:  NewJobQueue[matchJob](0),
		output: NewJobQueue[matchJob](0),
	}

	if opts.UseGPU {
		indices, err := opts.GPUIndices()
		if err != nil {
			return nil, err
		}
		if len(indices) == 1 && indices[0] == -1 {
			numDevices := gpu.NumDevices()
			if numDevices <= 0 {
				return nil, ErrNoGPUSupport
			}
			indices = indices[:0]
			for i := 0; i < numDevices; i++ {
				indices = append(indices, i)
			}
		}
		for _, deviceIndex := range indices {
			deviceIndex := deviceIndex
			factory := func() (GPUMatcher, error) {
				return gpu.NewMatcher(p.opts, deviceIndex)
			}
			p.workers = append(p.workers, newGPUWorker(p.opts, cache, p.input, p.output, factory))
		}
	} else {
		numThreads := opts.EffectiveNumThreads()
		for i := 0; i < numThreads; i++ {
			p.workers = append(p.workers, newCPUWorker(p.opts, cache, p.input, p.output, nil))
		}
	}

	return p, nil
}

// NumWorkers returns the worker count.
func (p *Pool) NumWorkers() int {
	return len(p.workers)
}

// Options returns the effective matching options, including the
// max_num_matches clamp applied during Setup.
func (p *Pool) Options() feature.SiftOptions {
	return p.opts
}

// Setup clamps max_num_matches to the largest descriptor count in the
// database, starts every worker, and waits for each to signal a valid setup.
// A setup failure aborts before any pair is dispatched.
func (p *Pool) Setup(ctx context.Context) error {
	maxNumFeatures, err := p.store.MaxNumDescriptors(ctx)
	if err != nil {
		return fmt.Errorf("max descriptor count: %w", err)
	}
	if maxNumFeatures < p.opts.MaxNumMatches {
		p.opts.MaxNumMatches = maxNumFeatures
	}

	for _, worker := range p.workers {
		worker.opts.MaxNumMatches = p.opts.MaxNumMatches
		worker.start()
	}

	var setupErr error
	for _, worker := range p.workers {
		if err := worker.awaitSetup(); err != nil && setupErr == nil {
			setupErr = err
		}
	}
	if setupErr != nil {
		p.shutdown()
		return setupErr
	}

	p.logger.Debug("pool ready",
		logging.Int("workers", len(p.workers)),
		logging.Bool("gpu", p.opts.UseGPU),
		logging.Int("max_num_matches", p.opts.MaxNumMatches))
	p.isSetup = true
	return nil
}

// Match dispatches a batch of candidate pairs and writes every result back
// through the cache. Callers hold the enclosing database transaction.
//
// Self-pairs are skipped; duplicates are collapsed by canonical pair id;
// pairs already present in the database are skipped. Exactly one result is
// popped per job pushed, regardless of worker completion order, and the
// output queue is empty on return.
func (p *Pool) Match(ctx context.Context, pairs []database.ImagePair) error {
	if !p.isSetup {
		return errors.New("matching: pool used before setup")
	}
	if len(pairs) == 0 {
		return nil
	}

	pairIDs := make(map[database.PairID]struct{}, len(pairs))

	var firstErr error
	numOutputs := 0
	for _, pair := range pairs {
		if pair.ID1 == pair.ID2 {
			continue
		}

		pairID := database.ImagePairToPairID(pair.ID1, pair.ID2)
		if _, seen := pairIDs[pairID]; seen {
			continue
		}
		pairIDs[pairID] = struct{}{}

		exists, err := p.cache.ExistsMatches(ctx, pair.ID1, pair.ID2)
		if err != nil {
			firstErr = fmt.Errorf("check existing matches: %w", err)
			break
		}
		if exists {
			continue
		}

		numOutputs++
		if !p.input.Push(matchJob{imageID1: pair.ID1, imageID2: pair.ID2}) {
			return errors.New("matching: input queue stopped during dispatch")
		}
	}

	for i := 0; i < numOutputs; i++ {
		job := p.output.Pop()
		if !job.Valid {
			return errors.New("matching: output queue stopped during dispatch")
		}
		output := job.Data

		if output.err != nil {
			if firstErr == nil {
				firstErr = output.err
			}
			continue
		}

		if len(output.matches) < p.opts.MinNumMatches {
			output.matches = nil
		}
		if err := p.cache.WriteMatches(ctx, output.imageID1, output.imageID2, output.matches); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("write matches: %w", err)
		}
	}

	if size := p.output.Size(); size != 0 {
		return fmt.Errorf("matching: output queue holds %d stray results", size)
	}
	return firstErr
}

// Close drains the queues, stops them, and joins every worker, in that
// order.
func (p *Pool) Close() {
	p.input.Wait()
	p.output.Wait()
	p.shutdown()
}

func (p *Pool) shutdown() {
	p.input.Stop()
	p.output.Stop()
	for _, worker := range p.workers {
		worker.join()
	}
}
