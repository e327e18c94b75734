package matching

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"parallax/internal/database"
	"parallax/internal/feature"
	"parallax/internal/logging"
)

// TransitiveMatcher densifies the match graph: if A matches B and B matches
// C, the pair (A, C) becomes a candidate. Each iteration re-reads the graph,
// so pairs matched in one iteration seed the next.
type TransitiveMatcher struct {
	opts   TransitiveOptions
	store  Store
	logger *slog.Logger
	cache  *Cache
	pool   *Pool
}

// NewTransitiveMatcher validates options and assembles the cache and worker
// pool.
func NewTransitiveMatcher(opts TransitiveOptions, siftOpts feature.SiftOptions, store Store, logger *slog.Logger, gpu *GPUProvider) (*TransitiveMatcher, error) {
	if err := opts.Check(); err != nil {
		return nil, err
	}
	cache := NewCache(opts.BatchSize, store)
	pool, err := NewPool(siftOpts, store, cache, logger, gpu)
	if err != nil {
		return nil, err
	}
	return &TransitiveMatcher{
		opts:   opts,
		store:  store,
		logger: logging.NewComponentLogger(logger, "transitive"),
		cache:  cache,
		pool:   pool,
	}, nil
}

// Run drives transitive matching to completion or cancellation.
func (m *TransitiveMatcher) Run(ctx context.Context) error {
	m.logger.Info("transitive feature matching",
		logging.String(logging.FieldRunID, uuid.NewString()),
		logging.Int("batch_size", m.opts.BatchSize),
		logging.Int("num_iterations", m.opts.NumIterations))

	if ctx.Err() != nil {
		return nil
	}

	if err := m.pool.Setup(ctx); err != nil {
		return err
	}
	defer m.pool.Close()

	if err := m.cache.Setup(ctx); err != nil {
		return err
	}

	for iteration := 0; iteration < m.opts.NumIterations; iteration++ {
		if ctx.Err() != nil {
			m.logger.Info("matching stopped")
			return nil
		}

		m.logger.Info("iteration",
			logging.Int("current", iteration+1),
			logging.Int("total", m.opts.NumIterations))

		batches, err := m.collectBatches(ctx)
		if err != nil {
			return err
		}

		source := &sliceSource{batches: batches}
		if err := runBatches(ctx, m.logger, m.store, m.pool, source, len(batches)); err != nil {
			return err
		}
	}
	return nil
}

// collectBatches reads the current match graph and enumerates length-two
// walks, deduplicated by pair id within the iteration and chunked into
// dispatch batches.
func (m *TransitiveMatcher) collectBatches(ctx context.Context) ([]pairBatch, error) {
	existingPairs, existingNumInliers, err := m.store.ReadNumMatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("read match graph: %w", err)
	}
	if len(existingPairs) != len(existingNumInliers) {
		return nil, fmt.Errorf("match graph arrays disagree: %d pairs, %d counts",
			len(existingPairs), len(existingNumInliers))
	}

	adjacency := make(map[uint32][]uint32)
	for _, pair := range existingPairs {
		adjacency[pair.ID1] = append(adjacency[pair.ID1], pair.ID2)
		adjacency[pair.ID2] = append(adjacency[pair.ID2], pair.ID1)
	}

	imageIDs := make([]uint32, 0, len(adjacency))
	for imageID := range adjacency {
		imageIDs = append(imageIDs, imageID)
	}
	sort.Slice(imageIDs, func(i, j int) bool { return imageIDs[i] < imageIDs[j] })

	seen := make(map[database.PairID]struct{})
	var pairs []database.ImagePair
	for _, imageID1 := range imageIDs {
		for _, imageID2 := range adjacency[imageID1] {
			for _, imageID3 := range adjacency[imageID2] {
				pairID := database.ImagePairToPairID(imageID1, imageID3)
				if _, ok := seen[pairID]; ok {
					continue
				}
				seen[pairID] = struct{}{}
				pairs = append(pairs, database.ImagePair{ID1: imageID1, ID2: imageID3})
			}
		}
	}

	var batches []pairBatch
	for start := 0; start < len(pairs); start += m.opts.BatchSize {
		end := minInt(len(pairs), start+m.opts.BatchSize)
		batches = append(batches, pairBatch{
			label: fmt.Sprintf("batch %d", len(batches)+1),
			pairs: pairs[start:end],
		})
	}
	return batches, nil
}

// sliceSource replays a precomputed batch list.
type sliceSource struct {
	batches []pairBatch
	idx     int
}

func (s *sliceSource) next(context.Context) (pairBatch, bool, error) {
	if s.idx >= len(s.batches) {
		return pairBatch{}, false, nil
	}
	batch := s.batches[s.idx]
	s.idx++
	return batch, true, nil
}
