package matching

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"parallax/internal/database"
	"parallax/internal/feature"
	"parallax/internal/logging"
)

// ExhaustiveMatcher matches every image against every other image,
// block by block so each block's descriptors fit the cache.
type ExhaustiveMatcher struct {
	opts   ExhaustiveOptions
	store  Store
	logger *slog.Logger
	cache  *Cache
	pool   *Pool
}

// NewExhaustiveMatcher validates options and assembles the cache and worker
// pool. The cache holds five blocks so the sliding block window never
// thrashes.
func NewExhaustiveMatcher(opts ExhaustiveOptions, siftOpts feature.SiftOptions, store Store, logger *slog.Logger, gpu *GPUProvider) (*ExhaustiveMatcher, error) {
	if err := opts.Check(); err != nil {
		return nil, err
	}
	cache := NewCache(5*opts.BlockSize, store)
	pool, err := NewPool(siftOpts, store, cache, logger, gpu)
	if err != nil {
		return nil, err
	}
	return &ExhaustiveMatcher{
		opts:   opts,
		store:  store,
		logger: logging.NewComponentLogger(logger, "exhaustive"),
		cache:  cache,
		pool:   pool,
	}, nil
}

// Run drives exhaustive matching to completion or cancellation.
func (m *ExhaustiveMatcher) Run(ctx context.Context) error {
	m.logger.Info("exhaustive feature matching",
		logging.String(logging.FieldRunID, uuid.NewString()),
		logging.Int("block_size", m.opts.BlockSize))

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

	imageIDs := m.cache.ImageIDs()
	source := newExhaustiveSource(imageIDs, m.opts.BlockSize)
	return runBatches(ctx, m.logger, m.store, m.pool, source, source.numBatches())
}

// exhaustiveSource walks all block pairs. Within a block intersection, the
// anti-duplication predicate emits within-block pairs once and cross-block
// pairs only from the lower-block-index side; the asymmetric <= versus <
// treatment on the diagonal is deliberate and drives descriptor locality, so
// it must not be simplified to a plain index comparison.
type exhaustiveSource struct {
	imageIDs  []uint32
	blockSize int
	startIdx1 int
	startIdx2 int
}

func newExhaustiveSource(imageIDs []uint32, blockSize int) *exhaustiveSource {
	return &exhaustiveSource{imageIDs: imageIDs, blockSize: blockSize}
}

func (s *exhaustiveSource) numBlocks() int {
	return (len(s.imageIDs) + s.blockSize - 1) / s.blockSize
}

func (s *exhaustiveSource) numBatches() int {
	n := s.numBlocks()
	return n * n
}

func (s *exhaustiveSource) next(context.Context) (pairBatch, bool, error) {
	numImages := len(s.imageIDs)
	if s.startIdx1 >= numImages {
		return pairBatch{}, false, nil
	}

	endIdx1 := minInt(numImages, s.startIdx1+s.blockSize) - 1
	endIdx2 := minInt(numImages, s.startIdx2+s.blockSize) - 1

	pairs := make([]database.ImagePair, 0, s.blockSize*(s.blockSize-1)/2)
	for idx1 := s.startIdx1; idx1 <= endIdx1; idx1++ {
		for idx2 := s.startIdx2; idx2 <= endIdx2; idx2++ {
			blockIdx1 := idx1 % s.blockSize
			blockIdx2 := idx2 % s.blockSize
			if (idx1 > idx2 && blockIdx1 <= blockIdx2) ||
				(idx1 < idx2 && blockIdx1 < blockIdx2) {
				pairs = append(pairs, database.ImagePair{ID1: s.imageIDs[idx1], ID2: s.imageIDs[idx2]})
			}
		}
	}

	numBlocks := s.numBlocks()
	batch := pairBatch{
		label: fmt.Sprintf("block [%d/%d, %d/%d]",
			s.startIdx1/s.blockSize+1, numBlocks,
			s.startIdx2/s.blockSize+1, numBlocks),
		pairs: pairs,
	}

	s.startIdx2 += s.blockSize
	if s.startIdx2 >= numImages {
		s.startIdx2 = 0
		s.startIdx1 += s.blockSize
	}
	return batch, true, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
