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

// SequentialMatcher matches each image against its neighbors in name order.
// Suitable for video frames and other ordered captures.
type SequentialMatcher struct {
	opts   SequentialOptions
	store  Store
	logger *slog.Logger
	cache  *Cache
	pool   *Pool
}

// NewSequentialMatcher validates options and assembles the cache and worker
// pool.
func NewSequentialMatcher(opts SequentialOptions, siftOpts feature.SiftOptions, store Store, logger *slog.Logger, gpu *GPUProvider) (*SequentialMatcher, error) {
	if err := opts.Check(); err != nil {
		return nil, err
	}
	cache := NewCache(5*opts.Overlap, store)
	pool, err := NewPool(siftOpts, store, cache, logger, gpu)
	if err != nil {
		return nil, err
	}
	return &SequentialMatcher{
		opts:   opts,
		store:  store,
		logger: logging.NewComponentLogger(logger, "sequential"),
		cache:  cache,
		pool:   pool,
	}, nil
}

// Run drives sequential matching to completion or cancellation.
func (m *SequentialMatcher) Run(ctx context.Context) error {
	m.logger.Info("sequential feature matching",
		logging.String(logging.FieldRunID, uuid.NewString()),
		logging.Int("overlap", m.opts.Overlap),
		logging.Bool("quadratic_overlap", m.opts.QuadraticOverlap))

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

	orderedIDs := m.orderedImageIDs()
	source := &sequentialSource{opts: m.opts, imageIDs: orderedIDs}
	return runBatches(ctx, m.logger, m.store, m.pool, source, len(orderedIDs))
}

// orderedImageIDs returns all image ids sorted by image name.
func (m *SequentialMatcher) orderedImageIDs() []uint32 {
	ids := m.cache.ImageIDs()
	images := make([]database.Image, 0, len(ids))
	for _, id := range ids {
		if image, ok := m.cache.Image(id); ok {
			images = append(images, image)
		}
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })

	ordered := make([]uint32, len(images))
	for i, image := range images {
		ordered[i] = image.ID
	}
	return ordered
}

// sequentialSource emits one batch per image position: the linear window
// (i, i+k) for k in [1, overlap], plus power-of-two offsets (i, i+2^k) for
// k in [0, overlap) when quadratic overlap is on.
type sequentialSource struct {
	opts     SequentialOptions
	imageIDs []uint32
	idx      int
}

func (s *sequentialSource) next(context.Context) (pairBatch, bool, error) {
	numImages := len(s.imageIDs)
	if s.idx >= numImages {
		return pairBatch{}, false, nil
	}

	imageID1 := s.imageIDs[s.idx]
	pairs := make([]database.ImagePair, 0, s.opts.Overlap)

	for k := 1; k <= s.opts.Overlap; k++ {
		idx2 := s.idx + k
		if idx2 >= numImages {
			break
		}
		pairs = append(pairs, database.ImagePair{ID1: imageID1, ID2: s.imageIDs[idx2]})
	}

	if s.opts.QuadraticOverlap {
		for k := 0; k < s.opts.Overlap; k++ {
			idx2 := s.idx + (1 << k)
			if idx2 >= numImages {
				break
			}
			pairs = append(pairs, database.ImagePair{ID1: imageID1, ID2: s.imageIDs[idx2]})
		}
	}

	batch := pairBatch{
		label: fmt.Sprintf("image [%d/%d]", s.idx+1, numImages),
		pairs: pairs,
	}
	s.idx++
	return batch, true, nil
}
