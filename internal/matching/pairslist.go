package matching

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"parallax/internal/database"
	"parallax/internal/feature"
	"parallax/internal/logging"
)

// ImagePairsMatcher matches exactly the pairs named in a user-supplied list
// file: one pair of image names per line, blank lines and #-comments
// skipped.
type ImagePairsMatcher struct {
	opts   ImagePairsOptions
	store  Store
	logger *slog.Logger
	cache  *Cache
	pool   *Pool
}

// NewImagePairsMatcher validates options and assembles the cache and worker
// pool.
func NewImagePairsMatcher(opts ImagePairsOptions, siftOpts feature.SiftOptions, store Store, logger *slog.Logger, gpu *GPUProvider) (*ImagePairsMatcher, error) {
	if err := opts.Check(); err != nil {
		return nil, err
	}
	cache := NewCache(opts.BlockSize, store)
	pool, err := NewPool(siftOpts, store, cache, logger, gpu)
	if err != nil {
		return nil, err
	}
	return &ImagePairsMatcher{
		opts:   opts,
		store:  store,
		logger: logging.NewComponentLogger(logger, "image_pairs"),
		cache:  cache,
		pool:   pool,
	}, nil
}

// Run drives list matching to completion or cancellation.
func (m *ImagePairsMatcher) Run(ctx context.Context) error {
	m.logger.Info("custom feature matching",
		logging.String(logging.FieldRunID, uuid.NewString()),
		logging.String("match_list", m.opts.MatchListPath))

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

	pairs, err := m.readPairList()
	if err != nil {
		return err
	}

	var batches []pairBatch
	for start := 0; start < len(pairs); start += m.opts.BlockSize {
		end := minInt(len(pairs), start+m.opts.BlockSize)
		batches = append(batches, pairBatch{
			label: fmt.Sprintf("block [%d/%d]", len(batches)+1, (len(pairs)+m.opts.BlockSize-1)/m.opts.BlockSize),
			pairs: pairs[start:end],
		})
	}

	source := &sliceSource{batches: batches}
	return runBatches(ctx, m.logger, m.store, m.pool, source, len(batches))
}

// readPairList parses the match list, resolving names through the metadata
// cache. Unresolvable or malformed lines are reported and skipped.
func (m *ImagePairsMatcher) readPairList() ([]database.ImagePair, error) {
	nameToID := make(map[string]uint32, len(m.cache.ImageIDs()))
	for _, imageID := range m.cache.ImageIDs() {
		if image, ok := m.cache.Image(imageID); ok {
			nameToID[image.Name] = imageID
		}
	}

	file, err := os.Open(m.opts.MatchListPath)
	if err != nil {
		return nil, fmt.Errorf("open match list: %w", err)
	}
	defer file.Close()

	var pairs []database.ImagePair
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			m.logger.Warn("malformed match list line", logging.String("line", line))
			continue
		}

		imageID1, ok := nameToID[fields[0]]
		if !ok {
			m.logger.Warn("image does not exist", logging.String("name", fields[0]))
			continue
		}
		imageID2, ok := nameToID[fields[1]]
		if !ok {
			m.logger.Warn("image does not exist", logging.String("name", fields[1]))
			continue
		}

		pairs = append(pairs, database.ImagePair{ID1: imageID1, ID2: imageID2})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read match list: %w", err)
	}
	return pairs, nil
}
