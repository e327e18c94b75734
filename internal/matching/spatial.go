package matching

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"parallax/internal/database"
	"parallax/internal/feature"
	"parallax/internal/gps"
	"parallax/internal/knn"
	"parallax/internal/logging"
)

// SpatialMatcher matches each image against its nearest neighbors in space,
// using translation priors as locations. GPS priors are projected to
// Cartesian coordinates first.
type SpatialMatcher struct {
	opts   SpatialOptions
	store  Store
	logger *slog.Logger
	cache  *Cache
	pool   *Pool
}

// NewSpatialMatcher validates options and assembles the cache and worker
// pool.
func NewSpatialMatcher(opts SpatialOptions, siftOpts feature.SiftOptions, store Store, logger *slog.Logger, gpu *GPUProvider) (*SpatialMatcher, error) {
	if err := opts.Check(); err != nil {
		return nil, err
	}
	cache := NewCache(5*opts.MaxNumNeighbors, store)
	pool, err := NewPool(siftOpts, store, cache, logger, gpu)
	if err != nil {
		return nil, err
	}
	return &SpatialMatcher{
		opts:   opts,
		store:  store,
		logger: logging.NewComponentLogger(logger, "spatial"),
		cache:  cache,
		pool:   pool,
	}, nil
}

// Run drives spatial matching to completion or cancellation.
func (m *SpatialMatcher) Run(ctx context.Context) error {
	m.logger.Info("spatial feature matching",
		logging.String(logging.FieldRunID, uuid.NewString()),
		logging.Int("max_num_neighbors", m.opts.MaxNumNeighbors),
		logging.Float64("max_distance", m.opts.MaxDistance))

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
	locations, locationIdxs := m.collectLocations(imageIDs)
	if len(locations) == 0 {
		m.logger.Info("no images with location data")
		return nil
	}

	m.logger.Debug("building search index", logging.Int("num_locations", len(locations)))
	index, err := knn.Build(locations)
	if err != nil {
		return fmt.Errorf("build spatial index: %w", err)
	}

	knnCount := minInt(m.opts.MaxNumNeighbors, len(locations))
	neighbors := index.SearchAll(knnCount, m.pool.Options().EffectiveNumThreads())

	source := &spatialSource{
		opts:         m.opts,
		imageIDs:     imageIDs,
		locationIdxs: locationIdxs,
		neighbors:    neighbors,
	}
	return runBatches(ctx, m.logger, m.store, m.pool, source, len(locations))
}

// collectLocations selects images with a usable location prior and converts
// each to a 3-D point. Returned ordinals map locations back to positions in
// imageIDs.
func (m *SpatialMatcher) collectLocations(imageIDs []uint32) ([][3]float32, []int) {
	locations := make([][3]float32, 0, len(imageIDs))
	locationIdxs := make([]int, 0, len(imageIDs))

	for i, imageID := range imageIDs {
		image, ok := m.cache.Image(imageID)
		if !ok || !image.HasLocationPrior(m.opts.IgnoreZ) {
			continue
		}

		var x, y, z float64
		if m.opts.IsGPS {
			alt := image.PriorT[2]
			if m.opts.IgnoreZ {
				alt = 0
			}
			xyz := gps.EllToXYZ(gps.Ell{Lat: image.PriorT[0], Lon: image.PriorT[1], Alt: alt})
			x, y, z = xyz.X, xyz.Y, xyz.Z
		} else {
			x, y = image.PriorT[0], image.PriorT[1]
			if !m.opts.IgnoreZ {
				z = image.PriorT[2]
			}
		}

		locations = append(locations, [3]float32{float32(x), float32(y), float32(z)})
		locationIdxs = append(locationIdxs, i)
	}
	return locations, locationIdxs
}

// spatialSource emits one batch per indexed location: its neighbors sorted
// by distance, stopping at the first neighbor beyond the distance limit.
type spatialSource struct {
	opts         SpatialOptions
	imageIDs     []uint32
	locationIdxs []int
	neighbors    [][]knn.Result
	idx          int
}

func (s *spatialSource) next(context.Context) (pairBatch, bool, error) {
	if s.idx >= len(s.neighbors) {
		return pairBatch{}, false, nil
	}

	maxDistSq := float32(s.opts.MaxDistance * s.opts.MaxDistance)
	imageID := s.imageIDs[s.locationIdxs[s.idx]]

	var pairs []database.ImagePair
	for _, neighbor := range s.neighbors[s.idx] {
		if neighbor.Ordinal == s.idx {
			continue
		}
		// Neighbors arrive sorted by distance, so the first one out of
		// range ends the scan.
		if neighbor.DistSq > maxDistSq {
			break
		}
		neighborID := s.imageIDs[s.locationIdxs[neighbor.Ordinal]]
		pairs = append(pairs, database.ImagePair{ID1: imageID, ID2: neighborID})
	}

	batch := pairBatch{
		label: fmt.Sprintf("image [%d/%d]", s.idx+1, len(s.neighbors)),
		pairs: pairs,
	}
	s.idx++
	return batch, true, nil
}
