package matching

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"sync"

	"parallax/internal/database"
	"parallax/internal/feature"
)

// Cache fronts the database for the matching pipeline. Camera and image
// metadata are loaded eagerly during Setup and are read-only afterwards;
// descriptors are loaded lazily into a bounded LRU. One mutex serializes the
// LRU state and every database access made after Setup, because the
// underlying store is not reentrant.
type Cache struct {
	store     Store
	cacheSize int

	cameras map[uint32]database.Camera
	images  map[uint32]database.Image

	mu  sync.Mutex
	lru *descriptorLRU
}

// NewCache creates a cache holding at most cacheSize descriptor sets.
// Drivers size it so that one dispatch batch's working set fits.
func NewCache(cacheSize int, store Store) *Cache {
	return &Cache{
		store:     store,
		cacheSize: cacheSize,
		cameras:   make(map[uint32]database.Camera),
		images:    make(map[uint32]database.Image),
	}
}

// Setup eagerly loads the camera and image tables and prepares the
// descriptor cache. Must be called before any worker touches the cache.
func (c *Cache) Setup(ctx context.Context) error {
	cameras, err := c.store.ReadAllCameras(ctx)
	if err != nil {
		return fmt.Errorf("load cameras: %w", err)
	}
	for _, camera := range cameras {
		c.cameras[camera.ID] = camera
	}

	images, err := c.store.ReadAllImages(ctx)
	if err != nil {
		return fmt.Errorf("load images: %w", err)
	}
	for _, image := range images {
		c.images[image.ID] = image
	}

	c.lru = newDescriptorLRU(c.cacheSize, func(imageID uint32) (feature.Descriptors, error) {
		return c.store.ReadDescriptors(ctx, imageID)
	})
	return nil
}

// Camera returns the camera for the given id.
func (c *Cache) Camera(cameraID uint32) (database.Camera, bool) {
	camera, ok := c.cameras[cameraID]
	return camera, ok
}

// Image returns the image for the given id.
func (c *Cache) Image(imageID uint32) (database.Image, bool) {
	image, ok := c.images[imageID]
	return image, ok
}

// ImageIDs returns all image ids in ascending order.
func (c *Cache) ImageIDs() []uint32 {
	ids := make([]uint32, 0, len(c.images))
	for id := range c.images {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Descriptors returns the descriptor set for an image, loading it from the
// database on a cache miss. A load failure is fatal for the run.
func (c *Cache) Descriptors(imageID uint32) (feature.Descriptors, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.get(imageID)
}

// Matches reads the stored matches for a pair.
func (c *Cache) Matches(ctx context.Context, imageID1, imageID2 uint32) (feature.Matches, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.ReadMatches(ctx, imageID1, imageID2)
}

// ExistsMatches reports whether a match record exists for the pair.
func (c *Cache) ExistsMatches(ctx context.Context, imageID1, imageID2 uint32) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.ExistsMatches(ctx, imageID1, imageID2)
}

// WriteMatches stores matches for a pair.
func (c *Cache) WriteMatches(ctx context.Context, imageID1, imageID2 uint32, matches feature.Matches) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.WriteMatches(ctx, imageID1, imageID2, matches)
}

// DeleteMatches removes the match record for a pair.
func (c *Cache) DeleteMatches(ctx context.Context, imageID1, imageID2 uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.DeleteMatches(ctx, imageID1, imageID2)
}

// descriptorLRU is a strict least-recently-used cache keyed by image id.
// Callers hold the cache mutex.
type descriptorLRU struct {
	capacity int
	load     func(uint32) (feature.Descriptors, error)
	order    *list.List
	entries  map[uint32]*list.Element
}

type lruEntry struct {
	imageID     uint32
	descriptors feature.Descriptors
}

func newDescriptorLRU(capacity int, load func(uint32) (feature.Descriptors, error)) *descriptorLRU {
	if capacity < 1 {
		capacity = 1
	}
	return &descriptorLRU{
		capacity: capacity,
		load:     load,
		order:    list.New(),
		entries:  make(map[uint32]*list.Element, capacity),
	}
}

func (l *descriptorLRU) get(imageID uint32) (feature.Descriptors, error) {
	if elem, ok := l.entries[imageID]; ok {
		l.order.MoveToFront(elem)
		return elem.Value.(*lruEntry).descriptors, nil
	}

	descriptors, err := l.load(imageID)
	if err != nil {
		return feature.Descriptors{}, err
	}

	elem := l.order.PushFront(&lruEntry{imageID: imageID, descriptors: descriptors})
	l.entries[imageID] = elem

	if l.order.Len() > l.capacity {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.entries, oldest.Value.(*lruEntry).imageID)
	}
	return descriptors, nil
}

func (l *descriptorLRU) len() int {
	return l.order.Len()
}
