package matching

import (
	"context"
	"fmt"
	"sync"

	"parallax/internal/database"
	"parallax/internal/feature"
)

// fakeStore is an in-memory Store for tests that need to observe database
// traffic, such as descriptor load counting for the LRU cache.
type fakeStore struct {
	mu              sync.Mutex
	cameras         []database.Camera
	images          []database.Image
	descriptors     map[uint32]feature.Descriptors
	matches         map[database.PairID]feature.Matches
	descriptorReads map[uint32]int
	failDescriptors bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		descriptors:     make(map[uint32]feature.Descriptors),
		matches:         make(map[database.PairID]feature.Matches),
		descriptorReads: make(map[uint32]int),
	}
}

func (s *fakeStore) addImage(imageID uint32, name string, priorT [3]float64, descriptors feature.Descriptors) {
	s.images = append(s.images, database.Image{ID: imageID, Name: name, CameraID: 1, PriorT: priorT})
	s.descriptors[imageID] = descriptors
}

func (s *fakeStore) ReadAllCameras(context.Context) ([]database.Camera, error) {
	return s.cameras, nil
}

func (s *fakeStore) ReadAllImages(context.Context) ([]database.Image, error) {
	return s.images, nil
}

func (s *fakeStore) ReadDescriptors(_ context.Context, imageID uint32) (feature.Descriptors, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDescriptors {
		return feature.Descriptors{}, fmt.Errorf("descriptors for image %d: %w", imageID, database.ErrNotFound)
	}
	s.descriptorReads[imageID]++
	descriptors, ok := s.descriptors[imageID]
	if !ok {
		return feature.Descriptors{}, fmt.Errorf("descriptors for image %d: %w", imageID, database.ErrNotFound)
	}
	return descriptors, nil
}

func (s *fakeStore) ReadMatches(_ context.Context, imageID1, imageID2 uint32) (feature.Matches, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := s.matches[database.ImagePairToPairID(imageID1, imageID2)]
	if database.ShouldSwapPair(imageID1, imageID2) {
		matches = matches.Swapped()
	}
	return matches, nil
}

func (s *fakeStore) ExistsMatches(_ context.Context, imageID1, imageID2 uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.matches[database.ImagePairToPairID(imageID1, imageID2)]
	return ok, nil
}

func (s *fakeStore) WriteMatches(_ context.Context, imageID1, imageID2 uint32, matches feature.Matches) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if database.ShouldSwapPair(imageID1, imageID2) {
		matches = matches.Swapped()
	}
	s.matches[database.ImagePairToPairID(imageID1, imageID2)] = matches
	return nil
}

func (s *fakeStore) DeleteMatches(_ context.Context, imageID1, imageID2 uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, database.ImagePairToPairID(imageID1, imageID2))
	return nil
}

func (s *fakeStore) ReadNumMatches(context.Context) ([]database.ImagePair, []int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pairs []database.ImagePair
	var counts []int
	for pairID, matches := range s.matches {
		id1, id2 := database.PairIDToImagePair(pairID)
		pairs = append(pairs, database.ImagePair{ID1: id1, ID2: id2})
		counts = append(counts, len(matches))
	}
	return pairs, counts, nil
}

func (s *fakeStore) MaxNumDescriptors(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maxRows := 0
	for _, descriptors := range s.descriptors {
		if descriptors.Rows > maxRows {
			maxRows = descriptors.Rows
		}
	}
	return maxRows, nil
}

func (s *fakeStore) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (s *fakeStore) numDescriptorReads(imageID uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptorReads[imageID]
}
