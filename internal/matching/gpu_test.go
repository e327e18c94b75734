package matching

import (
	"context"
	"errors"
	"testing"

	"parallax/internal/database"
	"parallax/internal/feature"
	"parallax/internal/logging"
	"parallax/internal/testsupport"
)

// fakeGPUMatcher emulates device-resident matching: uploaded operands stay
// resident per slot and nil operands reuse them. Uploads are counted to
// verify the worker's elision.
type fakeGPUMatcher struct {
	opts     feature.SiftOptions
	resident [2]feature.Descriptors
	uploads  int
	closed   bool
}

func (m *fakeGPUMatcher) Match(descriptors1, descriptors2 *feature.Descriptors) (feature.Matches, error) {
	if descriptors1 != nil {
		m.resident[0] = *descriptors1
		m.uploads++
	}
	if descriptors2 != nil {
		m.resident[1] = *descriptors2
		m.uploads++
	}
	return feature.MatchSiftCPU(m.opts, m.resident[0], m.resident[1]), nil
}

func (m *fakeGPUMatcher) Close() error {
	m.closed = true
	return nil
}

func newGPUTestPool(t *testing.T, store Store, siftOpts feature.SiftOptions, provider *GPUProvider) *Pool {
	t.Helper()
	ctx := context.Background()

	cache := NewCache(16, store)
	if err := cache.Setup(ctx); err != nil {
		t.Fatalf("cache.Setup: %v", err)
	}

	pool, err := NewPool(siftOpts, store, cache, logging.NewNop(), provider)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if err := pool.Setup(ctx); err != nil {
		t.Fatalf("pool.Setup: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestGPUWorkerReusesResidentDescriptors(t *testing.T) {
	store := newFakeStore()
	slots := []int{0, 1, 2}
	for imageID := uint32(1); imageID <= 4; imageID++ {
		store.addImage(imageID, imageName(int(imageID)), [3]float64{}, testsupport.OrthogonalDescriptors(t, slots...))
	}

	opts := testSiftOptions()
	opts.UseGPU = true
	opts.GPUIndex = "0"

	matcher := &fakeGPUMatcher{opts: opts}
	provider := &GPUProvider{
		NumDevices: func() int { return 1 },
		NewMatcher: func(feature.SiftOptions, int) (GPUMatcher, error) { return matcher, nil },
	}

	pool := newGPUTestPool(t, store, opts, provider)

	// A locality-preserving traversal: the first operand stays pinned on
	// image 1, so it uploads once.
	pairs := []database.ImagePair{
		{ID1: 1, ID2: 2},
		{ID1: 1, ID2: 3},
		{ID1: 1, ID2: 4},
	}
	if err := pool.Match(context.Background(), pairs); err != nil {
		t.Fatalf("Match: %v", err)
	}

	// 2 uploads for the first pair, then 1 per remaining pair.
	if matcher.uploads != 4 {
		t.Errorf("uploads = %d, want 4", matcher.uploads)
	}
	for imageID := uint32(2); imageID <= 4; imageID++ {
		exists, _ := store.ExistsMatches(context.Background(), 1, imageID)
		if !exists {
			t.Errorf("pair (1, %d) missing", imageID)
		}
	}
}

func TestGPUWorkerSetupFailureAbortsPool(t *testing.T) {
	store := newFakeStore()
	cache := NewCache(4, store)
	if err := cache.Setup(context.Background()); err != nil {
		t.Fatalf("cache.Setup: %v", err)
	}

	opts := testSiftOptions()
	opts.UseGPU = true
	opts.GPUIndex = "0"

	setupErr := errors.New("context creation failed")
	provider := &GPUProvider{
		NumDevices: func() int { return 1 },
		NewMatcher: func(feature.SiftOptions, int) (GPUMatcher, error) { return nil, setupErr },
	}

	pool, err := NewPool(opts, store, cache, logging.NewNop(), provider)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if err := pool.Setup(context.Background()); !errors.Is(err, setupErr) {
		t.Fatalf("Setup error = %v, want wrapped %v", err, setupErr)
	}
}

func TestGPUIndexMinusOneExpandsToAllDevices(t *testing.T) {
	store := newFakeStore()
	cache := NewCache(4, store)

	opts := testSiftOptions()
	opts.UseGPU = true
	opts.GPUIndex = "-1"

	provider := &GPUProvider{
		NumDevices: func() int { return 3 },
		NewMatcher: func(o feature.SiftOptions, device int) (GPUMatcher, error) {
			return &fakeGPUMatcher{opts: o}, nil
		},
	}

	pool, err := NewPool(opts, store, cache, logging.NewNop(), provider)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if pool.NumWorkers() != 3 {
		t.Errorf("NumWorkers = %d, want 3", pool.NumWorkers())
	}
	if err := cache.Setup(context.Background()); err != nil {
		t.Fatalf("cache.Setup: %v", err)
	}
	if err := pool.Setup(context.Background()); err != nil {
		t.Fatalf("pool.Setup: %v", err)
	}
	pool.Close()
}

func TestDefaultGPUProviderRefusesSetup(t *testing.T) {
	store := newFakeStore()
	cache := NewCache(4, store)

	opts := testSiftOptions()
	opts.UseGPU = true
	opts.GPUIndex = "-1"

	if _, err := NewPool(opts, store, cache, logging.NewNop(), nil); !errors.Is(err, ErrNoGPUSupport) {
		t.Fatalf("expected ErrNoGPUSupport, got %v", err)
	}
}
