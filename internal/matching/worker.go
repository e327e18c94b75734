package matching

import (
	"fmt"

	"parallax/internal/database"
	"parallax/internal/feature"
)

// matchJob travels from the dispatch loop through a worker and back. Exactly
// one result is produced per enqueued job; a failed descriptor load is
// carried in err so the accounting still balances.
type matchJob struct {
	imageID1 uint32
	imageID2 uint32
	matches  feature.Matches
	err      error
}

// cpuKernel is the CPU matching entry point. Swappable in tests.
type cpuKernel func(opts feature.SiftOptions, d1, d2 feature.Descriptors) feature.Matches

// matcherWorker runs one long-lived matching loop. With gpuFactory set it is
// a GPU worker pinned to one device; otherwise it matches on the CPU.
type matcherWorker struct {
	opts   feature.SiftOptions
	cache  *Cache
	input  *JobQueue[matchJob]
	output *JobQueue[matchJob]

	kernel     cpuKernel
	gpuFactory func() (GPUMatcher, error)

	// Image ids resident on the device per operand slot. Only the worker
	// goroutine touches these.
	slots [2]uint32

	setup chan error
	done  chan struct{}
}

func newCPUWorker(opts feature.SiftOptions, cache *Cache, input, output *JobQueue[matchJob], kernel cpuKernel) *matcherWorker {
	if kernel == nil {
		kernel = feature.MatchSiftCPU
	}
	return &matcherWorker{
		opts:   opts,
		cache:  cache,
		input:  input,
		output: output,
		kernel: kernel,
		setup:  make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func newGPUWorker(opts feature.SiftOptions, cache *Cache, input, output *JobQueue[matchJob], factory func() (GPUMatcher, error)) *matcherWorker {
	return &matcherWorker{
		opts:       opts,
		cache:      cache,
		input:      input,
		output:     output,
		gpuFactory: factory,
		slots:      [2]uint32{database.InvalidImageID, database.InvalidImageID},
		setup:      make(chan error, 1),
		done:       make(chan struct{}),
	}
}

func (w *matcherWorker) start() {
	go w.run()
}

// awaitSetup blocks until the worker has signaled whether its setup
// succeeded.
func (w *matcherWorker) awaitSetup() error {
	return <-w.setup
}

func (w *matcherWorker) join() {
	<-w.done
}

func (w *matcherWorker) run() {
	defer close(w.done)

	if w.gpuFactory != nil {
		w.runGPU()
		return
	}

	w.setup <- nil
	for {
		job := w.input.Pop()
		if !job.Valid {
			return
		}
		data := job.Data
		data.matches, data.err = w.matchCPU(data.imageID1, data.imageID2)
		w.finish(data)
	}
}

func (w *matcherWorker) matchCPU(imageID1, imageID2 uint32) (feature.Matches, error) {
	descriptors1, err := w.cache.Descriptors(imageID1)
	if err != nil {
		return nil, fmt.Errorf("descriptors for image %d: %w", imageID1, err)
	}
	descriptors2, err := w.cache.Descriptors(imageID2)
	if err != nil {
		return nil, fmt.Errorf("descriptors for image %d: %w", imageID2, err)
	}
	return w.kernel(w.opts, descriptors1, descriptors2), nil
}

func (w *matcherWorker) runGPU() {
	matcher, err := w.gpuFactory()
	if err != nil {
		w.setup <- fmt.Errorf("gpu matcher setup: %w", err)
		return
	}
	defer func() { _ = matcher.Close() }()

	w.setup <- nil
	for {
		job := w.input.Pop()
		if !job.Valid {
			return
		}
		data := job.Data
		data.matches, data.err = w.matchGPU(matcher, data.imageID1, data.imageID2)
		w.finish(data)
	}
}

func (w *matcherWorker) matchGPU(matcher GPUMatcher, imageID1, imageID2 uint32) (feature.Matches, error) {
	descriptors1, err := w.slotDescriptors(0, imageID1)
	if err != nil {
		return nil, err
	}
	descriptors2, err := w.slotDescriptors(1, imageID2)
	if err != nil {
		return nil, err
	}
	matches, err := matcher.Match(descriptors1, descriptors2)
	if err != nil {
		return nil, fmt.Errorf("gpu match (%d, %d): %w", imageID1, imageID2, err)
	}
	return matches, nil
}

// slotDescriptors returns the descriptors to upload for an operand slot, or
// nil when the requested image is already resident there. Uploading
// dominates kernel time, so pair sources that traverse pairs in a
// locality-preserving order make this elision pay off.
func (w *matcherWorker) slotDescriptors(slot int, imageID uint32) (*feature.Descriptors, error) {
	if w.slots[slot] == imageID {
		return nil, nil
	}
	descriptors, err := w.cache.Descriptors(imageID)
	if err != nil {
		return nil, fmt.Errorf("descriptors for image %d: %w", imageID, err)
	}
	w.slots[slot] = imageID
	return &descriptors, nil
}

// finish applies the minimum-match threshold and hands the result back. The
// dispatch loop re-applies the threshold defensively before writing.
func (w *matcherWorker) finish(data matchJob) {
	if data.err == nil && len(data.matches) < w.opts.MinNumMatches {
		data.matches = nil
	}
	w.output.Push(data)
}
