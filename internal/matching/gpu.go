package matching

import (
	"errors"

	"parallax/internal/feature"
)

// ErrNoGPUSupport is returned by the default GPU provider. GPU kernels live
// outside this module; a build that links one replaces DefaultGPUProvider.
var ErrNoGPUSupport = errors.New("matching: no GPU matcher available in this build")

// GPUMatcher matches descriptors resident on a single device. A nil operand
// tells the matcher to reuse the descriptors uploaded for that operand slot
// by the previous call; the worker tracks slot residency and performs the
// elision.
type GPUMatcher interface {
	Match(descriptors1, descriptors2 *feature.Descriptors) (feature.Matches, error)
	Close() error
}

// GPUProvider enumerates devices and creates device-pinned matchers. Matcher
// creation may fail (driver or context initialization); that failure aborts
// the run before any pair is dispatched.
type GPUProvider struct {
	NumDevices func() int
	NewMatcher func(opts feature.SiftOptions, deviceIndex int) (GPUMatcher, error)
}

// DefaultGPUProvider is used when no provider is supplied. It reports zero
// devices and refuses to create matchers.
var DefaultGPUProvider = GPUProvider{
	NumDevices: func() int { return 0 },
	NewMatcher: func(feature.SiftOptions, int) (GPUMatcher, error) {
		return nil, ErrNoGPUSupport
	},
}
