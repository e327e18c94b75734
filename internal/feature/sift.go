package feature

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
)

// SiftOptions are the global descriptor-matching options shared by every
// strategy. The threshold fields follow the conventions of 512-normalized
// uint8 SIFT descriptors: similarity is the dot product of two rows, and
// distances are angles between descriptor vectors.
type SiftOptions struct {
	// NumThreads is the number of CPU matcher workers. Values <= 0 select
	// one worker per logical CPU.
	NumThreads int
	// UseGPU switches to GPU matcher workers, one per selected device.
	UseGPU bool
	// GPUIndex is a comma-separated device list. A single "-1" selects all
	// available devices.
	GPUIndex string
	// MaxRatio is the maximum ratio between first and second best match
	// distances (Lowe ratio test).
	MaxRatio float64
	// MaxDistance is the maximum angular distance of an accepted match.
	MaxDistance float64
	// CrossCheck keeps only matches that are mutual best candidates.
	CrossCheck bool
	// MinNumMatches is the threshold below which a result is normalized to
	// an empty match set before it is written.
	MinNumMatches int
	// MaxNumMatches bounds the number of matches per pair. Clamped to the
	// maximum descriptor count present in the database during pool setup.
	MaxNumMatches int
}

// DefaultSiftOptions returns the stock matching options.
func DefaultSiftOptions() SiftOptions {
	return SiftOptions{
		NumThreads:    -1,
		UseGPU:        false,
		GPUIndex:      "-1",
		MaxRatio:      0.8,
		MaxDistance:   0.7,
		CrossCheck:    true,
		MinNumMatches: 15,
		MaxNumMatches: 32768,
	}
}

// Check validates the options before any worker starts.
func (o SiftOptions) Check() error {
	if o.MaxRatio <= 0 {
		return fmt.Errorf("sift options: max_ratio must be positive, got %v", o.MaxRatio)
	}
	if o.MaxDistance <= 0 {
		return fmt.Errorf("sift options: max_distance must be positive, got %v", o.MaxDistance)
	}
	if o.MaxNumMatches <= 0 {
		return fmt.Errorf("sift options: max_num_matches must be positive, got %d", o.MaxNumMatches)
	}
	if o.MinNumMatches < 0 {
		return fmt.Errorf("sift options: min_num_matches must not be negative, got %d", o.MinNumMatches)
	}
	if _, err := o.GPUIndices(); err != nil {
		return err
	}
	return nil
}

// EffectiveNumThreads resolves NumThreads against the host CPU count.
func (o SiftOptions) EffectiveNumThreads() int {
	if o.NumThreads > 0 {
		return o.NumThreads
	}
	return runtime.NumCPU()
}

// GPUIndices parses the GPUIndex list.
func (o SiftOptions) GPUIndices() ([]int, error) {
	fields := strings.Split(o.GPUIndex, ",")
	indices := make([]int, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		idx, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("sift options: invalid gpu_index entry %q", field)
		}
		indices = append(indices, idx)
	}
	if len(indices) == 0 {
		return nil, errors.New("sift options: gpu_index must name at least one device")
	}
	return indices, nil
}

// Descriptor rows are L2-normalized to length 512 during extraction, so the
// cosine of the angle between two rows is dot/512^2.
const siftDistNorm = 1.0 / (512.0 * 512.0)

// MatchSiftCPU matches two descriptor sets with the ratio test and optional
// cross check, returning correspondences ordered by the first image's feature
// index.
func MatchSiftCPU(opts SiftOptions, d1, d2 Descriptors) Matches {
	if d1.Rows == 0 || d2.Rows == 0 {
		return nil
	}

	dists := computeDotProducts(d1, d2)

	matches12 := findBestMatchesOneWay(dists, d1.Rows, d2.Rows, false, opts.MaxRatio, opts.MaxDistance)
	if !opts.CrossCheck {
		return clampMatches(collectMatches(matches12, nil), opts.MaxNumMatches)
	}

	matches21 := findBestMatchesOneWay(dists, d2.Rows, d1.Rows, true, opts.MaxRatio, opts.MaxDistance)
	return clampMatches(collectMatches(matches12, matches21), opts.MaxNumMatches)
}

// computeDotProducts fills a d1.Rows x d2.Rows similarity matrix of integer
// dot products.
func computeDotProducts(d1, d2 Descriptors) []int32 {
	dists := make([]int32, d1.Rows*d2.Rows)
	for i1 := 0; i1 < d1.Rows; i1++ {
		row1 := d1.Row(i1)
		out := dists[i1*d2.Rows:]
		for i2 := 0; i2 < d2.Rows; i2++ {
			row2 := d2.Row(i2)
			var dot int32
			for k := range row1 {
				dot += int32(row1[k]) * int32(row2[k])
			}
			out[i2] = dot
		}
	}
	return dists
}

// findBestMatchesOneWay returns, for each query feature, the index of its
// accepted best match in the other image or -1. The transposed flag reads the
// similarity matrix column-major so both directions share one matrix.
func findBestMatchesOneWay(dists []int32, numQuery, numRef int, transposed bool, maxRatio, maxDistance float64) []int {
	best := make([]int, numQuery)
	for i := range best {
		best[i] = -1
	}

	at := func(q, r int) int32 {
		if transposed {
			return dists[r*numQuery+q]
		}
		return dists[q*numRef+r]
	}

	for q := 0; q < numQuery; q++ {
		bestIdx := -1
		bestDot := int32(-1)
		secondDot := int32(-1)
		for r := 0; r < numRef; r++ {
			dot := at(q, r)
			if dot > bestDot {
				bestIdx = r
				secondDot = bestDot
				bestDot = dot
			} else if dot > secondDot {
				secondDot = dot
			}
		}

		if bestIdx == -1 {
			continue
		}

		bestAngle := dotToAngle(bestDot)
		if bestAngle > maxDistance {
			continue
		}
		if secondDot >= 0 {
			secondAngle := dotToAngle(secondDot)
			if bestAngle > maxRatio*secondAngle {
				continue
			}
		}

		best[q] = bestIdx
	}
	return best
}

func dotToAngle(dot int32) float64 {
	cos := float64(dot) * siftDistNorm
	if cos > 1 {
		cos = 1
	}
	return math.Acos(cos)
}

// collectMatches combines the forward assignment with an optional reverse
// assignment for cross checking.
func collectMatches(matches12, matches21 []int) Matches {
	var out Matches
	for i1, i2 := range matches12 {
		if i2 == -1 {
			continue
		}
		if matches21 != nil && matches21[i2] != i1 {
			continue
		}
		out = append(out, Match{Idx1: uint32(i1), Idx2: uint32(i2)})
	}
	return out
}

func clampMatches(m Matches, maxNumMatches int) Matches {
	if maxNumMatches > 0 && len(m) > maxNumMatches {
		return m[:maxNumMatches]
	}
	return m
}
