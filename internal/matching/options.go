package matching

import "fmt"

// ExhaustiveOptions configure exhaustive block matching.
type ExhaustiveOptions struct {
	// BlockSize is the number of images per matching block.
	BlockSize int
}

func (o ExhaustiveOptions) Check() error {
	if o.BlockSize <= 1 {
		return fmt.Errorf("exhaustive options: block_size must be greater than 1, got %d", o.BlockSize)
	}
	return nil
}

// SequentialOptions configure sequential matching over name-ordered images.
type SequentialOptions struct {
	// Overlap is the number of following images each image is matched
	// against.
	Overlap int
	// QuadraticOverlap additionally matches images at power-of-two offsets.
	QuadraticOverlap bool
}

func (o SequentialOptions) Check() error {
	if o.Overlap <= 0 {
		return fmt.Errorf("sequential options: overlap must be positive, got %d", o.Overlap)
	}
	return nil
}

// SpatialOptions configure spatial matching over translation priors.
type SpatialOptions struct {
	// MaxNumNeighbors is the neighbor count retrieved per location.
	MaxNumNeighbors int
	// MaxDistance bounds the neighbor distance in the location coordinate
	// system.
	MaxDistance float64
	// IsGPS interprets priors as latitude/longitude/altitude and projects
	// them to Cartesian coordinates.
	IsGPS bool
	// IgnoreZ zeroes the third coordinate before indexing.
	IgnoreZ bool
}

func (o SpatialOptions) Check() error {
	if o.MaxNumNeighbors <= 0 {
		return fmt.Errorf("spatial options: max_num_neighbors must be positive, got %d", o.MaxNumNeighbors)
	}
	if o.MaxDistance <= 0 {
		return fmt.Errorf("spatial options: max_distance must be positive, got %v", o.MaxDistance)
	}
	return nil
}

// TransitiveOptions configure transitive-closure matching.
type TransitiveOptions struct {
	// BatchSize is the number of candidate pairs dispatched per
	// transaction.
	BatchSize int
	// NumIterations is the number of closure passes over the match graph.
	NumIterations int
}

func (o TransitiveOptions) Check() error {
	if o.BatchSize <= 0 {
		return fmt.Errorf("transitive options: batch_size must be positive, got %d", o.BatchSize)
	}
	if o.NumIterations <= 0 {
		return fmt.Errorf("transitive options: num_iterations must be positive, got %d", o.NumIterations)
	}
	return nil
}

// ImagePairsOptions configure matching over a user-supplied pair list.
type ImagePairsOptions struct {
	// BlockSize is the number of listed pairs dispatched per transaction.
	BlockSize int
	// MatchListPath is the pair list file.
	MatchListPath string
}

func (o ImagePairsOptions) Check() error {
	if o.BlockSize <= 0 {
		return fmt.Errorf("image pairs options: block_size must be positive, got %d", o.BlockSize)
	}
	return nil
}

// FeaturePairsOptions configure direct match import. Path validity is the
// caller's responsibility; errors surface when the file is opened.
type FeaturePairsOptions struct {
	// MatchListPath is the feature pairs file.
	MatchListPath string
}

func (o FeaturePairsOptions) Check() error { return nil }
