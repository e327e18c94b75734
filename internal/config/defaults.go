package config

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Database: Database{
			Path: "database.db",
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
		Matching: Matching{
			NumThreads:    -1,
			UseGPU:        false,
			GPUIndex:      "-1",
			MaxRatio:      0.8,
			MaxDistance:   0.7,
			CrossCheck:    true,
			MinNumMatches: 15,
			MaxNumMatches: 32768,
		},
		Exhaustive: Exhaustive{
			BlockSize: 50,
		},
		Sequential: Sequential{
			Overlap:          10,
			QuadraticOverlap: true,
		},
		Spatial: Spatial{
			MaxNumNeighbors: 50,
			MaxDistance:     100,
			IsGPS:           true,
			IgnoreZ:         true,
		},
		Transitive: Transitive{
			BatchSize:     1000,
			NumIterations: 3,
		},
		ImagePairs: ImagePairs{
			BlockSize: 1225,
		},
	}
}
