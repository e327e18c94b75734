package matching

import (
	"context"

	"parallax/internal/database"
	"parallax/internal/feature"
)

// Store is the database surface the matching pipeline depends on.
// *database.DB satisfies it; tests may substitute fakes.
type Store interface {
	ReadAllCameras(ctx context.Context) ([]database.Camera, error)
	ReadAllImages(ctx context.Context) ([]database.Image, error)
	ReadDescriptors(ctx context.Context, imageID uint32) (feature.Descriptors, error)
	ReadMatches(ctx context.Context, imageID1, imageID2 uint32) (feature.Matches, error)
	ExistsMatches(ctx context.Context, imageID1, imageID2 uint32) (bool, error)
	WriteMatches(ctx context.Context, imageID1, imageID2 uint32, matches feature.Matches) error
	DeleteMatches(ctx context.Context, imageID1, imageID2 uint32) error
	ReadNumMatches(ctx context.Context) ([]database.ImagePair, []int, error)
	MaxNumDescriptors(ctx context.Context) (int, error)
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
}
