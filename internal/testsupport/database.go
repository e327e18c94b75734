// Package testsupport provides shared fixtures for package tests: temporary
// workspace databases and synthetic descriptor sets with predictable
// matching behavior.
package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"parallax/internal/database"
	"parallax/internal/feature"
)

// MustOpenDatabase opens a fresh workspace database in a temporary directory
// and registers cleanup.
func MustOpenDatabase(t testing.TB) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "database.db")
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// MustAddCamera inserts a minimal pinhole camera and returns its id.
func MustAddCamera(t testing.TB, db *database.DB) uint32 {
	t.Helper()

	id, err := db.WriteCamera(context.Background(), database.Camera{
		Model:  1,
		Width:  1920,
		Height: 1080,
		Params: []float64{1200, 960, 540},
	})
	if err != nil {
		t.Fatalf("WriteCamera: %v", err)
	}
	return id
}

// MustAddImage inserts an image with the given name and translation prior.
func MustAddImage(t testing.TB, db *database.DB, cameraID uint32, name string, priorT [3]float64) uint32 {
	t.Helper()

	id, err := db.WriteImage(context.Background(), database.Image{
		Name:     name,
		CameraID: cameraID,
		PriorT:   priorT,
	})
	if err != nil {
		t.Fatalf("WriteImage %q: %v", name, err)
	}
	return id
}

// MustWriteDescriptors stores descriptors for an image.
func MustWriteDescriptors(t testing.TB, db *database.DB, imageID uint32, descriptors feature.Descriptors) {
	t.Helper()

	if err := db.WriteDescriptors(context.Background(), imageID, descriptors); err != nil {
		t.Fatalf("WriteDescriptors for image %d: %v", imageID, err)
	}
}

// orthogonalMagnitude makes eight equal components L2-normalize to
// approximately 512, the convention the matching kernel assumes.
const orthogonalMagnitude = 181

// OrthogonalDescriptors builds one descriptor row per slot index. Rows with
// the same slot produce a near-maximal dot product; rows with different
// slots are orthogonal. Slots must be in [0, 16).
func OrthogonalDescriptors(t testing.TB, slots ...int) feature.Descriptors {
	t.Helper()

	d := feature.Descriptors{
		Rows: len(slots),
		Cols: feature.DescriptorDim,
		Data: make([]uint8, len(slots)*feature.DescriptorDim),
	}
	for row, slot := range slots {
		if slot < 0 || slot >= 16 {
			t.Fatalf("descriptor slot %d out of range", slot)
		}
		for k := 0; k < 8; k++ {
			d.Data[row*feature.DescriptorDim+slot*8+k] = orthogonalMagnitude
		}
	}
	return d
}

// MustAddMatchedPair records a match result for a pair directly.
func MustAddMatchedPair(t testing.TB, db *database.DB, imageID1, imageID2 uint32, matches feature.Matches) {
	t.Helper()

	if err := db.WriteMatches(context.Background(), imageID1, imageID2, matches); err != nil {
		t.Fatalf("WriteMatches (%d, %d): %v", imageID1, imageID2, err)
	}
}
