package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"parallax/internal/database"
	"parallax/internal/feature"
	"parallax/internal/testsupport"
)

func TestImageAndCameraRoundTrip(t *testing.T) {
	db := testsupport.MustOpenDatabase(t)
	ctx := context.Background()

	cameraID := testsupport.MustAddCamera(t, db)

	rotation := [4]float64{1, 0, 0, 0}
	imageID, err := db.WriteImage(ctx, database.Image{
		Name:     "frame_0001.jpg",
		CameraID: cameraID,
		PriorT:   [3]float64{47.37, 8.54, 408},
		PriorQ:   &rotation,
	})
	if err != nil {
		t.Fatalf("WriteImage: %v", err)
	}

	images, err := db.ReadAllImages(ctx)
	if err != nil {
		t.Fatalf("ReadAllImages: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(images))
	}
	image := images[0]
	if image.ID != imageID || image.Name != "frame_0001.jpg" || image.CameraID != cameraID {
		t.Fatalf("unexpected image: %#v", image)
	}
	if image.PriorT != [3]float64{47.37, 8.54, 408} {
		t.Errorf("unexpected translation prior: %v", image.PriorT)
	}
	if image.PriorQ == nil || *image.PriorQ != rotation {
		t.Errorf("unexpected rotation prior: %v", image.PriorQ)
	}

	byName, err := db.ReadImageByName(ctx, "frame_0001.jpg")
	if err != nil {
		t.Fatalf("ReadImageByName: %v", err)
	}
	if byName.ID != imageID {
		t.Errorf("ReadImageByName id = %d, want %d", byName.ID, imageID)
	}

	if _, err := db.ReadImageByName(ctx, "missing.jpg"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing image, got %v", err)
	}

	cameras, err := db.ReadAllCameras(ctx)
	if err != nil {
		t.Fatalf("ReadAllCameras: %v", err)
	}
	if len(cameras) != 1 || cameras[0].ID != cameraID {
		t.Fatalf("unexpected cameras: %#v", cameras)
	}
	if len(cameras[0].Params) != 3 || cameras[0].Params[0] != 1200 {
		t.Errorf("unexpected camera params: %v", cameras[0].Params)
	}
}

func TestDescriptorsRoundTrip(t *testing.T) {
	db := testsupport.MustOpenDatabase(t)
	ctx := context.Background()

	cameraID := testsupport.MustAddCamera(t, db)
	imageID := testsupport.MustAddImage(t, db, cameraID, "a.jpg", [3]float64{})

	want := testsupport.OrthogonalDescriptors(t, 0, 1, 2)
	testsupport.MustWriteDescriptors(t, db, imageID, want)

	got, err := db.ReadDescriptors(ctx, imageID)
	if err != nil {
		t.Fatalf("ReadDescriptors: %v", err)
	}
	if got.Rows != want.Rows || got.Cols != want.Cols {
		t.Fatalf("descriptor shape = %dx%d, want %dx%d", got.Rows, got.Cols, want.Rows, want.Cols)
	}

	if _, err := db.ReadDescriptors(ctx, 9999); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing descriptors, got %v", err)
	}

	maxNum, err := db.MaxNumDescriptors(ctx)
	if err != nil {
		t.Fatalf("MaxNumDescriptors: %v", err)
	}
	if maxNum != 3 {
		t.Errorf("MaxNumDescriptors = %d, want 3", maxNum)
	}
}

func TestWriteMatchesCanonicalizesOrder(t *testing.T) {
	db := testsupport.MustOpenDatabase(t)
	ctx := context.Background()

	matches := feature.Matches{{Idx1: 4, Idx2: 9}, {Idx1: 5, Idx2: 1}}

	// Write in swapped order: image 7 first, image 3 second.
	if err := db.WriteMatches(ctx, 7, 3, matches); err != nil {
		t.Fatalf("WriteMatches: %v", err)
	}

	// Reading in write order returns the original orientation.
	got, err := db.ReadMatches(ctx, 7, 3)
	if err != nil {
		t.Fatalf("ReadMatches: %v", err)
	}
	if len(got) != 2 || got[0] != matches[0] || got[1] != matches[1] {
		t.Fatalf("ReadMatches(7, 3) = %v, want %v", got, matches)
	}

	// Reading in canonical order returns swapped columns.
	canonical, err := db.ReadMatches(ctx, 3, 7)
	if err != nil {
		t.Fatalf("ReadMatches: %v", err)
	}
	if len(canonical) != 2 || canonical[0] != (feature.Match{Idx1: 9, Idx2: 4}) {
		t.Fatalf("ReadMatches(3, 7) = %v", canonical)
	}

	exists, err := db.ExistsMatches(ctx, 3, 7)
	if err != nil {
		t.Fatalf("ExistsMatches: %v", err)
	}
	if !exists {
		t.Error("expected matches to exist under canonical order")
	}

	if err := db.DeleteMatches(ctx, 7, 3); err != nil {
		t.Fatalf("DeleteMatches: %v", err)
	}
	exists, err = db.ExistsMatches(ctx, 7, 3)
	if err != nil {
		t.Fatalf("ExistsMatches: %v", err)
	}
	if exists {
		t.Error("expected matches to be deleted")
	}
}

func TestReadNumMatches(t *testing.T) {
	db := testsupport.MustOpenDatabase(t)
	ctx := context.Background()

	testsupport.MustAddMatchedPair(t, db, 1, 2, feature.Matches{{Idx1: 0, Idx2: 0}, {Idx1: 1, Idx2: 1}})
	testsupport.MustAddMatchedPair(t, db, 2, 3, feature.Matches{{Idx1: 0, Idx2: 5}})
	testsupport.MustAddMatchedPair(t, db, 4, 5, nil)

	pairs, counts, err := db.ReadNumMatches(ctx)
	if err != nil {
		t.Fatalf("ReadNumMatches: %v", err)
	}
	if len(pairs) != 3 || len(counts) != 3 {
		t.Fatalf("got %d pairs, %d counts", len(pairs), len(counts))
	}

	byPair := make(map[database.ImagePair]int)
	for i, pair := range pairs {
		byPair[pair] = counts[i]
	}
	if byPair[database.ImagePair{ID1: 1, ID2: 2}] != 2 {
		t.Errorf("unexpected count for (1, 2): %v", byPair)
	}
	if byPair[database.ImagePair{ID1: 2, ID2: 3}] != 1 {
		t.Errorf("unexpected count for (2, 3): %v", byPair)
	}
	if count, ok := byPair[database.ImagePair{ID1: 4, ID2: 5}]; !ok || count != 0 {
		t.Errorf("unexpected count for (4, 5): %v", byPair)
	}
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db := testsupport.MustOpenDatabase(t)
	ctx := context.Background()

	sentinel := errors.New("abort")
	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		if err := db.WriteMatches(ctx, 1, 2, feature.Matches{{Idx1: 0, Idx2: 0}}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	exists, err := db.ExistsMatches(ctx, 1, 2)
	if err != nil {
		t.Fatalf("ExistsMatches: %v", err)
	}
	if exists {
		t.Error("write should have been rolled back")
	}
}

func TestWithTransactionCommits(t *testing.T) {
	db := testsupport.MustOpenDatabase(t)
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		return db.WriteMatches(ctx, 1, 2, feature.Matches{{Idx1: 0, Idx2: 0}})
	})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}

	exists, err := db.ExistsMatches(ctx, 1, 2)
	if err != nil {
		t.Fatalf("ExistsMatches: %v", err)
	}
	if !exists {
		t.Error("committed write should be visible")
	}
}

func TestOpenRefusesLockedDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.db")

	first, err := database.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer first.Close()

	if _, err := database.Open(path); err == nil {
		t.Fatal("expected second Open to fail while the lock is held")
	}
}
