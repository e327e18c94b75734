package matching

import (
	"context"
	"testing"

	"parallax/internal/feature"
	"parallax/internal/logging"
	"parallax/internal/testsupport"
)

func TestTransitiveMatcherClosesTwoHopWalks(t *testing.T) {
	db := testsupport.MustOpenDatabase(t)
	cameraID := testsupport.MustAddCamera(t, db)

	ids := make([]uint32, 3)
	for i, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		ids[i] = testsupport.MustAddImage(t, db, cameraID, name, [3]float64{})
		testsupport.MustWriteDescriptors(t, db, ids[i], testsupport.OrthogonalDescriptors(t, 0, 1))
	}

	// Seed the graph with a-b and b-c; the two-hop walk implies a-c.
	testsupport.MustAddMatchedPair(t, db, ids[0], ids[1], feature.Matches{{Idx1: 0, Idx2: 0}})
	testsupport.MustAddMatchedPair(t, db, ids[1], ids[2], feature.Matches{{Idx1: 1, Idx2: 1}})

	opts := TransitiveOptions{BatchSize: 10, NumIterations: 1}
	matcher, err := NewTransitiveMatcher(opts, testSiftOptions(), db, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewTransitiveMatcher: %v", err)
	}
	if err := matcher.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	exists, err := db.ExistsMatches(context.Background(), ids[0], ids[2])
	if err != nil {
		t.Fatalf("ExistsMatches: %v", err)
	}
	if !exists {
		t.Error("two-hop pair (a, c) should have been matched")
	}
}

func TestTransitiveMatcherReachesFixedPoint(t *testing.T) {
	db := testsupport.MustOpenDatabase(t)
	cameraID := testsupport.MustAddCamera(t, db)

	ids := make([]uint32, 4)
	for i, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"} {
		ids[i] = testsupport.MustAddImage(t, db, cameraID, name, [3]float64{})
		testsupport.MustWriteDescriptors(t, db, ids[i], testsupport.OrthogonalDescriptors(t, 0, 1))
	}

	// A path a-b-c-d saturates to the complete graph on four vertices.
	testsupport.MustAddMatchedPair(t, db, ids[0], ids[1], feature.Matches{{Idx1: 0, Idx2: 0}})
	testsupport.MustAddMatchedPair(t, db, ids[1], ids[2], feature.Matches{{Idx1: 0, Idx2: 0}})
	testsupport.MustAddMatchedPair(t, db, ids[2], ids[3], feature.Matches{{Idx1: 0, Idx2: 0}})

	opts := TransitiveOptions{BatchSize: 2, NumIterations: 4}
	matcher, err := NewTransitiveMatcher(opts, testSiftOptions(), db, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewTransitiveMatcher: %v", err)
	}
	if err := matcher.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ctx := context.Background()
	numPairs, err := db.NumMatchedPairs(ctx)
	if err != nil {
		t.Fatalf("NumMatchedPairs: %v", err)
	}
	if numPairs != 6 {
		t.Errorf("saturated graph has %d match records, want 6", numPairs)
	}

	// Another run adds nothing: the edge set is a fixed point.
	matcher, err = NewTransitiveMatcher(opts, testSiftOptions(), db, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewTransitiveMatcher: %v", err)
	}
	if err := matcher.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	numPairsAfter, err := db.NumMatchedPairs(ctx)
	if err != nil {
		t.Fatalf("NumMatchedPairs: %v", err)
	}
	if numPairsAfter != numPairs {
		t.Errorf("fixed point violated: %d records became %d", numPairs, numPairsAfter)
	}
}

func TestTransitiveMatcherEmptyGraph(t *testing.T) {
	db := testsupport.MustOpenDatabase(t)

	opts := TransitiveOptions{BatchSize: 5, NumIterations: 2}
	matcher, err := NewTransitiveMatcher(opts, testSiftOptions(), db, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewTransitiveMatcher: %v", err)
	}
	if err := matcher.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	numPairs, err := db.NumMatchedPairs(context.Background())
	if err != nil {
		t.Fatalf("NumMatchedPairs: %v", err)
	}
	if numPairs != 0 {
		t.Errorf("empty graph run wrote %d match records", numPairs)
	}
}

func TestTransitiveOptionsCheck(t *testing.T) {
	valid := TransitiveOptions{BatchSize: 1, NumIterations: 1}
	if err := valid.Check(); err != nil {
		t.Errorf("valid options rejected: %v", err)
	}
	if err := (TransitiveOptions{BatchSize: 0, NumIterations: 1}).Check(); err == nil {
		t.Error("zero batch size should be rejected")
	}
	if err := (TransitiveOptions{BatchSize: 1, NumIterations: 0}).Check(); err == nil {
		t.Error("zero iterations should be rejected")
	}
}
