package database_test

import (
	"testing"

	"parallax/internal/database"
)

func TestImagePairToPairIDIsSymmetric(t *testing.T) {
	pairs := [][2]uint32{
		{1, 2},
		{2, 1},
		{1, database.MaxNumImages - 1},
		{100, 3},
	}
	for _, pair := range pairs {
		forward := database.ImagePairToPairID(pair[0], pair[1])
		backward := database.ImagePairToPairID(pair[1], pair[0])
		if forward != backward {
			t.Errorf("pair id for (%d, %d) differs by order: %d vs %d", pair[0], pair[1], forward, backward)
		}
	}
}

func TestImagePairToPairIDIsInjective(t *testing.T) {
	seen := make(map[database.PairID][2]uint32)
	const n = 40
	for id1 := uint32(1); id1 <= n; id1++ {
		for id2 := id1 + 1; id2 <= n; id2++ {
			pairID := database.ImagePairToPairID(id1, id2)
			if prev, ok := seen[pairID]; ok {
				t.Fatalf("pair id %d produced by both (%d, %d) and (%d, %d)", pairID, prev[0], prev[1], id1, id2)
			}
			seen[pairID] = [2]uint32{id1, id2}
		}
	}
}

func TestPairIDToImagePairRoundTrip(t *testing.T) {
	cases := [][2]uint32{
		{1, 2},
		{7, 3},
		{12345, 678},
		{1, database.MaxNumImages - 1},
	}
	for _, pair := range cases {
		pairID := database.ImagePairToPairID(pair[0], pair[1])
		id1, id2 := database.PairIDToImagePair(pairID)

		wantID1, wantID2 := pair[0], pair[1]
		if database.ShouldSwapPair(wantID1, wantID2) {
			wantID1, wantID2 = wantID2, wantID1
		}
		if id1 != wantID1 || id2 != wantID2 {
			t.Errorf("round trip of (%d, %d): got (%d, %d), want (%d, %d)",
				pair[0], pair[1], id1, id2, wantID1, wantID2)
		}
	}
}
