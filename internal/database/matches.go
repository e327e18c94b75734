package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parallax/internal/feature"
)

// WriteMatches stores the matches for an unordered image pair under its
// canonical pair id, swapping match columns when the given order is not
// canonical. An empty match set is a valid write: it records that the pair
// was attempted and fell below the match threshold.
func (d *DB) WriteMatches(ctx context.Context, imageID1, imageID2 uint32, matches feature.Matches) error {
	pairID := ImagePairToPairID(imageID1, imageID2)
	if ShouldSwapPair(imageID1, imageID2) {
		matches = matches.Swapped()
	}
	_, err := d.execWithRetry(
		ctx,
		"INSERT INTO matches (pair_id, rows, cols, data) VALUES (?, ?, ?, ?)",
		uint64(pairID),
		len(matches),
		2,
		feature.EncodeMatches(matches),
	)
	if err != nil {
		return fmt.Errorf("insert matches for pair (%d, %d): %w", imageID1, imageID2, err)
	}
	return nil
}

// ReadMatches loads the matches for an image pair, with match columns
// oriented to the requested image order.
func (d *DB) ReadMatches(ctx context.Context, imageID1, imageID2 uint32) (feature.Matches, error) {
	pairID := ImagePairToPairID(imageID1, imageID2)
	var data []byte
	err := d.db.QueryRowContext(ctx,
		"SELECT data FROM matches WHERE pair_id = ?", uint64(pairID),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read matches for pair (%d, %d): %w", imageID1, imageID2, err)
	}
	matches, err := feature.DecodeMatches(data)
	if err != nil {
		return nil, fmt.Errorf("matches for pair (%d, %d): %w", imageID1, imageID2, err)
	}
	if ShouldSwapPair(imageID1, imageID2) {
		matches = matches.Swapped()
	}
	return matches, nil
}

// ExistsMatches reports whether a match record exists for the pair.
func (d *DB) ExistsMatches(ctx context.Context, imageID1, imageID2 uint32) (bool, error) {
	pairID := ImagePairToPairID(imageID1, imageID2)
	var one int
	err := d.db.QueryRowContext(ctx,
		"SELECT 1 FROM matches WHERE pair_id = ?", uint64(pairID),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check matches for pair (%d, %d): %w", imageID1, imageID2, err)
	}
	return true, nil
}

// DeleteMatches removes the match record for a pair, if present.
func (d *DB) DeleteMatches(ctx context.Context, imageID1, imageID2 uint32) error {
	pairID := ImagePairToPairID(imageID1, imageID2)
	if _, err := d.execWithRetry(ctx, "DELETE FROM matches WHERE pair_id = ?", uint64(pairID)); err != nil {
		return fmt.Errorf("delete matches for pair (%d, %d): %w", imageID1, imageID2, err)
	}
	return nil
}

// NumMatchedPairs returns the number of stored match records.
func (d *DB) NumMatchedPairs(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM matches").Scan(&n); err != nil {
		return 0, fmt.Errorf("count matched pairs: %w", err)
	}
	return n, nil
}

// ReadNumMatches returns every matched pair alongside its match count. The
// transitive strategy reads this to build the current match graph.
func (d *DB) ReadNumMatches(ctx context.Context) ([]ImagePair, []int, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT pair_id, rows FROM matches")
	if err != nil {
		return nil, nil, fmt.Errorf("query match counts: %w", err)
	}
	defer rows.Close()

	var pairs []ImagePair
	var counts []int
	for rows.Next() {
		var pairID uint64
		var count int
		if err := rows.Scan(&pairID, &count); err != nil {
			return nil, nil, fmt.Errorf("scan match count: %w", err)
		}
		id1, id2 := PairIDToImagePair(PairID(pairID))
		pairs = append(pairs, ImagePair{ID1: id1, ID2: id2})
		counts = append(counts, count)
	}
	return pairs, counts, rows.Err()
}
