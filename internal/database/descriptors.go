package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parallax/internal/feature"
)

// WriteDescriptors stores the descriptor matrix for an image.
func (d *DB) WriteDescriptors(ctx context.Context, imageID uint32, descriptors feature.Descriptors) error {
	if err := descriptors.Validate(); err != nil {
		return fmt.Errorf("write descriptors for image %d: %w", imageID, err)
	}
	_, err := d.execWithRetry(
		ctx,
		"INSERT INTO descriptors (image_id, rows, cols, data) VALUES (?, ?, ?, ?)",
		imageID,
		descriptors.Rows,
		descriptors.Cols,
		descriptors.Data,
	)
	if err != nil {
		return fmt.Errorf("insert descriptors for image %d: %w", imageID, err)
	}
	return nil
}

// ReadDescriptors loads the descriptor matrix for an image.
func (d *DB) ReadDescriptors(ctx context.Context, imageID uint32) (feature.Descriptors, error) {
	var descriptors feature.Descriptors
	err := d.db.QueryRowContext(ctx,
		"SELECT rows, cols, data FROM descriptors WHERE image_id = ?", imageID,
	).Scan(&descriptors.Rows, &descriptors.Cols, &descriptors.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return feature.Descriptors{}, fmt.Errorf("descriptors for image %d: %w", imageID, ErrNotFound)
	}
	if err != nil {
		return feature.Descriptors{}, fmt.Errorf("read descriptors for image %d: %w", imageID, err)
	}
	if err := descriptors.Validate(); err != nil {
		return feature.Descriptors{}, fmt.Errorf("descriptors for image %d: %w", imageID, err)
	}
	return descriptors, nil
}

// NumDescriptors returns the total descriptor count across all images.
func (d *DB) NumDescriptors(ctx context.Context) (int, error) {
	var n sql.NullInt64
	if err := d.db.QueryRowContext(ctx, "SELECT SUM(rows) FROM descriptors").Scan(&n); err != nil {
		return 0, fmt.Errorf("sum descriptors: %w", err)
	}
	return int(n.Int64), nil
}

// MaxNumDescriptors returns the largest per-image descriptor count. Pool
// setup clamps max_num_matches to this value.
func (d *DB) MaxNumDescriptors(ctx context.Context) (int, error) {
	var n sql.NullInt64
	if err := d.db.QueryRowContext(ctx, "SELECT MAX(rows) FROM descriptors").Scan(&n); err != nil {
		return 0, fmt.Errorf("max descriptors: %w", err)
	}
	return int(n.Int64), nil
}
