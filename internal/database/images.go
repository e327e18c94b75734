package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// WriteCamera inserts a camera and returns its assigned id.
func (d *DB) WriteCamera(ctx context.Context, camera Camera) (uint32, error) {
	res, err := d.execWithRetry(
		ctx,
		`INSERT INTO cameras (model, width, height, params, prior_focal_length)
         VALUES (?, ?, ?, ?, ?)`,
		camera.Model,
		camera.Width,
		camera.Height,
		encodeFloat64s(camera.Params),
		camera.PriorFocalLength,
	)
	if err != nil {
		return 0, fmt.Errorf("insert camera: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return uint32(id), nil
}

// ReadAllCameras returns every camera, ordered by id.
func (d *DB) ReadAllCameras(ctx context.Context) ([]Camera, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT camera_id, model, width, height, params, prior_focal_length
         FROM cameras ORDER BY camera_id`)
	if err != nil {
		return nil, fmt.Errorf("query cameras: %w", err)
	}
	defer rows.Close()

	var cameras []Camera
	for rows.Next() {
		var camera Camera
		var params []byte
		if err := rows.Scan(&camera.ID, &camera.Model, &camera.Width, &camera.Height, &params, &camera.PriorFocalLength); err != nil {
			return nil, fmt.Errorf("scan camera: %w", err)
		}
		if camera.Params, err = decodeFloat64s(params); err != nil {
			return nil, fmt.Errorf("camera %d params: %w", camera.ID, err)
		}
		cameras = append(cameras, camera)
	}
	return cameras, rows.Err()
}

// WriteImage inserts an image and returns its assigned id.
func (d *DB) WriteImage(ctx context.Context, image Image) (uint32, error) {
	var qw, qx, qy, qz any
	if image.PriorQ != nil {
		qw, qx, qy, qz = image.PriorQ[0], image.PriorQ[1], image.PriorQ[2], image.PriorQ[3]
	}
	res, err := d.execWithRetry(
		ctx,
		`INSERT INTO images (name, camera_id, prior_qw, prior_qx, prior_qy, prior_qz, prior_tx, prior_ty, prior_tz)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		image.Name,
		image.CameraID,
		qw, qx, qy, qz,
		image.PriorT[0], image.PriorT[1], image.PriorT[2],
	)
	if err != nil {
		return 0, fmt.Errorf("insert image %q: %w", image.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return uint32(id), nil
}

// ReadAllImages returns every image, ordered by id.
func (d *DB) ReadAllImages(ctx context.Context) ([]Image, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT image_id, name, camera_id, prior_qw, prior_qx, prior_qy, prior_qz, prior_tx, prior_ty, prior_tz
         FROM images ORDER BY image_id`)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

// ReadImageByName looks a single image up by its unique name.
func (d *DB) ReadImageByName(ctx context.Context, name string) (Image, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT image_id, name, camera_id, prior_qw, prior_qx, prior_qy, prior_qz, prior_tx, prior_ty, prior_tz
         FROM images WHERE name = ?`, name)
	image, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Image{}, fmt.Errorf("image %q: %w", name, ErrNotFound)
	}
	return image, err
}

// NumImages returns the number of registered images.
func (d *DB) NumImages(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM images").Scan(&n); err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (Image, error) {
	var image Image
	var qw, qx, qy, qz sql.NullFloat64
	var tx, ty, tz sql.NullFloat64
	if err := row.Scan(&image.ID, &image.Name, &image.CameraID, &qw, &qx, &qy, &qz, &tx, &ty, &tz); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Image{}, err
		}
		return Image{}, fmt.Errorf("scan image: %w", err)
	}
	image.PriorT = [3]float64{tx.Float64, ty.Float64, tz.Float64}
	if qw.Valid && qx.Valid && qy.Valid && qz.Valid {
		image.PriorQ = &[4]float64{qw.Float64, qx.Float64, qy.Float64, qz.Float64}
	}
	return image, nil
}
