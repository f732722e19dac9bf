// internal/storage/images.go
package storage

import (
	"context"
	"fmt"
	"time"

	"meal-companion/internal/models"
)

// ImageFilter narrows ListImages. Zero values disable a condition; the
// upload window is [UploadedFrom, UploadedBefore).
type ImageFilter struct {
	UserID         string
	SessionID      string
	UploadedFrom   int64
	UploadedBefore int64
	Limit          int
}

func (s *SQLiteStorage) SaveImage(ctx context.Context, img *models.StoredImage) error {
	if img.CreatedAt.IsZero() {
		img.CreatedAt = s.now()
	}

	res, err := s.db.ExecContext(ctx, `
        INSERT INTO meal_images (session_id, frame_id, user_id, file_path, url, uploaded_at, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `, img.SessionID, img.FrameID, img.UserID, img.FilePath, img.URL, img.UploadedAt, img.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert image: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read image id: %w", err)
	}
	img.ID = id
	return nil
}

// ListImages returns matching image records ordered by upload time.
func (s *SQLiteStorage) ListImages(ctx context.Context, filter ImageFilter) ([]models.StoredImage, error) {
	query := `
        SELECT id, session_id, frame_id, user_id, file_path, url, uploaded_at, created_at
        FROM meal_images
        WHERE 1=1
    `
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.UploadedFrom > 0 {
		query += " AND uploaded_at >= ?"
		args = append(args, filter.UploadedFrom)
	}
	if filter.UploadedBefore > 0 {
		query += " AND uploaded_at < ?"
		args = append(args, filter.UploadedBefore)
	}

	query += " ORDER BY uploaded_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []models.StoredImage
	for rows.Next() {
		var img models.StoredImage
		var createdAt int64
		err := rows.Scan(
			&img.ID, &img.SessionID, &img.FrameID, &img.UserID,
			&img.FilePath, &img.URL, &img.UploadedAt, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		img.CreatedAt = time.Unix(createdAt, 0)
		images = append(images, img)
	}

	return images, rows.Err()
}
