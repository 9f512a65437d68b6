package repository

import (
	"context"
	"errors"
	"fmt"

	"wallpaper-notify/internal/models"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// WallpaperRepository handles database operations for wallpapers
type WallpaperRepository struct {
	db Querier
}

// NewWallpaperRepository creates a new wallpaper repository
func NewWallpaperRepository(db Querier) *WallpaperRepository {
	return &WallpaperRepository{db: db}
}

// GetByID retrieves a wallpaper by ID
func (r *WallpaperRepository) GetByID(ctx context.Context, id string) (*models.Wallpaper, error) {
	query := `
		SELECT id::text, pair_id::text, sender_id::text, image_url,
		       COALESCE(apply_to, ''), source_type, created_at
		FROM wallpapers
		WHERE id = $1
	`
	var wp models.Wallpaper
	err := r.db.QueryRow(ctx, query, id).Scan(
		&wp.ID, &wp.PairID, &wp.SenderID, &wp.ImageURL,
		&wp.ApplyTo, &wp.SourceType, &wp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("wallpaper %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get wallpaper: %w", err)
	}
	return &wp, nil
}
