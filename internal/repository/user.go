package repository

import (
	"context"
	"fmt"

	"wallpaper-notify/internal/models"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db Querier
}

// NewUserRepository creates a new user repository
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

// GetPushableByPairID retrieves the users of a pair that have a push token
func (r *UserRepository) GetPushableByPairID(ctx context.Context, pairID string) ([]models.User, error) {
	query := `
		SELECT id::text, pair_id::text, fcm_token, display_name
		FROM users
		WHERE pair_id = $1 AND fcm_token IS NOT NULL
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, pairID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pair users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.PairID, &user.PushToken, &user.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}
