package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallpaper-notify/internal/metrics"
	"wallpaper-notify/internal/models"
	"wallpaper-notify/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WallpaperStore loads wallpapers
type WallpaperStore interface {
	GetByID(ctx context.Context, id string) (*models.Wallpaper, error)
}

// PairUserStore loads the users of a pair that have a push token
type PairUserStore interface {
	GetPushableByPairID(ctx context.Context, pairID string) ([]models.User, error)
}

// AccessTokenSource issues bearer tokens for the push gateway
type AccessTokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// ImageURLResolver rewrites stored image URLs into URLs devices can fetch
type ImageURLResolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// WallpaperBroadcaster delivers wallpaper events to users connected in-app
type WallpaperBroadcaster interface {
	IsOnline(userID string) bool
	NotifyWallpaper(userID string, data map[string]string) error
}

// NotificationService runs one wallpaper notification invocation
type NotificationService struct {
	wallpapers        WallpaperStore
	users             PairUserStore
	tokens            AccessTokenSource
	dispatcher        *PushDispatcher
	images            ImageURLResolver
	broadcaster       WallpaperBroadcaster
	metrics           *metrics.Metrics
	requireRecipients bool
}

// NewNotificationService creates a new notification service.
// images and broadcaster are optional and may be nil.
func NewNotificationService(
	wallpapers WallpaperStore,
	users PairUserStore,
	tokens AccessTokenSource,
	dispatcher *PushDispatcher,
	images ImageURLResolver,
	broadcaster WallpaperBroadcaster,
	m *metrics.Metrics,
	requireRecipients bool,
) *NotificationService {
	return &NotificationService{
		wallpapers:        wallpapers,
		users:             users,
		tokens:            tokens,
		dispatcher:        dispatcher,
		images:            images,
		broadcaster:       broadcaster,
		metrics:           m,
		requireRecipients: requireRecipients,
	}
}

// SendWallpaperNotification notifies the pair of a wallpaper.
// Per-recipient gateway failures are reported in the summary; any other
// failure aborts before a push is sent.
func (s *NotificationService) SendWallpaperNotification(ctx context.Context, wallpaperID string) (*models.DispatchSummary, error) {
	summary, err := s.send(ctx, wallpaperID)
	s.metrics.Invocations.WithLabelValues(invocationResult(err)).Inc()
	return summary, err
}

func (s *NotificationService) send(ctx context.Context, wallpaperID string) (*models.DispatchSummary, error) {
	if _, err := uuid.Parse(wallpaperID); err != nil {
		return nil, fmt.Errorf("%w: wallpaper_id must be a UUID", ErrBadRequest)
	}

	wallpaper, err := s.wallpapers.GetByID(ctx, wallpaperID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, wallpaperID)
		}
		return nil, fmt.Errorf("failed to load wallpaper: %w", err)
	}

	users, err := s.users.GetPushableByPairID(ctx, wallpaper.PairID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pair users: %w", err)
	}
	if len(users) == 0 && s.requireRecipients {
		return nil, fmt.Errorf("%w for pair %s", ErrNoRecipients, wallpaper.PairID)
	}

	res := ResolveRecipients(wallpaper, users)
	s.metrics.Recipients.Observe(float64(len(res.Recipients)))

	log.Info().
		Str("wallpaper_id", wallpaper.ID).
		Str("pair_id", wallpaper.PairID).
		Str("apply_to", wallpaper.ApplyTo).
		Int("recipients", len(res.Recipients)).
		Msg("Processing wallpaper notification")

	if len(res.Recipients) == 0 {
		return &models.DispatchSummary{Success: true, Results: []models.DispatchResult{}}, nil
	}

	accessToken, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	delivered := *wallpaper
	if s.images != nil {
		imageURL, err := s.images.Resolve(ctx, wallpaper.ImageURL)
		if err != nil {
			log.Warn().
				Err(err).
				Str("wallpaper_id", wallpaper.ID).
				Msg("Failed to resolve image url, sending stored url")
		} else {
			delivered.ImageURL = imageURL
		}
	}

	results := s.dispatcher.Dispatch(ctx, &delivered, res, accessToken)
	s.broadcast(&delivered, res)

	return &models.DispatchSummary{
		Success: true,
		Sent:    len(results),
		Results: results,
	}, nil
}

func (s *NotificationService) accessToken(ctx context.Context) (string, error) {
	start := time.Now()
	token, err := s.tokens.AccessToken(ctx)
	label := "ok"
	if err != nil {
		label = "error"
	}
	s.metrics.TokenExchange.WithLabelValues(label).Observe(time.Since(start).Seconds())
	return token, err
}

func (s *NotificationService) broadcast(wallpaper *models.Wallpaper, res Resolution) {
	if s.broadcaster == nil {
		return
	}

	data := buildPushData(wallpaper, res)
	for _, recipient := range res.Recipients {
		if !s.broadcaster.IsOnline(recipient.ID) {
			continue
		}
		if err := s.broadcaster.NotifyWallpaper(recipient.ID, data); err != nil {
			log.Warn().
				Err(err).
				Str("wallpaper_id", wallpaper.ID).
				Str("user_id", recipient.ID).
				Msg("Failed to send in-app wallpaper event")
		}
	}
}

func invocationResult(err error) string {
	var authErr *AuthError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNoRecipients):
		return "no_recipients"
	case errors.As(err, &authErr):
		return "auth_error"
	default:
		return "error"
	}
}
