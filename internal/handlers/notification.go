package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"wallpaper-notify/internal/middleware"
	"wallpaper-notify/internal/models"
	"wallpaper-notify/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// WallpaperNotifier runs a wallpaper notification invocation
type WallpaperNotifier interface {
	SendWallpaperNotification(ctx context.Context, wallpaperID string) (*models.DispatchSummary, error)
}

// NotificationHandler handles wallpaper notification triggers
type NotificationHandler struct {
	notifier WallpaperNotifier
	validate *validator.Validate
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifier WallpaperNotifier) *NotificationHandler {
	return &NotificationHandler{
		notifier: notifier,
		validate: validator.New(),
	}
}

// SendWallpaperNotificationRequest is the trigger body
type SendWallpaperNotificationRequest struct {
	WallpaperID string `json:"wallpaper_id" validate:"required,uuid"`
}

// SendWallpaperNotification handles POST /api/v1/wallpaper-notifications.
// Every aborting failure is answered with 500 and an error message.
func (h *NotificationHandler) SendWallpaperNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SendWallpaperNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error().Err(err).Msg("Invalid notification request body")
		respondError(w, "invalid request body", http.StatusInternalServerError)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error().Err(err).Str("wallpaper_id", req.WallpaperID).Msg("Invalid notification request")
		respondError(w, "wallpaper_id is required and must be a UUID", http.StatusInternalServerError)
		return
	}

	summary, err := h.notifier.SendWallpaperNotification(ctx, req.WallpaperID)
	if err != nil {
		event := log.Error().Err(err).Str("wallpaper_id", req.WallpaperID)
		var authErr *services.AuthError
		if errors.As(err, &authErr) {
			event = event.Str("auth_op", authErr.Op)
		}
		event.Msg("Failed to send wallpaper notification")

		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("wallpaper_id", req.WallpaperID).
		Str("caller", middleware.GetSubject(ctx)).
		Int("sent", summary.Sent).
		Msg("Wallpaper notification processed")

	respondJSON(w, http.StatusOK, summary)
}
