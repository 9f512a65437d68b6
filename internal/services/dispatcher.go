package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wallpaper-notify/internal/metrics"
	"wallpaper-notify/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2/payload"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	wallpaperSyncType       = "wallpaper_sync"
	maxGatewayResponseBytes = 1 << 20
)

// FCMRequest is the body of an FCM HTTP v1 messages:send call
type FCMRequest struct {
	Message FCMMessage `json:"message"`
}

// FCMMessage addresses one device token
type FCMMessage struct {
	Token   string            `json:"token"`
	Data    map[string]string `json:"data"`
	Android FCMAndroidConfig  `json:"android"`
	APNS    FCMAPNSConfig     `json:"apns"`
}

// FCMAndroidConfig holds Android delivery options
type FCMAndroidConfig struct {
	Priority string `json:"priority"`
}

// FCMAPNSConfig carries the raw APNs payload forwarded to Apple devices
type FCMAPNSConfig struct {
	Payload *payload.Payload `json:"payload"`
}

// PushDispatcher sends wallpaper pushes through the FCM HTTP v1 API
type PushDispatcher struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
}

// NewPushDispatcher creates a dispatcher for the given Firebase project.
// limiter may be nil to send without pacing.
func NewPushDispatcher(fcmEndpoint, projectID string, httpClient *http.Client, limiter *rate.Limiter, m *metrics.Metrics) *PushDispatcher {
	return &PushDispatcher{
		endpoint:   fmt.Sprintf("%s/v1/projects/%s/messages:send", strings.TrimRight(fcmEndpoint, "/"), projectID),
		httpClient: httpClient,
		limiter:    limiter,
		metrics:    m,
	}
}

// Dispatch sends one push per recipient, in order, and returns one result per recipient.
// A failed push is recorded and the remaining recipients are still attempted.
func (d *PushDispatcher) Dispatch(ctx context.Context, wallpaper *models.Wallpaper, res Resolution, accessToken string) []models.DispatchResult {
	data := buildPushData(wallpaper, res)
	results := make([]models.DispatchResult, 0, len(res.Recipients))

	for _, recipient := range res.Recipients {
		msg := buildMessage(wallpaper, res, recipient, data)
		results = append(results, d.send(ctx, wallpaper.ID, recipient.ID, msg, accessToken))
	}

	return results
}

func (d *PushDispatcher) send(ctx context.Context, wallpaperID, userID string, msg FCMRequest, accessToken string) models.DispatchResult {
	result := models.DispatchResult{UserID: userID}

	fail := func(gerr *GatewayError) models.DispatchResult {
		log.Error().
			Err(gerr).
			Str("wallpaper_id", wallpaperID).
			Str("user_id", userID).
			Msg("Failed to send push")
		d.metrics.Pushes.WithLabelValues(metrics.OutcomeError).Inc()
		result.Error = gerr.Error()
		return result
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fail(&GatewayError{UserID: userID, Err: fmt.Errorf("marshal message: %w", err)})
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return fail(&GatewayError{UserID: userID, Err: fmt.Errorf("rate limiter: %w", err)})
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fail(&GatewayError{UserID: userID, Err: fmt.Errorf("create request: %w", err)})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	d.metrics.PushLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return fail(&GatewayError{UserID: userID, Err: fmt.Errorf("send request: %w", err)})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponseBytes))
	if err != nil {
		return fail(&GatewayError{UserID: userID, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)})
	}

	result.StatusCode = resp.StatusCode
	result.Success = resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
	if json.Valid(raw) {
		result.Result = json.RawMessage(raw)
	}

	if !result.Success {
		gerr := &GatewayError{
			UserID:     userID,
			StatusCode: resp.StatusCode,
			Message:    gjson.GetBytes(raw, "error.message").String(),
		}
		result.Error = gerr.Error()
		log.Error().
			Str("wallpaper_id", wallpaperID).
			Str("user_id", userID).
			Int("status", resp.StatusCode).
			Str("reason", gjson.GetBytes(raw, "error.status").String()).
			Msg("Push gateway rejected message")
		d.metrics.Pushes.WithLabelValues(metrics.OutcomeRejected).Inc()
		return result
	}

	log.Info().
		Str("wallpaper_id", wallpaperID).
		Str("user_id", userID).
		Str("message_name", gjson.GetBytes(raw, "name").String()).
		Msg("Push sent")
	d.metrics.Pushes.WithLabelValues(metrics.OutcomeDelivered).Inc()
	return result
}

// buildPushData returns the data-only fields shared by every recipient
func buildPushData(wallpaper *models.Wallpaper, res Resolution) map[string]string {
	return map[string]string{
		"type":         wallpaperSyncType,
		"wallpaper_id": wallpaper.ID,
		"image_url":    wallpaper.ImageURL,
		"sender_id":    wallpaper.SenderID,
		"pair_id":      wallpaper.PairID,
		"apply_to":     wallpaper.ApplyTo,
		"source_type":  wallpaper.SourceTypeOrDefault(),
		"sender_name":  res.SenderName,
	}
}

func buildMessage(wallpaper *models.Wallpaper, res Resolution, recipient models.User, data map[string]string) FCMRequest {
	title, body := alertText(recipient.ID == wallpaper.SenderID, res.SenderFirstName)

	aps := payload.NewPayload().
		AlertTitle(title).
		AlertBody(body).
		MutableContent()

	var token string
	if recipient.PushToken != nil {
		token = *recipient.PushToken
	}

	return FCMRequest{
		Message: FCMMessage{
			Token:   token,
			Data:    data,
			Android: FCMAndroidConfig{Priority: "high"},
			APNS:    FCMAPNSConfig{Payload: aps},
		},
	}
}

func alertText(isSender bool, senderFirstName string) (title, body string) {
	if isSender {
		return "Wallpaper updated", "Your wallpaper was just applied."
	}
	return fmt.Sprintf("New wallpaper from %s", senderFirstName),
		fmt.Sprintf("%s has sent you a new wallpaper! It will be applied when your next Shortcut automation runs.", senderFirstName)
}
