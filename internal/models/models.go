package models

import (
	"encoding/json"
	"time"
)

// SystemSenderID is the sender id used for wallpapers pushed by the server
// rather than by a user of the pair
const SystemSenderID = "00000000-0000-0000-0000-000000000000"

// Apply-to policies
const (
	ApplyToBoth    = "both"
	ApplyToPartner = "partner"
)

// DefaultSourceType is sent when a wallpaper has no source_type
const DefaultSourceType = "shared_board"

// User represents a member of a pair
type User struct {
	ID          string  `json:"id"`
	PairID      string  `json:"pair_id"`
	PushToken   *string `json:"push_token,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
}

// HasPushToken reports whether the user can be addressed by the push gateway
func (u *User) HasPushToken() bool {
	return u.PushToken != nil && *u.PushToken != ""
}

// Wallpaper represents a shared wallpaper record
type Wallpaper struct {
	ID         string    `json:"id"`
	PairID     string    `json:"pair_id"`
	SenderID   string    `json:"sender_id"`
	ImageURL   string    `json:"image_url"`
	ApplyTo    string    `json:"apply_to"`
	SourceType *string   `json:"source_type,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SourceTypeOrDefault returns the source type, falling back to DefaultSourceType
func (w *Wallpaper) SourceTypeOrDefault() string {
	if w.SourceType == nil || *w.SourceType == "" {
		return DefaultSourceType
	}
	return *w.SourceType
}

// DispatchResult is the outcome of a single push to one recipient
type DispatchResult struct {
	UserID     string          `json:"user_id"`
	Success    bool            `json:"success"`
	StatusCode int             `json:"status_code,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// DispatchSummary is returned to the caller of the notification endpoint
type DispatchSummary struct {
	Success bool             `json:"success"`
	Sent    int              `json:"sent"`
	Results []DispatchResult `json:"results"`
}
