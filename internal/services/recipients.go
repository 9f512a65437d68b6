package services

import (
	"strings"

	"wallpaper-notify/internal/models"
)

const fallbackSenderName = "Your partner"

// Resolution is the set of users to notify for a wallpaper and how to name its sender
type Resolution struct {
	Recipients      []models.User
	SenderName      string
	SenderFirstName string
}

// ResolveRecipients selects who receives a wallpaper push.
// Users without a push token are never selected. Unknown apply_to values
// select nobody.
func ResolveRecipients(wallpaper *models.Wallpaper, users []models.User) Resolution {
	candidates := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.HasPushToken() {
			candidates = append(candidates, u)
		}
	}

	res := Resolution{Recipients: []models.User{}}
	for _, u := range candidates {
		if u.ID == wallpaper.SenderID && u.DisplayName != nil {
			res.SenderName = *u.DisplayName
			break
		}
	}
	res.SenderFirstName = firstName(res.SenderName)

	switch wallpaper.ApplyTo {
	case models.ApplyToBoth:
		res.Recipients = candidates
	case models.ApplyToPartner:
		if wallpaper.SenderID == models.SystemSenderID {
			res.Recipients = candidates
			break
		}
		for _, u := range candidates {
			if u.ID != wallpaper.SenderID {
				res.Recipients = append(res.Recipients, u)
			}
		}
	}

	return res
}

func firstName(displayName string) string {
	fields := strings.Fields(displayName)
	if len(fields) == 0 {
		return fallbackSenderName
	}
	return fields[0]
}
