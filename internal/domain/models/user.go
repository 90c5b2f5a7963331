package models

import "time"

// User is the subset of an account the notifiers need.
type User struct {
	ID             string        `json:"id"`
	Email          string        `json:"email"`
	Username       string        `json:"username"`
	TelegramChatID int64         `json:"telegramChatId,omitempty"`
	AlertLimit     time.Duration `json:"alertLimit,omitempty"`
	NotifiedAt     time.Time     `json:"notifiedAt,omitempty"`
}

// Throttled reports whether the user was alerted less than AlertLimit ago.
func (u *User) Throttled(now time.Time) bool {
	if u.AlertLimit <= 0 || u.NotifiedAt.IsZero() {
		return false
	}
	return now.Before(u.NotifiedAt.Add(u.AlertLimit))
}
