package domain

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// ErrInvalidEmail is returned for addresses that do not parse.
var ErrInvalidEmail = errors.New("invalid email")

// NormalizeEmail trims and lower-cases a bare address.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// User is a registered account, keyed by lowercased email.
type User struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Activity is the last-seen record used by email check-ins.
type Activity struct {
	UserID             string     `json:"user_id"`
	Email              string     `json:"email,omitempty"`
	Focus              string     `json:"focus,omitempty"`
	NeedSlug           string     `json:"need_slug,omitempty"`
	NeedLabel          string     `json:"need_label,omitempty"`
	LastActiveAt       time.Time  `json:"last_active_at"`
	LastCheckinEmailAt *time.Time `json:"last_checkin_email_at,omitempty"`
}

// DueForCheckin reports whether a check-in email should go out at now.
func (a *Activity) DueForCheckin(now time.Time, after, cooldown time.Duration) bool {
	if a.Email == "" || a.LastActiveAt.IsZero() {
		return false
	}
	if a.LastActiveAt.After(now.Add(-after)) {
		return false
	}
	if a.LastCheckinEmailAt != nil && a.LastCheckinEmailAt.After(now.Add(-cooldown)) {
		return false
	}
	return true
}

// FocusOrDefault returns the focus label used in check-in copy.
func (a *Activity) FocusOrDefault() string {
	if a.Focus == "" {
		return "work"
	}
	return a.Focus
}

// NeedLabelOrDefault returns the need label used in check-in copy,
// falling back to the slug.
func (a *Activity) NeedLabelOrDefault() string {
	switch {
	case a.NeedLabel != "":
		return a.NeedLabel
	case a.NeedSlug != "":
		return a.NeedSlug
	default:
		return "your plan"
	}
}
