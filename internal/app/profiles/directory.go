package profiles

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"venuehub/internal/domain/messaging"
)

// PlaceholderName is shown when a user has no resolvable display name.
const PlaceholderName = "User"

var ErrNotFound = errors.New("profiles: user not found")

// Profile is the raw identity record of a user.
type Profile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// Source loads profiles from the backing user store.
type Source interface {
	Profile(ctx context.Context, userID string) (Profile, error)
}

// Directory implements messaging.ProfileDirectory on top of a Source,
// absorbing every lookup failure.
type Directory struct {
	Source Source
	Logger *slog.Logger
}

func (d Directory) DisplayName(ctx context.Context, userID string) string {
	p, ok := d.lookup(ctx, userID)
	if !ok {
		return PlaceholderName
	}
	return ComputeDisplayName(p)
}

func (d Directory) Photo(ctx context.Context, userID string) string {
	p, ok := d.lookup(ctx, userID)
	if !ok {
		return ""
	}
	return strings.TrimSpace(p.PhotoURL)
}

func (d Directory) lookup(ctx context.Context, userID string) (Profile, bool) {
	userID = strings.TrimSpace(userID)
	if userID == "" || d.Source == nil {
		return Profile{}, false
	}
	p, err := d.Source.Profile(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && d.Logger != nil {
			d.Logger.Warn("profile lookup failed", "user_id", userID, "error", err)
		}
		return Profile{}, false
	}
	return p, true
}

// ComputeDisplayName prefers the explicit name, then the email local part.
func ComputeDisplayName(p Profile) string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	email := strings.TrimSpace(p.Email)
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return PlaceholderName
}

var _ messaging.ProfileDirectory = Directory{}
