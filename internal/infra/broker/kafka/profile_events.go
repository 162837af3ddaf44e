package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"

	"venuehub/internal/app/profiles"
)

// Profile event types published by the account service.
const (
	EventProfileUpdated = "user.profile_updated.v1"
	EventUserDeleted    = "user.deleted.v1"
)

// Inbox records handled event ids. Forget drops a record so the event can
// be applied again on redelivery.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type ProfileCache interface {
	Invalidate(ctx context.Context, userID string) error
}

type ProfileWriter interface {
	Save(ctx context.Context, p profiles.Profile) error
	Delete(ctx context.Context, userID string) error
}

// ProfileEventsHandler keeps the local profile copy and cache in step with
// account changes. Events are deduplicated through the inbox.
type ProfileEventsHandler struct {
	Inbox  Inbox
	Cache  ProfileCache
	Store  ProfileWriter
	Logger *slog.Logger
}

type cloudEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type profileEventData struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photo_url"`
}

var ErrMalformedEvent = errors.New("kafka: malformed profile event")

func (h *ProfileEventsHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var evt cloudEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.logger().Warn("dropping undecodable profile event", "offset", msg.Offset, "error", err)
		return nil
	}
	var data profileEventData
	if len(evt.Data) > 0 {
		if err := json.Unmarshal(evt.Data, &data); err != nil {
			h.logger().Warn("dropping profile event with bad data", "event_id", evt.ID, "error", err)
			return nil
		}
	}
	userID := strings.TrimSpace(data.UserID)
	if evt.ID == "" || userID == "" {
		h.logger().Warn("dropping profile event", "event_id", evt.ID, "error", ErrMalformedEvent)
		return nil
	}
	if evt.Type != EventProfileUpdated && evt.Type != EventUserDeleted {
		return nil
	}

	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, evt.ID)
		if err != nil {
			return fmt.Errorf("inbox: %w", err)
		}
		if seen {
			return nil
		}
	}

	if h.Store != nil {
		var err error
		switch evt.Type {
		case EventProfileUpdated:
			err = h.Store.Save(ctx, profiles.Profile{UserID: userID, DisplayName: data.DisplayName, Email: data.Email, PhotoURL: data.PhotoURL})
		case EventUserDeleted:
			err = h.Store.Delete(ctx, userID)
		}
		if err != nil {
			if h.Inbox != nil {
				if ferr := h.Inbox.Forget(context.WithoutCancel(ctx), evt.ID); ferr != nil {
					h.logger().Error("inbox record not released", "event_id", evt.ID, "error", ferr)
				}
			}
			return fmt.Errorf("apply %s for %s: %w", evt.Type, userID, err)
		}
	}
	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx, userID); err != nil {
			h.logger().Warn("profile cache invalidation failed", "user_id", userID, "error", err)
		}
	}
	h.logger().Debug("profile event applied", "event_id", evt.ID, "type", evt.Type, "user_id", userID)
	return nil
}

func (h *ProfileEventsHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.New(slog.DiscardHandler)
}
