package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"venuehub/internal/app/outbox"
	"venuehub/internal/domain/listings"
	domain "venuehub/internal/domain/messaging"
	"venuehub/internal/domain/shared/events"
)

// Recorder receives counters about messaging activity.
type Recorder interface {
	MessageSent()
	ConversationCreated()
	FallbackActivated(stream string)
	SubscriptionOpened(stream string)
	SubscriptionClosed(stream string)
}

// Deps lists the collaborators of a Service. Stores and Profiles are
// required; the rest are optional.
type Deps struct {
	Conversations domain.ConversationStore
	Messages      domain.MessageStore
	Typing        domain.TypingStore
	Profiles      domain.ProfileDirectory
	Listings      listings.Catalog
	Outbox        outbox.Outbox
	Encoder       outbox.EventEncoder
	Metrics       Recorder
	Logger        *slog.Logger
	Now           func() time.Time
	NewID         func() string
}

// Service is the messaging core: conversation resolution, send, read
// receipts, unread counters, typing presence and live subscriptions.
type Service struct {
	conversations domain.ConversationStore
	messages      domain.MessageStore
	typing        domain.TypingStore
	profiles      domain.ProfileDirectory
	listings      listings.Catalog
	outbox        outbox.Outbox
	encoder       outbox.EventEncoder
	metrics       Recorder
	logger        *slog.Logger
	now           func() time.Time
	newID         func() string
}

var ErrServiceNotConfigured = errors.New("messaging: service missing dependencies")

func NewService(d Deps) (*Service, error) {
	if d.Conversations == nil || d.Messages == nil || d.Typing == nil || d.Profiles == nil {
		return nil, ErrServiceNotConfigured
	}
	s := &Service{
		conversations: d.Conversations,
		messages:      d.Messages,
		typing:        d.Typing,
		profiles:      d.Profiles,
		listings:      d.Listings,
		outbox:        d.Outbox,
		encoder:       d.Encoder,
		metrics:       d.Metrics,
		logger:        d.Logger,
		now:           d.Now,
		newID:         d.NewID,
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.logger = s.logger.With("component", "messaging")
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// mapStoreError converts adapter failures into the user-facing taxonomy.
func (s *Service) mapStoreError(err error, action string) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrStorePermission):
		return domain.PermissionDenied(err, "%s: check conversation security rules", action)
	case errors.Is(err, domain.ErrDocumentNotFound):
		return domain.NotFound(err, "%s", action)
	case errors.Is(err, domain.ErrUnstorableID):
		return domain.InvalidArgument("%s: %v", action, err)
	default:
		return fmt.Errorf("%s: %w", action, err)
	}
}

func (s *Service) recordEvents(ctx context.Context, evs ...events.DomainEvent) {
	if s.outbox == nil {
		return
	}
	if err := outbox.RecordDomainEvents(ctx, s.outbox, s.encoder, evs...); err != nil {
		s.logger.Warn("outbox record failed", "error", err)
	}
}

type nopRecorder struct{}

func (nopRecorder) MessageSent()              {}
func (nopRecorder) ConversationCreated()      {}
func (nopRecorder) FallbackActivated(string)  {}
func (nopRecorder) SubscriptionOpened(string) {}
func (nopRecorder) SubscriptionClosed(string) {}
