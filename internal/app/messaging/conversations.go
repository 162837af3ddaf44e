package messaging

import (
	"context"
	"errors"
	"strings"

	"venuehub/internal/domain/listings"
	domain "venuehub/internal/domain/messaging"
)

// GetOrCreateParams identifies the pair (and optional listing) of a thread.
// HostID defaults to UserID2.
type GetOrCreateParams struct {
	UserID1     string
	UserID2     string
	ListingID   string
	ListingName string
	HostID      string
}

// GetOrCreateConversation returns the id of the conversation between the two
// users about the listing, creating it on first contact.
func (s *Service) GetOrCreateConversation(ctx context.Context, p GetOrCreateParams) (string, error) {
	userA := strings.TrimSpace(p.UserID1)
	userB := strings.TrimSpace(p.UserID2)
	listingID := strings.TrimSpace(p.ListingID)
	if userA == "" || userB == "" {
		return "", domain.InvalidArgument("both user ids are required")
	}
	hostID := strings.TrimSpace(p.HostID)
	if hostID == "" {
		hostID = userB
	}
	if hostID != userA && hostID != userB {
		return "", domain.InvalidArgument("host %s is not one of the participants", hostID)
	}

	existing, err := s.findConversation(ctx, userA, userB, listingID)
	if err != nil {
		return "", s.mapStoreError(err, "look up conversation")
	}
	if existing != nil {
		return existing.ID, nil
	}

	now := s.now()
	conv := &domain.Conversation{
		ID:                domain.ConversationKey(userA, userB, listingID),
		Participants:      []string{userA, userB},
		ParticipantNames:  make(map[string]string, 2),
		ParticipantPhotos: make(map[string]string, 2),
		ParticipantRoles:  make(map[string]domain.Role, 2),
		HostID:            hostID,
		ListingID:         listingID,
		ListingName:       strings.TrimSpace(p.ListingName),
		UnreadCount:       make(map[string]int, 2),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, id := range conv.Participants {
		conv.ParticipantNames[id] = s.profiles.DisplayName(ctx, id)
		conv.ParticipantPhotos[id] = s.profiles.Photo(ctx, id)
		conv.UnreadCount[id] = 0
		if id == hostID {
			conv.ParticipantRoles[id] = domain.RoleHost
		} else {
			conv.ParticipantRoles[id] = domain.RoleGuest
		}
	}
	if listingID != "" {
		s.attachListing(ctx, conv)
	}

	if err := s.conversations.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, domain.ErrConversationExists) {
			s.logger.Info("conversation created concurrently", "conversation_id", conv.ID)
			return conv.ID, nil
		}
		return "", s.mapStoreError(err, "create conversation")
	}
	s.metrics.ConversationCreated()
	s.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"listing_id", listingID,
		"participants", conv.Participants,
		"host_id", hostID,
	)
	s.recordEvents(ctx, domain.NewConversationCreatedEvent(conv))
	return conv.ID, nil
}

// findConversation scans the membership query of each user in turn.
func (s *Service) findConversation(ctx context.Context, userA, userB, listingID string) (*domain.Conversation, error) {
	anchors := []string{userA}
	if userA != userB {
		anchors = append(anchors, userB)
	}
	for _, anchor := range anchors {
		items, err := s.conversations.ConversationsFor(ctx, anchor, false)
		if err != nil {
			return nil, err
		}
		for i := range items {
			if items[i].Matches(userA, userB, listingID) {
				return &items[i], nil
			}
		}
	}
	return nil, nil
}

func (s *Service) attachListing(ctx context.Context, conv *domain.Conversation) {
	if s.listings == nil {
		return
	}
	listing, err := s.listings.Listing(ctx, listings.HostID(conv.HostID), listings.ListingID(conv.ListingID))
	if err != nil || listing == nil {
		s.logger.Debug("listing photo lookup failed", "listing_id", conv.ListingID, "host_id", conv.HostID, "error", err)
		return
	}
	conv.ListingPhoto = listing.RepresentativePhoto()
	if conv.ListingName == "" {
		conv.ListingName = listing.Title
	}
}

// Conversation loads one conversation with participant display data filled
// in. A non-empty viewerID must be a participant.
func (s *Service) Conversation(ctx context.Context, id, viewerID string) (*domain.Conversation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.InvalidArgument("conversation id is required")
	}
	conv, err := s.conversations.ConversationByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return nil, domain.NotFound(err, "conversation %s", id)
		}
		return nil, s.mapStoreError(err, "load conversation")
	}
	if viewerID != "" && !conv.HasParticipant(viewerID) {
		return nil, domain.PermissionDenied(nil, "user %s is not a participant of conversation %s", viewerID, id)
	}
	s.backfillParticipants(ctx, conv)
	return conv, nil
}

// Conversations lists the user's conversations, newest activity first.
func (s *Service) Conversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.InvalidArgument("user id is required")
	}
	items, err := s.conversations.ConversationsFor(ctx, userID, true)
	if errors.Is(err, domain.ErrIndexUnavailable) {
		s.metrics.FallbackActivated(streamConversations)
		items, err = s.conversations.ConversationsFor(ctx, userID, false)
	}
	if err != nil {
		return nil, s.mapStoreError(err, "list conversations")
	}
	for i := range items {
		s.backfillParticipants(ctx, &items[i])
	}
	domain.SortConversations(items)
	return items, nil
}

// backfillParticipants fills missing display names and photos from the
// profile directory. The result is not persisted.
func (s *Service) backfillParticipants(ctx context.Context, conv *domain.Conversation) {
	if conv == nil {
		return
	}
	for _, id := range conv.Participants {
		if id == "" {
			continue
		}
		if _, ok := conv.ParticipantNames[id]; !ok {
			if conv.ParticipantNames == nil {
				conv.ParticipantNames = make(map[string]string, len(conv.Participants))
			}
			conv.ParticipantNames[id] = s.profiles.DisplayName(ctx, id)
		}
		if _, ok := conv.ParticipantPhotos[id]; !ok {
			if conv.ParticipantPhotos == nil {
				conv.ParticipantPhotos = make(map[string]string, len(conv.Participants))
			}
			conv.ParticipantPhotos[id] = s.profiles.Photo(ctx, id)
		}
	}
}
