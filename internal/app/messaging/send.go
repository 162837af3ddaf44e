package messaging

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	domain "venuehub/internal/domain/messaging"
)

// SendMessage appends a message from senderID and updates the conversation
// summary and the recipient's unread counter.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, text string) (*domain.Message, error) {
	conversationID = strings.TrimSpace(conversationID)
	senderID = strings.TrimSpace(senderID)
	body := strings.TrimSpace(text)
	if conversationID == "" || senderID == "" || body == "" {
		return nil, domain.InvalidArgument("conversation id, sender id and text are required")
	}
	if n := utf8.RuneCountInString(body); n > domain.SoftTextLimit {
		s.logger.Warn("message text above soft limit", "conversation_id", conversationID, "sender_id", senderID, "length", n)
	}

	conv, err := s.conversations.ConversationByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return nil, domain.NotFound(err, "conversation %s", conversationID)
		}
		return nil, s.mapStoreError(err, "load conversation")
	}
	if len(conv.Participants) == 0 {
		return nil, domain.InvalidState("conversation %s has no participants", conversationID)
	}
	if !conv.HasParticipant(senderID) {
		return nil, domain.PermissionDenied(nil, "user %s is not a participant of conversation %s", senderID, conversationID)
	}

	now := s.now()
	msg := &domain.Message{
		ID:             s.newID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     s.profiles.DisplayName(ctx, senderID),
		SenderPhoto:    s.profiles.Photo(ctx, senderID),
		Text:           body,
		Timestamp:      now,
		ReadBy:         map[string]time.Time{},
	}
	recipient, _ := conv.OtherParticipant(senderID)
	update := domain.ConversationUpdate{
		LastMessage:        body,
		LastMessageTime:    now,
		UpdatedAt:          now,
		IncrementUnreadFor: recipient,
	}
	if err := s.messages.AppendMessage(ctx, msg, update); err != nil {
		return nil, s.mapStoreError(err, "send message")
	}

	s.metrics.MessageSent()
	s.recordEvents(ctx, domain.NewMessageSentEvent(conv, msg, recipient, now))
	return msg, nil
}
