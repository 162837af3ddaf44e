package messaging

import (
	"context"
	"errors"
	"strings"

	domain "venuehub/internal/domain/messaging"
)

// MarkMessagesAsRead acknowledges every message userID has not read yet and
// resets the user's unread counter. Failures are logged, never returned.
func (s *Service) MarkMessagesAsRead(ctx context.Context, conversationID, userID string) {
	conversationID = strings.TrimSpace(conversationID)
	userID = strings.TrimSpace(userID)
	if conversationID == "" || userID == "" {
		s.logger.Warn("mark read skipped: missing ids", "conversation_id", conversationID, "user_id", userID)
		return
	}
	log := s.logger.With("conversation_id", conversationID, "user_id", userID)

	msgs, err := s.messages.MessagesFor(ctx, conversationID, true)
	if errors.Is(err, domain.ErrIndexUnavailable) {
		s.metrics.FallbackActivated(streamRead)
		msgs, err = s.messages.MessagesFor(ctx, conversationID, false)
	}
	if err != nil {
		log.Warn("mark read: load messages failed", "error", err)
		return
	}

	now := s.now()
	marked := 0
	for _, m := range msgs {
		if m.SenderID == userID || m.ReadByUser(userID) {
			continue
		}
		if err := s.messages.MarkRead(ctx, conversationID, m.ID, userID, now); err != nil {
			log.Warn("mark read: message update failed", "message_id", m.ID, "error", err)
			continue
		}
		marked++
	}
	if err := s.conversations.ResetUnread(ctx, conversationID, userID); err != nil {
		log.Warn("mark read: unread reset failed", "error", err)
		return
	}
	if marked > 0 {
		log.Debug("messages marked read", "count", marked)
	}
}

// GetUnreadMessageCount sums the user's unread counters over all of their
// conversations. Errors yield zero.
func (s *Service) GetUnreadMessageCount(ctx context.Context, userID string) int {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0
	}
	items, err := s.conversations.ConversationsFor(ctx, userID, false)
	if err != nil {
		s.logger.Warn("unread count failed", "user_id", userID, "error", err)
		return 0
	}
	return sumUnread(items, userID)
}

func sumUnread(items []domain.Conversation, userID string) int {
	total := 0
	for i := range items {
		if !items[i].HasParticipant(userID) {
			continue
		}
		total += items[i].Unread(userID)
	}
	return total
}
