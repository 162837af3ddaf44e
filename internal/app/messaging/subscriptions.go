package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	domain "venuehub/internal/domain/messaging"
)

// Stream labels used for metrics and logs.
const (
	streamMessages      = "messages"
	streamConversations = "conversations"
	streamUnread        = "unread"
	streamTyping        = "typing"
	streamRead          = "read"
)

// subscription owns the context of one live feed. Once cancel returns no new
// delivery starts; a delivery already running is allowed to finish.
type subscription struct {
	ctx    context.Context
	stop   context.CancelFunc
	closed atomic.Bool
	once   sync.Once
}

func (s *Service) openSubscription(ctx context.Context, stream string) *subscription {
	subCtx, stop := context.WithCancel(ctx)
	sub := &subscription{ctx: subCtx, stop: stop}
	s.metrics.SubscriptionOpened(stream)
	go func() {
		<-subCtx.Done()
		sub.closed.Store(true)
		s.metrics.SubscriptionClosed(stream)
	}()
	return sub
}

func (sub *subscription) active() bool {
	return !sub.closed.Load() && sub.ctx.Err() == nil
}

func (sub *subscription) cancel() {
	sub.once.Do(func() {
		sub.closed.Store(true)
		sub.stop()
	})
}

// watchWithFallback runs an ordered watch. When the store reports that the
// ordered query cannot be served, the ordered watch is stopped and replaced
// by an unordered one feeding the same deliver func. Any other error
// delivers an empty result and ends the feed.
func watchWithFallback[T any](s *Service, sub *subscription, stream string, watch func(context.Context, bool, func([]T, error)), deliver func([]T)) {
	orderedCtx, stopOrdered := context.WithCancel(sub.ctx)
	log := s.logger.With("stream", stream)

	unordered := func(items []T, err error) {
		if !sub.active() {
			return
		}
		if err != nil {
			log.Warn("unordered watch failed", "error", err)
			deliver([]T{})
			return
		}
		deliver(items)
	}

	watch(orderedCtx, true, func(items []T, err error) {
		if !sub.active() {
			return
		}
		switch {
		case err == nil:
			deliver(items)
		case errors.Is(err, domain.ErrIndexUnavailable):
			stopOrdered()
			s.metrics.FallbackActivated(stream)
			log.Warn("ordered watch unavailable, falling back to unordered", "error", err)
			watch(sub.ctx, false, unordered)
		default:
			stopOrdered()
			log.Warn("watch failed", "error", err)
			deliver([]T{})
		}
	})
}

// SubscribeToMessages streams the full message list of a conversation,
// oldest first, on every change.
func (s *Service) SubscribeToMessages(ctx context.Context, conversationID string, fn func([]domain.Message)) domain.Cancel {
	conversationID = strings.TrimSpace(conversationID)
	if fn == nil {
		return func() {}
	}
	if conversationID == "" {
		fn([]domain.Message{})
		return func() {}
	}

	sub := s.openSubscription(ctx, streamMessages)
	watch := func(ctx context.Context, ordered bool, cb func([]domain.Message, error)) {
		s.messages.WatchMessages(ctx, conversationID, ordered, cb)
	}
	watchWithFallback(s, sub, streamMessages, watch, func(items []domain.Message) {
		out := append([]domain.Message{}, items...)
		domain.SortMessages(out)
		if sub.active() {
			fn(out)
		}
	})
	return sub.cancel
}

// SubscribeToConversations streams the user's conversations, most recently
// updated first, with participant display data backfilled.
func (s *Service) SubscribeToConversations(ctx context.Context, userID string, fn func([]domain.Conversation)) domain.Cancel {
	userID = strings.TrimSpace(userID)
	if fn == nil {
		return func() {}
	}
	if userID == "" {
		fn([]domain.Conversation{})
		return func() {}
	}

	sub := s.openSubscription(ctx, streamConversations)
	watch := func(ctx context.Context, ordered bool, cb func([]domain.Conversation, error)) {
		s.conversations.WatchConversations(ctx, userID, ordered, cb)
	}
	watchWithFallback(s, sub, streamConversations, watch, func(items []domain.Conversation) {
		out := append([]domain.Conversation{}, items...)
		for i := range out {
			s.backfillParticipants(sub.ctx, &out[i])
		}
		domain.SortConversations(out)
		if sub.active() {
			fn(out)
		}
	})
	return sub.cancel
}

// SubscribeToUnreadCount streams the user's total unread counter. Errors are
// reported as zero.
func (s *Service) SubscribeToUnreadCount(ctx context.Context, userID string, fn func(int)) domain.Cancel {
	userID = strings.TrimSpace(userID)
	if fn == nil {
		return func() {}
	}
	if userID == "" {
		fn(0)
		return func() {}
	}

	sub := s.openSubscription(ctx, streamUnread)
	s.conversations.WatchConversations(sub.ctx, userID, false, func(items []domain.Conversation, err error) {
		if !sub.active() {
			return
		}
		if err != nil {
			s.logger.Warn("unread watch failed", "user_id", userID, "error", err)
			fn(0)
			return
		}
		fn(sumUnread(items, userID))
	})
	return sub.cancel
}

// SetTypingStatus records whether userID is composing in the conversation.
// Failures are logged and dropped.
func (s *Service) SetTypingStatus(ctx context.Context, conversationID, userID string, isTyping bool) {
	conversationID = strings.TrimSpace(conversationID)
	userID = strings.TrimSpace(userID)
	if conversationID == "" || userID == "" {
		s.logger.Debug("typing status skipped: missing ids", "conversation_id", conversationID, "user_id", userID)
		return
	}
	err := s.typing.SetTyping(ctx, domain.TypingStatus{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
		Timestamp:      s.now(),
	})
	if err != nil {
		s.logger.Warn("typing status update failed", "conversation_id", conversationID, "user_id", userID, "error", err)
	}
}

// SubscribeToTyping streams the sorted ids of users currently typing in the
// conversation. Errors are reported as an empty set.
func (s *Service) SubscribeToTyping(ctx context.Context, conversationID string, fn func([]string)) domain.Cancel {
	conversationID = strings.TrimSpace(conversationID)
	if fn == nil {
		return func() {}
	}
	if conversationID == "" {
		fn([]string{})
		return func() {}
	}

	sub := s.openSubscription(ctx, streamTyping)
	s.typing.WatchTyping(sub.ctx, conversationID, func(items []domain.TypingStatus, err error) {
		if !sub.active() {
			return
		}
		if err != nil {
			s.logger.Warn("typing watch failed", "conversation_id", conversationID, "error", err)
			fn([]string{})
			return
		}
		fn(domain.TypingUsers(items))
	})
	return sub.cancel
}
