package messaging

import (
	"context"
	"time"
)

// Cancel stops a live subscription. Calling it more than once is a no-op.
type Cancel func()

// ConversationUpdate is the summary written together with a new message.
// IncrementUnreadFor is empty when there is no distinct recipient.
type ConversationUpdate struct {
	LastMessage        string
	LastMessageTime    time.Time
	UpdatedAt          time.Time
	IncrementUnreadFor string
}

// Watch methods return immediately and call fn from a background goroutine,
// one call at a time, with the full current result set on every change.
// After a non-nil error the watch is finished and fn is not called again.
// Implementations stop calling fn once ctx is done.

type ConversationStore interface {
	// ConversationByID returns ErrDocumentNotFound when the id is unknown.
	ConversationByID(ctx context.Context, id string) (*Conversation, error)
	// ConversationsFor lists conversations containing userID. With ordered
	// set the store sorts by UpdatedAt descending and may fail with
	// ErrIndexUnavailable.
	ConversationsFor(ctx context.Context, userID string, ordered bool) ([]Conversation, error)
	// CreateConversation inserts conv unless its id exists, in which case
	// it returns ErrConversationExists.
	CreateConversation(ctx context.Context, conv *Conversation) error
	ResetUnread(ctx context.Context, conversationID, userID string) error
	WatchConversations(ctx context.Context, userID string, ordered bool, fn func([]Conversation, error))
}

type MessageStore interface {
	// AppendMessage inserts msg and applies update to its conversation.
	AppendMessage(ctx context.Context, msg *Message, update ConversationUpdate) error
	MessagesFor(ctx context.Context, conversationID string, ordered bool) ([]Message, error)
	MarkRead(ctx context.Context, conversationID, messageID, userID string, at time.Time) error
	WatchMessages(ctx context.Context, conversationID string, ordered bool, fn func([]Message, error))
}

type TypingStore interface {
	// SetTyping upserts the record keyed by conversation and user, keeping
	// fields it does not set.
	SetTyping(ctx context.Context, status TypingStatus) error
	WatchTyping(ctx context.Context, conversationID string, fn func([]TypingStatus, error))
}

// ProfileDirectory resolves a user's display identity. It never fails.
type ProfileDirectory interface {
	DisplayName(ctx context.Context, userID string) string
	Photo(ctx context.Context, userID string) string
}
