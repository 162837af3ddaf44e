package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "venuehub/internal/domain/messaging"
)

func seedConversation(t *testing.T, store *MessagingStore, id string, updated time.Time, members ...string) {
	t.Helper()
	require.NoError(t, store.CreateConversation(context.Background(), &domain.Conversation{
		ID:           id,
		Participants: members,
		UnreadCount:  map[string]int{},
		UpdatedAt:    updated,
	}))
}

func TestCreateConversationRejectsDuplicateID(t *testing.T) {
	store := NewMessagingStore()
	seedConversation(t, store, "c1", time.Now(), "a", "b")

	err := store.CreateConversation(context.Background(), &domain.Conversation{ID: "c1", Participants: []string{"a", "b"}})
	require.ErrorIs(t, err, domain.ErrConversationExists)
}

func TestAppendMessageUpdatesSummaryAndUnread(t *testing.T) {
	store := NewMessagingStore()
	ctx := context.Background()
	seedConversation(t, store, "c1", time.Unix(0, 0), "a", "b")

	at := time.Unix(100, 0).UTC()
	err := store.AppendMessage(ctx, &domain.Message{ID: "m1", ConversationID: "c1", SenderID: "a", Text: "hi", Timestamp: at},
		domain.ConversationUpdate{LastMessage: "hi", LastMessageTime: at, UpdatedAt: at, IncrementUnreadFor: "b"})
	require.NoError(t, err)

	conv, err := store.ConversationByID(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "hi", conv.LastMessage)
	require.Equal(t, 1, conv.UnreadCount["b"])
	require.Zero(t, conv.UnreadCount["a"])

	msgs, err := store.MessagesFor(ctx, "c1", true)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].ReadBy)
}

func TestAppendMessageUnknownConversation(t *testing.T) {
	store := NewMessagingStore()
	err := store.AppendMessage(context.Background(), &domain.Message{ID: "m1", ConversationID: "missing"}, domain.ConversationUpdate{})
	require.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestOrderedQueriesNeedIndex(t *testing.T) {
	store := NewMessagingStore()
	ctx := context.Background()
	seedConversation(t, store, "c1", time.Unix(1, 0), "a", "b")
	seedConversation(t, store, "c2", time.Unix(2, 0), "a", "c")

	items, err := store.ConversationsFor(ctx, "a", true)
	require.NoError(t, err)
	require.Equal(t, "c2", items[0].ID)

	store.SetIndexAvailable(false)
	_, err = store.ConversationsFor(ctx, "a", true)
	require.ErrorIs(t, err, domain.ErrIndexUnavailable)
	_, err = store.MessagesFor(ctx, "c1", true)
	require.ErrorIs(t, err, domain.ErrIndexUnavailable)

	items, err = store.ConversationsFor(ctx, "a", false)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestSetTypingMergesRecord(t *testing.T) {
	store := NewMessagingStore()
	ctx := context.Background()
	at := time.Unix(50, 0).UTC()
	require.NoError(t, store.SetTyping(ctx, domain.TypingStatus{ConversationID: "c1", UserID: "a", IsTyping: true, Timestamp: at}))
	require.NoError(t, store.SetTyping(ctx, domain.TypingStatus{ConversationID: "c1", UserID: "a", IsTyping: false}))

	store.mu.RLock()
	rec := store.typing["c1"]["a"]
	store.mu.RUnlock()
	require.False(t, rec.IsTyping)
	require.Equal(t, at, rec.Timestamp)
}

func TestWatchDeliversChangesUntilCancelled(t *testing.T) {
	store := NewMessagingStore()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan []domain.TypingStatus, 8)
	store.WatchTyping(ctx, "c1", func(items []domain.TypingStatus, err error) {
		updates <- items
	})

	require.Empty(t, <-updates)
	require.NoError(t, store.SetTyping(context.Background(), domain.TypingStatus{ConversationID: "c1", UserID: "a", IsTyping: true}))
	select {
	case items := <-updates:
		require.Len(t, items, 1)
		require.Equal(t, "a", items[0].UserID)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	cancel()
	require.Eventually(t, func() bool { return store.WatcherCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWatchEndsOnFault(t *testing.T) {
	store := NewMessagingStore()
	boom := errors.New("boom")
	errs := make(chan error, 4)
	store.WatchMessages(context.Background(), "c1", false, func(items []domain.Message, err error) {
		errs <- err
	})
	require.NoError(t, <-errs)

	store.InjectFault(OpWatchMessages, boom)
	select {
	case err := <-errs:
		require.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("fault not delivered")
	}
	require.Eventually(t, func() bool { return store.WatcherCount() == 0 }, time.Second, 5*time.Millisecond)
}
