package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	domain "venuehub/internal/domain/messaging"
)

func conversationFixture(id string, updated time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "participants", Value: bson.A{"u1", "u2"}},
		{Key: "participant_names", Value: bson.D{{Key: "u1", Value: "Ana"}}},
		{Key: "participant_roles", Value: bson.D{{Key: "u1", Value: "guest"}, {Key: "u2", Value: "host"}}},
		{Key: "host_id", Value: "u2"},
		{Key: "listing_id", Value: "L1"},
		{Key: "last_message", Value: "hi"},
		{Key: "unread_count", Value: bson.D{{Key: "u2", Value: 2}}},
		{Key: "updated_at", Value: updated},
	}
}

func TestMessagingStoreConversations(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	updated := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mt.Run("by id", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "venuehub.conversations", mtest.FirstBatch, conversationFixture("c1", updated)))

		conv, err := store.ConversationByID(context.Background(), "c1")
		require.NoError(mt, err)
		require.Equal(mt, []string{"u1", "u2"}, conv.Participants)
		require.Equal(mt, domain.RoleHost, conv.ParticipantRoles["u2"])
		require.Equal(mt, 2, conv.Unread("u2"))
		require.Equal(mt, updated, conv.UpdatedAt)
	})

	mt.Run("missing", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "venuehub.conversations", mtest.FirstBatch))

		_, err := store.ConversationByID(context.Background(), "nope")
		require.ErrorIs(mt, err, domain.ErrDocumentNotFound)
	})

	mt.Run("duplicate create", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error"}))

		err := store.CreateConversation(context.Background(), &domain.Conversation{ID: "c1", Participants: []string{"u1", "u2"}})
		require.ErrorIs(mt, err, domain.ErrConversationExists)
	})

	mt.Run("unsafe participant id", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		err := store.CreateConversation(context.Background(), &domain.Conversation{ID: "c1", Participants: []string{"u1", "a.b"}})
		require.ErrorIs(mt, err, ErrUnsafeKey)
	})

	mt.Run("ordered list without index", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "hint provided does not correspond to an existing index",
		}))

		_, err := store.ConversationsFor(context.Background(), "u1", true)
		require.ErrorIs(mt, err, domain.ErrIndexUnavailable)
	})

	mt.Run("permission", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "not authorized",
		}))

		_, err := store.ConversationsFor(context.Background(), "u1", false)
		require.ErrorIs(mt, err, domain.ErrStorePermission)
	})

	mt.Run("unordered list", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "venuehub.conversations", mtest.FirstBatch,
			conversationFixture("c1", updated), conversationFixture("c2", updated.Add(time.Hour))))

		items, err := store.ConversationsFor(context.Background(), "u1", false)
		require.NoError(mt, err)
		require.Len(mt, items, 2)
		require.Equal(mt, "c2", items[1].ID)
	})
}

func TestMessagingStoreResetUnread(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("matched", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}, {Key: "nModified", Value: 1}})
		require.NoError(mt, store.ResetUnread(context.Background(), "c1", "u2"))
	})

	mt.Run("missing conversation", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 0}, {Key: "nModified", Value: 0}})
		require.ErrorIs(mt, store.ResetUnread(context.Background(), "c1", "u2"), domain.ErrDocumentNotFound)
	})
}

func updateReply(matched int) bson.D {
	return bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: matched}, {Key: "nModified", Value: matched}}
}

// startedCommand pops the next started event and checks its command name.
func startedCommand(mt *mtest.T, name string) *event.CommandStartedEvent {
	mt.Helper()
	evt := mt.GetStartedEvent()
	require.NotNil(mt, evt, "no %s command sent", name)
	require.Equal(mt, name, evt.CommandName)
	return evt
}

func lookupDoc(mt *mtest.T, evt *event.CommandStartedEvent, path ...string) bson.M {
	mt.Helper()
	var out bson.M
	require.NoError(mt, evt.Command.Lookup(path...).Unmarshal(&out))
	return out
}

func TestMessagingStoreAppendMessage(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	sent := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := &domain.Message{ID: "m1", ConversationID: "c1", SenderID: "u1", SenderName: "Ana", Text: "hi", Timestamp: sent}

	mt.Run("insert then summary", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(mtest.CreateSuccessResponse(), updateReply(1))
		mt.ClearEvents()

		err := store.AppendMessage(context.Background(), msg, domain.ConversationUpdate{
			LastMessage: "hi", LastMessageTime: sent, UpdatedAt: sent, IncrementUnreadFor: "u2",
		})
		require.NoError(mt, err)

		insert := startedCommand(mt, "insert")
		stored := lookupDoc(mt, insert, "documents", "0")
		require.Equal(mt, "m1", stored["_id"])
		require.Equal(mt, "c1", stored["conversation_id"])
		require.Equal(mt, false, stored["read"])

		update := startedCommand(mt, "update")
		require.Equal(mt, "c1", lookupDoc(mt, update, "updates", "0", "q")["_id"])
		set := lookupDoc(mt, update, "updates", "0", "u", "$set")
		require.Equal(mt, "hi", set["last_message"])
		require.Equal(mt, primitive.NewDateTimeFromTime(sent), set["last_message_time"])
		require.Equal(mt, primitive.NewDateTimeFromTime(sent), set["updated_at"])
		inc := lookupDoc(mt, update, "updates", "0", "u", "$inc")
		require.Len(mt, inc, 1)
		require.EqualValues(mt, 1, inc["unread_count.u2"])
	})

	mt.Run("self conversation skips unread", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(mtest.CreateSuccessResponse(), updateReply(1))
		mt.ClearEvents()

		err := store.AppendMessage(context.Background(), msg, domain.ConversationUpdate{LastMessage: "hi", LastMessageTime: sent, UpdatedAt: sent})
		require.NoError(mt, err)

		startedCommand(mt, "insert")
		update := startedCommand(mt, "update")
		_, err = update.Command.LookupErr("updates", "0", "u", "$inc")
		require.Error(mt, err)
	})

	mt.Run("missing conversation", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(mtest.CreateSuccessResponse(), updateReply(0))

		err := store.AppendMessage(context.Background(), msg, domain.ConversationUpdate{LastMessage: "hi", IncrementUnreadFor: "u2"})
		require.ErrorIs(mt, err, domain.ErrDocumentNotFound)
	})

	mt.Run("unsafe recipient writes nothing", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.ClearEvents()

		err := store.AppendMessage(context.Background(), msg, domain.ConversationUpdate{LastMessage: "hi", IncrementUnreadFor: "$where"})
		require.ErrorIs(mt, err, ErrUnsafeKey)
		require.ErrorIs(mt, err, domain.ErrUnstorableID)
		require.Nil(mt, mt.GetStartedEvent())
	})
}

func TestMessagingStoreMarkRead(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	at := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	mt.Run("sets read marker", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(updateReply(1))
		mt.ClearEvents()

		require.NoError(mt, store.MarkRead(context.Background(), "c1", "m1", "u2", at))

		update := startedCommand(mt, "update")
		require.Equal(mt, bson.M{"_id": "m1", "conversation_id": "c1"}, lookupDoc(mt, update, "updates", "0", "q"))
		set := lookupDoc(mt, update, "updates", "0", "u", "$set")
		require.Equal(mt, true, set["read"])
		require.Equal(mt, primitive.NewDateTimeFromTime(at), set["read_by.u2"])
	})

	mt.Run("message of another conversation", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(updateReply(0))
		require.ErrorIs(mt, store.MarkRead(context.Background(), "c2", "m1", "u2", at), domain.ErrDocumentNotFound)
	})
}

func TestMessagingStoreSetTyping(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mt.Run("upserts per user record", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(updateReply(1))
		mt.ClearEvents()

		err := store.SetTyping(context.Background(), domain.TypingStatus{ConversationID: "c1", UserID: "u1", IsTyping: true, Timestamp: at})
		require.NoError(mt, err)

		update := startedCommand(mt, "update")
		require.Equal(mt, "c1/u1", lookupDoc(mt, update, "updates", "0", "q")["_id"])
		require.True(mt, update.Command.Lookup("updates", "0", "upsert").Boolean())
		set := lookupDoc(mt, update, "updates", "0", "u", "$set")
		require.Equal(mt, true, set["is_typing"])
		require.Equal(mt, primitive.NewDateTimeFromTime(at), set["timestamp"])
	})

	mt.Run("stop without timestamp", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(updateReply(1))
		mt.ClearEvents()

		require.NoError(mt, store.SetTyping(context.Background(), domain.TypingStatus{ConversationID: "c1", UserID: "u1"}))

		set := lookupDoc(mt, startedCommand(mt, "update"), "updates", "0", "u", "$set")
		require.Equal(mt, false, set["is_typing"])
		require.NotContains(mt, set, "timestamp")
	})
}

func TestMessagingStoreMessagesFor(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	sent := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mt.Run("ordered uses index hint", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "venuehub.messages", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "m1"}, {Key: "conversation_id", Value: "c1"}, {Key: "sender_id", Value: "u1"}, {Key: "text", Value: "hi"}, {Key: "timestamp", Value: sent}},
		))
		mt.ClearEvents()

		msgs, err := store.MessagesFor(context.Background(), "c1", true)
		require.NoError(mt, err)
		require.Len(mt, msgs, 1)
		require.Equal(mt, "hi", msgs[0].Text)
		require.Equal(mt, sent, msgs[0].Timestamp)

		find := startedCommand(mt, "find")
		require.Equal(mt, messagesOrderIndex, find.Command.Lookup("hint").StringValue())
		require.Equal(mt, bson.M{"timestamp": int32(1), "_id": int32(1)}, lookupDoc(mt, find, "sort"))
		require.Equal(mt, bson.M{"conversation_id": "c1"}, lookupDoc(mt, find, "filter"))
	})

	mt.Run("unordered sends no hint", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "venuehub.messages", mtest.FirstBatch))
		mt.ClearEvents()

		msgs, err := store.MessagesFor(context.Background(), "c1", false)
		require.NoError(mt, err)
		require.Empty(mt, msgs)

		find := startedCommand(mt, "find")
		_, err = find.Command.LookupErr("hint")
		require.Error(mt, err)
	})

	mt.Run("missing index", func(mt *mtest.T) {
		store := NewMessagingStore(mt.DB, StoreOptions{})
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "error processing query: planner returned error :: caused by :: hint provided does not correspond to an existing index",
		}))

		_, err := store.MessagesFor(context.Background(), "c1", true)
		require.ErrorIs(mt, err, domain.ErrIndexUnavailable)
	})
}
