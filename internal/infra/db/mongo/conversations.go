package mongo

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "venuehub/internal/domain/messaging"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
	typingCollection        = "typing"

	conversationsOrderIndex = "participants_updated_at"
	messagesOrderIndex      = "conversation_timestamp"
)

// StoreOptions tunes a MessagingStore.
type StoreOptions struct {
	// Transactions wraps the send path in a multi-document transaction.
	// Requires a replica set.
	Transactions bool
	// PollInterval drives watches when change streams are unavailable.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// MessagingStore keeps conversations, messages and typing records in three
// collections and implements every messaging store port.
type MessagingStore struct {
	db            *mongo.Database
	conversations *mongo.Collection
	messages      *mongo.Collection
	typing        *mongo.Collection
	transactions  bool
	pollInterval  time.Duration
	logger        *slog.Logger
}

func NewMessagingStore(db *mongo.Database, opts StoreOptions) *MessagingStore {
	s := &MessagingStore{
		db:            db,
		conversations: db.Collection(conversationsCollection),
		messages:      db.Collection(messagesCollection),
		typing:        db.Collection(typingCollection),
		transactions:  opts.Transactions,
		pollInterval:  opts.PollInterval,
		logger:        opts.Logger,
	}
	if s.pollInterval <= 0 {
		s.pollInterval = 2 * time.Second
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.logger = s.logger.With("component", "mongo_messaging")
	return s
}

// EnsureIndexes creates the indexes ordered queries rely on. Without them
// ordered reads report domain.ErrIndexUnavailable.
func (s *MessagingStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}},
		Options: options.Index().SetName(conversationsOrderIndex),
	})
	if err != nil {
		return err
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName(messagesOrderIndex),
	})
	if err != nil {
		return err
	}
	_, err = s.typing.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}},
	})
	return err
}

func (s *MessagingStore) ConversationByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var doc conversationDocument
	if err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, classify(err)
	}
	conv := doc.toDomain()
	return &conv, nil
}

func (s *MessagingStore) ConversationsFor(ctx context.Context, userID string, ordered bool) ([]domain.Conversation, error) {
	opts := options.Find()
	if ordered {
		opts.SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}).SetHint(conversationsOrderIndex)
	}
	cur, err := s.conversations.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, classify(err)
	}
	var docs []conversationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	out := make([]domain.Conversation, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *MessagingStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	for _, id := range conv.Participants {
		if _, err := fieldKey("unread_count", id); err != nil {
			return err
		}
	}
	_, err := s.conversations.InsertOne(ctx, newConversationDocument(conv))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConversationExists
		}
		return classify(err)
	}
	return nil
}

func (s *MessagingStore) ResetUnread(ctx context.Context, conversationID, userID string) error {
	key, err := fieldKey("unread_count", userID)
	if err != nil {
		return err
	}
	res, err := s.conversations.UpdateByID(ctx, conversationID, bson.M{"$set": bson.M{key: 0}})
	if err != nil {
		return classify(err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (s *MessagingStore) WatchConversations(ctx context.Context, userID string, ordered bool, fn func([]domain.Conversation, error)) {
	match := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "fullDocument.participants", Value: userID}},
		bson.D{{Key: "operationType", Value: "delete"}},
	}}}
	runWatch(ctx, s, s.conversations, match, func(ctx context.Context) ([]domain.Conversation, error) {
		return s.ConversationsFor(ctx, userID, ordered)
	}, fn)
}

// summaryUpdate builds the conversation update for a send.
func summaryUpdate(update domain.ConversationUpdate) (bson.M, error) {
	doc := bson.M{"$set": bson.M{
		"last_message":      update.LastMessage,
		"last_message_time": update.LastMessageTime,
		"updated_at":        update.UpdatedAt,
	}}
	if update.IncrementUnreadFor != "" {
		key, err := fieldKey("unread_count", update.IncrementUnreadFor)
		if err != nil {
			return nil, err
		}
		doc["$inc"] = bson.M{key: 1}
	}
	return doc, nil
}

func (s *MessagingStore) updateSummary(ctx context.Context, conversationID string, doc bson.M) error {
	res, err := s.conversations.UpdateByID(ctx, conversationID, doc)
	if err != nil {
		return classify(err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}
