package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "venuehub/internal/domain/messaging"
)

// SetTyping upserts the record of one user in one conversation. Only the
// fields carried by status are written.
func (s *MessagingStore) SetTyping(ctx context.Context, status domain.TypingStatus) error {
	set := bson.M{
		"conversation_id": status.ConversationID,
		"user_id":         status.UserID,
		"is_typing":       status.IsTyping,
	}
	if !status.Timestamp.IsZero() {
		set["timestamp"] = status.Timestamp
	}
	_, err := s.typing.UpdateByID(ctx, typingID(status.ConversationID, status.UserID), bson.M{"$set": set}, options.Update().SetUpsert(true))
	return classify(err)
}

func (s *MessagingStore) typingFor(ctx context.Context, conversationID string) ([]domain.TypingStatus, error) {
	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}})
	cur, err := s.typing.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, classify(err)
	}
	var docs []typingDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	out := make([]domain.TypingStatus, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *MessagingStore) WatchTyping(ctx context.Context, conversationID string, fn func([]domain.TypingStatus, error)) {
	match := bson.D{{Key: "fullDocument.conversation_id", Value: conversationID}}
	runWatch(ctx, s, s.typing, match, func(ctx context.Context) ([]domain.TypingStatus, error) {
		return s.typingFor(ctx, conversationID)
	}, fn)
}
