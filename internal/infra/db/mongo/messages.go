package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "venuehub/internal/domain/messaging"
)

// AppendMessage inserts msg and updates the conversation summary. With
// transactions enabled both writes commit together; otherwise a failed
// summary update leaves the message in place and is reported.
func (s *MessagingStore) AppendMessage(ctx context.Context, msg *domain.Message, update domain.ConversationUpdate) error {
	summary, err := summaryUpdate(update)
	if err != nil {
		return err
	}
	doc := newMessageDocument(msg)
	if !s.transactions {
		if _, err := s.messages.InsertOne(ctx, doc); err != nil {
			return classify(err)
		}
		if err := s.updateSummary(ctx, msg.ConversationID, summary); err != nil {
			s.logger.Warn("conversation summary update failed after insert",
				"conversation_id", msg.ConversationID, "message_id", msg.ID, "error", err)
			return err
		}
		return nil
	}

	session, err := s.db.Client().StartSession()
	if err != nil {
		return classify(err)
	}
	defer session.EndSession(ctx)
	txnOpts := options.Transaction().SetReadConcern(s.db.ReadConcern()).SetWriteConcern(s.db.WriteConcern())
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		if _, err := s.messages.InsertOne(sc, doc); err != nil {
			return nil, classify(err)
		}
		return nil, s.updateSummary(sc, msg.ConversationID, summary)
	}, txnOpts)
	return err
}

func (s *MessagingStore) MessagesFor(ctx context.Context, conversationID string, ordered bool) ([]domain.Message, error) {
	opts := options.Find()
	if ordered {
		opts.SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}).SetHint(messagesOrderIndex)
	}
	cur, err := s.messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, classify(err)
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	out := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *MessagingStore) MarkRead(ctx context.Context, conversationID, messageID, userID string, at time.Time) error {
	key, err := fieldKey("read_by", userID)
	if err != nil {
		return err
	}
	filter := bson.M{"_id": messageID, "conversation_id": conversationID}
	res, err := s.messages.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"read": true, key: at}})
	if err != nil {
		return classify(err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (s *MessagingStore) WatchMessages(ctx context.Context, conversationID string, ordered bool, fn func([]domain.Message, error)) {
	match := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "fullDocument.conversation_id", Value: conversationID}},
		bson.D{{Key: "operationType", Value: "delete"}},
	}}}
	runWatch(ctx, s, s.messages, match, func(ctx context.Context) ([]domain.Message, error) {
		return s.MessagesFor(ctx, conversationID, ordered)
	}, fn)
}
