package mongo

import (
	"time"

	domain "venuehub/internal/domain/messaging"
)

type conversationDocument struct {
	ID                string            `bson:"_id"`
	Participants      []string          `bson:"participants"`
	ParticipantNames  map[string]string `bson:"participant_names,omitempty"`
	ParticipantPhotos map[string]string `bson:"participant_photos,omitempty"`
	ParticipantRoles  map[string]string `bson:"participant_roles,omitempty"`
	HostID            string            `bson:"host_id"`
	ListingID         string            `bson:"listing_id"`
	ListingName       string            `bson:"listing_name,omitempty"`
	ListingPhoto      string            `bson:"listing_photo,omitempty"`
	LastMessage       string            `bson:"last_message"`
	LastMessageTime   time.Time         `bson:"last_message_time"`
	UnreadCount       map[string]int    `bson:"unread_count"`
	CreatedAt         time.Time         `bson:"created_at"`
	UpdatedAt         time.Time         `bson:"updated_at"`
}

func newConversationDocument(c *domain.Conversation) conversationDocument {
	doc := conversationDocument{
		ID:                c.ID,
		Participants:      append([]string(nil), c.Participants...),
		ParticipantNames:  c.ParticipantNames,
		ParticipantPhotos: c.ParticipantPhotos,
		HostID:            c.HostID,
		ListingID:         c.ListingID,
		ListingName:       c.ListingName,
		ListingPhoto:      c.ListingPhoto,
		LastMessage:       c.LastMessage,
		LastMessageTime:   c.LastMessageTime,
		UnreadCount:       c.UnreadCount,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
	if doc.UnreadCount == nil {
		doc.UnreadCount = map[string]int{}
	}
	if len(c.ParticipantRoles) > 0 {
		doc.ParticipantRoles = make(map[string]string, len(c.ParticipantRoles))
		for id, role := range c.ParticipantRoles {
			doc.ParticipantRoles[id] = string(role)
		}
	}
	return doc
}

func (d conversationDocument) toDomain() domain.Conversation {
	conv := domain.Conversation{
		ID:                d.ID,
		Participants:      d.Participants,
		ParticipantNames:  d.ParticipantNames,
		ParticipantPhotos: d.ParticipantPhotos,
		HostID:            d.HostID,
		ListingID:         d.ListingID,
		ListingName:       d.ListingName,
		ListingPhoto:      d.ListingPhoto,
		LastMessage:       d.LastMessage,
		LastMessageTime:   utc(d.LastMessageTime),
		UnreadCount:       d.UnreadCount,
		CreatedAt:         utc(d.CreatedAt),
		UpdatedAt:         utc(d.UpdatedAt),
	}
	if len(d.ParticipantRoles) > 0 {
		conv.ParticipantRoles = make(map[string]domain.Role, len(d.ParticipantRoles))
		for id, role := range d.ParticipantRoles {
			conv.ParticipantRoles[id] = domain.Role(role)
		}
	}
	return conv
}

type messageDocument struct {
	ID             string               `bson:"_id"`
	ConversationID string               `bson:"conversation_id"`
	SenderID       string               `bson:"sender_id"`
	SenderName     string               `bson:"sender_name"`
	SenderPhoto    string               `bson:"sender_photo,omitempty"`
	Text           string               `bson:"text"`
	Timestamp      time.Time            `bson:"timestamp"`
	Read           bool                 `bson:"read"`
	ReadBy         map[string]time.Time `bson:"read_by"`
}

func newMessageDocument(m *domain.Message) messageDocument {
	doc := messageDocument{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		SenderPhoto:    m.SenderPhoto,
		Text:           m.Text,
		Timestamp:      m.Timestamp,
		Read:           m.Read,
		ReadBy:         m.ReadBy,
	}
	if doc.ReadBy == nil {
		doc.ReadBy = map[string]time.Time{}
	}
	return doc
}

func (d messageDocument) toDomain() domain.Message {
	readBy := make(map[string]time.Time, len(d.ReadBy))
	for id, at := range d.ReadBy {
		readBy[id] = utc(at)
	}
	return domain.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		SenderName:     d.SenderName,
		SenderPhoto:    d.SenderPhoto,
		Text:           d.Text,
		Timestamp:      utc(d.Timestamp),
		Read:           d.Read,
		ReadBy:         readBy,
	}
}

type typingDocument struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation_id"`
	UserID         string    `bson:"user_id"`
	IsTyping       bool      `bson:"is_typing"`
	Timestamp      time.Time `bson:"timestamp"`
}

func (d typingDocument) toDomain() domain.TypingStatus {
	return domain.TypingStatus{
		ConversationID: d.ConversationID,
		UserID:         d.UserID,
		IsTyping:       d.IsTyping,
		Timestamp:      utc(d.Timestamp),
	}
}

func typingID(conversationID, userID string) string {
	return conversationID + "/" + userID
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
