package messaging

import (
	"time"

	"venuehub/internal/domain/shared/events"
)

const (
	EventConversationCreated = "conversation.created"
	EventMessageSent         = "conversation.message_sent"
)

type ConversationCreatedEvent struct {
	events.BaseEvent
	ConversationID string   `json:"conversation_id"`
	Participants   []string `json:"participants"`
	HostID         string   `json:"host_id"`
	ListingID      string   `json:"listing_id,omitempty"`
}

func NewConversationCreatedEvent(conv *Conversation) ConversationCreatedEvent {
	return ConversationCreatedEvent{
		BaseEvent:      events.BaseEvent{Name: EventConversationCreated, Aggregate: conv.ID, Time: conv.CreatedAt},
		ConversationID: conv.ID,
		Participants:   append([]string(nil), conv.Participants...),
		HostID:         conv.HostID,
		ListingID:      conv.ListingID,
	}
}

type MessageSentEvent struct {
	events.BaseEvent
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	SenderID       string `json:"sender_id"`
	RecipientID    string `json:"recipient_id,omitempty"`
	ListingID      string `json:"listing_id,omitempty"`
}

func NewMessageSentEvent(conv *Conversation, msg *Message, recipient string, at time.Time) MessageSentEvent {
	return MessageSentEvent{
		BaseEvent:      events.BaseEvent{Name: EventMessageSent, Aggregate: conv.ID, Time: at},
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		RecipientID:    recipient,
		ListingID:      conv.ListingID,
	}
}
