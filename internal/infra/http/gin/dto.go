package ginserver

import (
	"time"

	"venuehub/internal/app/messaging"
	domain "venuehub/internal/domain/messaging"
)

type participantDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Photo string `json:"photo,omitempty"`
}

type conversationDTO struct {
	ID              string            `json:"id"`
	Participants    []string          `json:"participants"`
	Participant     *participantDTO   `json:"participant,omitempty"`
	Roles           map[string]string `json:"roles,omitempty"`
	HostID          string            `json:"host_id,omitempty"`
	ListingID       string            `json:"listing_id,omitempty"`
	ListingName     string            `json:"listing_name,omitempty"`
	ListingPhoto    string            `json:"listing_photo,omitempty"`
	LastMessage     string            `json:"last_message"`
	LastMessageTime *time.Time        `json:"last_message_time,omitempty"`
	Unread          int               `json:"unread"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type messageDTO struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversation_id"`
	SenderID       string               `json:"sender_id"`
	SenderName     string               `json:"sender_name"`
	SenderPhoto    string               `json:"sender_photo,omitempty"`
	Text           string               `json:"text"`
	Timestamp      time.Time            `json:"timestamp"`
	Read           bool                 `json:"read"`
	ReadBy         map[string]time.Time `json:"read_by,omitempty"`
}

// newConversationDTO renders conv from viewerID's point of view.
func newConversationDTO(conv *domain.Conversation, viewerID string) conversationDTO {
	out := conversationDTO{
		ID:           conv.ID,
		Participants: append([]string(nil), conv.Participants...),
		HostID:       conv.HostID,
		ListingID:    conv.ListingID,
		ListingName:  conv.ListingName,
		ListingPhoto: conv.ListingPhoto,
		LastMessage:  conv.LastMessage,
		Unread:       conv.Unread(viewerID),
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
	if !conv.LastMessageTime.IsZero() {
		t := conv.LastMessageTime
		out.LastMessageTime = &t
	}
	if len(conv.ParticipantRoles) > 0 {
		out.Roles = make(map[string]string, len(conv.ParticipantRoles))
		for id, role := range conv.ParticipantRoles {
			out.Roles[id] = string(role)
		}
	}
	if info := messaging.ParticipantInfo(conv, viewerID); info != nil {
		out.Participant = &participantDTO{ID: info.ID, Name: info.Name, Photo: info.Photo}
	}
	return out
}

func newConversationList(items []domain.Conversation, viewerID string) []conversationDTO {
	out := make([]conversationDTO, 0, len(items))
	for i := range items {
		out = append(out, newConversationDTO(&items[i], viewerID))
	}
	return out
}

func newMessageDTO(m *domain.Message) messageDTO {
	return messageDTO{
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
}

func newMessageList(items []domain.Message) []messageDTO {
	out := make([]messageDTO, 0, len(items))
	for i := range items {
		out = append(out, newMessageDTO(&items[i]))
	}
	return out
}
