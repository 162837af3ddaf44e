package messaging

import (
	domain "venuehub/internal/domain/messaging"
)

const (
	DeletedUserName = "Deleted User"
	SelfName        = "You"
)

// ParticipantInfo returns the counterpart of viewerID in conv. For a
// conversation without a distinct counterpart it describes the viewer as
// "You"; for a conversation without participants it returns nil.
func ParticipantInfo(conv *domain.Conversation, viewerID string) *domain.ParticipantInfo {
	if conv == nil || len(conv.Participants) == 0 {
		return nil
	}
	other, ok := conv.OtherParticipant(viewerID)
	if !ok {
		return &domain.ParticipantInfo{
			ID:    viewerID,
			Name:  SelfName,
			Photo: conv.ParticipantPhotos[viewerID],
		}
	}
	name := conv.ParticipantNames[other]
	if name == "" {
		name = DeletedUserName
	}
	return &domain.ParticipantInfo{
		ID:    other,
		Name:  name,
		Photo: conv.ParticipantPhotos[other],
	}
}
