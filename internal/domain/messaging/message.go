package messaging

import (
	"sort"
	"time"
)

// SoftTextLimit is the length above which a send is logged but still accepted.
const SoftTextLimit = 10000

// Message is an append-only entry of a conversation. Only Read and ReadBy
// change after creation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	SenderPhoto    string
	Text           string
	Timestamp      time.Time
	Read           bool
	ReadBy         map[string]time.Time
}

// ReadByUser reports whether userID already acknowledged the message.
func (m *Message) ReadByUser(userID string) bool {
	if m == nil || m.ReadBy == nil {
		return false
	}
	_, ok := m.ReadBy[userID]
	return ok
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.ReadBy = cloneMap(m.ReadBy)
	return &out
}

// SortMessages orders by Timestamp ascending, ID ascending on ties.
func SortMessages(items []Message) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.Before(items[j].Timestamp)
		}
		return items[i].ID < items[j].ID
	})
}

// TypingStatus is the live composing flag of one user in one conversation.
type TypingStatus struct {
	ConversationID string
	UserID         string
	IsTyping       bool
	Timestamp      time.Time
}

// TypingUsers extracts the ids flagged as typing, skipping empty ids.
func TypingUsers(statuses []TypingStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, st := range statuses {
		if !st.IsTyping || st.UserID == "" {
			continue
		}
		out = append(out, st.UserID)
	}
	sort.Strings(out)
	return out
}
