package messaging

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Conversation is a two-party thread, optionally scoped to one listing.
// Participant names and photos are a display cache refreshed on read.
type Conversation struct {
	ID                string
	Participants      []string
	ParticipantNames  map[string]string
	ParticipantPhotos map[string]string
	ParticipantRoles  map[string]Role
	HostID            string
	ListingID         string
	ListingName       string
	ListingPhoto      string
	LastMessage       string
	LastMessageTime   time.Time
	UnreadCount       map[string]int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ParticipantInfo is the display identity of one conversation member.
type ParticipantInfo struct {
	ID    string
	Name  string
	Photo string
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	if c == nil || userID == "" {
		return false
	}
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the first member that is not viewerID.
func (c *Conversation) OtherParticipant(viewerID string) (string, bool) {
	if c == nil {
		return "", false
	}
	for _, p := range c.Participants {
		if p != "" && p != viewerID {
			return p, true
		}
	}
	return "", false
}

// Matches reports whether the conversation holds exactly the unordered pair
// {userA, userB} about listingID. An empty listingID matches only
// conversations without a listing.
func (c *Conversation) Matches(userA, userB, listingID string) bool {
	if c == nil || len(c.Participants) == 0 {
		return false
	}
	if c.ListingID != listingID {
		return false
	}
	return sameMembers(c.Participants, []string{userA, userB})
}

// Unread returns the unread counter for userID, zero when absent.
func (c *Conversation) Unread(userID string) int {
	if c == nil || c.UnreadCount == nil {
		return 0
	}
	if n := c.UnreadCount[userID]; n > 0 {
		return n
	}
	return 0
}

// Clone returns a deep copy so callers can mutate maps safely.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.ParticipantNames = cloneMap(c.ParticipantNames)
	out.ParticipantPhotos = cloneMap(c.ParticipantPhotos)
	out.UnreadCount = cloneMap(c.UnreadCount)
	out.ParticipantRoles = cloneMap(c.ParticipantRoles)
	return &out
}

// ConversationKey derives the deterministic identifier for a pair and listing.
// The pair is order-insensitive.
func ConversationKey(userA, userB, listingID string) string {
	pair := []string{strings.TrimSpace(userA), strings.TrimSpace(userB)}
	sort.Strings(pair)
	sum := sha256.Sum256([]byte(pair[0] + "\x00" + pair[1] + "\x00" + strings.TrimSpace(listingID)))
	return "cv_" + hex.EncodeToString(sum[:16])
}

// SortConversations orders by UpdatedAt descending, ID ascending on ties.
func SortConversations(items []Conversation) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

func sameMembers(stored, wanted []string) bool {
	a := uniqueSorted(stored)
	b := uniqueSorted(wanted)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	if in == nil {
		return nil
	}
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
