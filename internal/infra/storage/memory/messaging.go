package memory

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	domain "venuehub/internal/domain/messaging"
)

// Operation names accepted by InjectFault.
const (
	OpConversationByID   = "ConversationByID"
	OpConversationsFor   = "ConversationsFor"
	OpCreateConversation = "CreateConversation"
	OpResetUnread        = "ResetUnread"
	OpWatchConversations = "WatchConversations"
	OpAppendMessage      = "AppendMessage"
	OpMessagesFor        = "MessagesFor"
	OpMarkRead           = "MarkRead"
	OpWatchMessages      = "WatchMessages"
	OpSetTyping          = "SetTyping"
	OpWatchTyping        = "WatchTyping"
)

// MessagingStore is an in-memory document store for conversations, messages
// and typing records. Watches re-evaluate their query after every write and
// deliver only when the result changed.
type MessagingStore struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
	messages      map[string][]*domain.Message
	typing        map[string]map[string]domain.TypingStatus
	noIndex       bool
	faults        map[string]error

	wmu      sync.Mutex
	watchers map[chan struct{}]struct{}
}

func NewMessagingStore() *MessagingStore {
	return &MessagingStore{
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string][]*domain.Message),
		typing:        make(map[string]map[string]domain.TypingStatus),
		faults:        make(map[string]error),
		watchers:      make(map[chan struct{}]struct{}),
	}
}

// SetIndexAvailable toggles support for ordered queries. Without the index,
// ordered reads and watches fail with domain.ErrIndexUnavailable.
func (s *MessagingStore) SetIndexAvailable(ok bool) {
	s.mu.Lock()
	s.noIndex = !ok
	s.mu.Unlock()
	s.notify()
}

// InjectFault makes op fail with err until cleared with a nil err.
func (s *MessagingStore) InjectFault(op string, err error) {
	s.mu.Lock()
	if err == nil {
		delete(s.faults, op)
	} else {
		s.faults[op] = err
	}
	s.mu.Unlock()
	s.notify()
}

// SaveConversation writes conv as is, replacing any record with the same id.
func (s *MessagingStore) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	s.conversations[conv.ID] = conv.Clone()
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MessagingStore) fault(op string) error {
	return s.faults[op]
}

func (s *MessagingStore) ConversationByID(ctx context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault(OpConversationByID); err != nil {
		return nil, err
	}
	conv, ok := s.conversations[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return conv.Clone(), nil
}

func (s *MessagingStore) ConversationsFor(ctx context.Context, userID string, ordered bool) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault(OpConversationsFor); err != nil {
		return nil, err
	}
	return s.conversationsLocked(userID, ordered)
}

func (s *MessagingStore) conversationsLocked(userID string, ordered bool) ([]domain.Conversation, error) {
	if ordered && s.noIndex {
		return nil, domain.ErrIndexUnavailable
	}
	out := make([]domain.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, *conv.Clone())
		}
	}
	if ordered {
		domain.SortConversations(out)
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	return out, nil
}

func (s *MessagingStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	if err := s.fault(OpCreateConversation); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.conversations[conv.ID]; ok {
		s.mu.Unlock()
		return domain.ErrConversationExists
	}
	s.conversations[conv.ID] = conv.Clone()
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MessagingStore) ResetUnread(ctx context.Context, conversationID, userID string) error {
	s.mu.Lock()
	if err := s.fault(OpResetUnread); err != nil {
		s.mu.Unlock()
		return err
	}
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrDocumentNotFound
	}
	if conv.UnreadCount == nil {
		conv.UnreadCount = make(map[string]int)
	}
	conv.UnreadCount[userID] = 0
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MessagingStore) AppendMessage(ctx context.Context, msg *domain.Message, update domain.ConversationUpdate) error {
	s.mu.Lock()
	if err := s.fault(OpAppendMessage); err != nil {
		s.mu.Unlock()
		return err
	}
	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrDocumentNotFound
	}
	stored := msg.Clone()
	if stored.ReadBy == nil {
		stored.ReadBy = make(map[string]time.Time)
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], stored)
	conv.LastMessage = update.LastMessage
	conv.LastMessageTime = update.LastMessageTime
	conv.UpdatedAt = update.UpdatedAt
	if update.IncrementUnreadFor != "" {
		if conv.UnreadCount == nil {
			conv.UnreadCount = make(map[string]int)
		}
		conv.UnreadCount[update.IncrementUnreadFor]++
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MessagingStore) MessagesFor(ctx context.Context, conversationID string, ordered bool) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault(OpMessagesFor); err != nil {
		return nil, err
	}
	return s.messagesLocked(conversationID, ordered)
}

func (s *MessagingStore) messagesLocked(conversationID string, ordered bool) ([]domain.Message, error) {
	if ordered && s.noIndex {
		return nil, domain.ErrIndexUnavailable
	}
	items := s.messages[conversationID]
	out := make([]domain.Message, 0, len(items))
	for _, m := range items {
		out = append(out, *m.Clone())
	}
	if ordered {
		domain.SortMessages(out)
	}
	return out, nil
}

func (s *MessagingStore) MarkRead(ctx context.Context, conversationID, messageID, userID string, at time.Time) error {
	s.mu.Lock()
	if err := s.fault(OpMarkRead); err != nil {
		s.mu.Unlock()
		return err
	}
	var target *domain.Message
	for _, m := range s.messages[conversationID] {
		if m.ID == messageID {
			target = m
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return domain.ErrDocumentNotFound
	}
	target.Read = true
	target.ReadBy[userID] = at
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MessagingStore) SetTyping(ctx context.Context, status domain.TypingStatus) error {
	s.mu.Lock()
	if err := s.fault(OpSetTyping); err != nil {
		s.mu.Unlock()
		return err
	}
	byUser, ok := s.typing[status.ConversationID]
	if !ok {
		byUser = make(map[string]domain.TypingStatus)
		s.typing[status.ConversationID] = byUser
	}
	rec := byUser[status.UserID]
	rec.ConversationID = status.ConversationID
	rec.UserID = status.UserID
	rec.IsTyping = status.IsTyping
	if !status.Timestamp.IsZero() {
		rec.Timestamp = status.Timestamp
	}
	byUser[status.UserID] = rec
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MessagingStore) typingLocked(conversationID string) []domain.TypingStatus {
	byUser := s.typing[conversationID]
	out := make([]domain.TypingStatus, 0, len(byUser))
	for _, st := range byUser {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (s *MessagingStore) WatchConversations(ctx context.Context, userID string, ordered bool, fn func([]domain.Conversation, error)) {
	watch(ctx, s, OpWatchConversations, func() ([]domain.Conversation, error) {
		return s.conversationsLocked(userID, ordered)
	}, fn)
}

func (s *MessagingStore) WatchMessages(ctx context.Context, conversationID string, ordered bool, fn func([]domain.Message, error)) {
	watch(ctx, s, OpWatchMessages, func() ([]domain.Message, error) {
		return s.messagesLocked(conversationID, ordered)
	}, fn)
}

func (s *MessagingStore) WatchTyping(ctx context.Context, conversationID string, fn func([]domain.TypingStatus, error)) {
	watch(ctx, s, OpWatchTyping, func() ([]domain.TypingStatus, error) {
		return s.typingLocked(conversationID), nil
	}, fn)
}

// watch evaluates query under the read lock once at start and after every
// write, delivering changed results until ctx is done or an error occurs.
func watch[T any](ctx context.Context, s *MessagingStore, op string, query func() ([]T, error), fn func([]T, error)) {
	wake := s.subscribe()
	go func() {
		defer s.unsubscribe(wake)
		var last []T
		first := true
		for {
			s.mu.RLock()
			err := s.fault(op)
			var items []T
			if err == nil {
				items, err = query()
			}
			s.mu.RUnlock()

			if ctx.Err() != nil {
				return
			}
			if err != nil {
				fn(nil, err)
				return
			}
			if first || !reflect.DeepEqual(items, last) {
				first = false
				last = items
				fn(items, nil)
			}

			select {
			case <-ctx.Done():
				return
			case <-wake:
			}
		}
	}()
}

func (s *MessagingStore) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	s.wmu.Lock()
	s.watchers[ch] = struct{}{}
	s.wmu.Unlock()
	return ch
}

func (s *MessagingStore) unsubscribe(ch chan struct{}) {
	s.wmu.Lock()
	delete(s.watchers, ch)
	s.wmu.Unlock()
}

// WatcherCount reports how many watches are still running.
func (s *MessagingStore) WatcherCount() int {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return len(s.watchers)
}

func (s *MessagingStore) notify() {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

var (
	_ domain.ConversationStore = (*MessagingStore)(nil)
	_ domain.MessageStore      = (*MessagingStore)(nil)
	_ domain.TypingStore       = (*MessagingStore)(nil)
)
