package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"venuehub/internal/app/idempotency"
	"venuehub/internal/app/messaging"
	domain "venuehub/internal/domain/messaging"
)

const IdempotencyHeader = "Idempotency-Key"

// ChatHTTP exposes chat endpoints.
type ChatHTTP interface {
	CreateConversation(c *gin.Context)
	ListConversations(c *gin.Context)
	GetConversation(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	SetTyping(c *gin.Context)
	UnreadCount(c *gin.Context)
	StreamConversations(c *gin.Context)
	StreamMessages(c *gin.Context)
	StreamTyping(c *gin.Context)
	StreamUnread(c *gin.Context)
}

// MessagingService is the part of the messaging core the HTTP layer drives.
type MessagingService interface {
	GetOrCreateConversation(ctx context.Context, p messaging.GetOrCreateParams) (string, error)
	Conversation(ctx context.Context, id, viewerID string) (*domain.Conversation, error)
	Conversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	SendMessage(ctx context.Context, conversationID, senderID, text string) (*domain.Message, error)
	MarkMessagesAsRead(ctx context.Context, conversationID, userID string)
	GetUnreadMessageCount(ctx context.Context, userID string) int
	SetTypingStatus(ctx context.Context, conversationID, userID string, isTyping bool)
	SubscribeToMessages(ctx context.Context, conversationID string, fn func([]domain.Message)) domain.Cancel
	SubscribeToConversations(ctx context.Context, userID string, fn func([]domain.Conversation)) domain.Cancel
	SubscribeToUnreadCount(ctx context.Context, userID string, fn func(int)) domain.Cancel
	SubscribeToTyping(ctx context.Context, conversationID string, fn func([]string)) domain.Cancel
}

// ChatHandler bridges HTTP with the messaging service.
type ChatHandler struct {
	Messaging MessagingService
	Guard     *idempotency.Guard
	Logger    *slog.Logger
	// KeepAlive is the interval of SSE comment frames. Zero means 15s.
	KeepAlive time.Duration
}

// validate caches struct metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

func NewChatHandler(svc MessagingService, guard *idempotency.Guard, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{Messaging: svc, Guard: guard, Logger: logger}
}

type createConversationRequest struct {
	PeerID      string `json:"peer_id" validate:"required,max=128"`
	ListingID   string `json:"listing_id" validate:"omitempty,max=128"`
	ListingName string `json:"listing_name" validate:"omitempty,max=256"`
	HostID      string `json:"host_id" validate:"omitempty,max=128"`
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

type typingRequest struct {
	Typing *bool `json:"typing" validate:"required"`
}

// CreateConversation gets or creates the caller's thread with a peer.
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req createConversationRequest
	if !h.bind(c, &req) {
		return
	}
	id, err := h.Messaging.GetOrCreateConversation(c.Request.Context(), messaging.GetOrCreateParams{
		UserID1:     p.ID,
		UserID2:     req.PeerID,
		ListingID:   req.ListingID,
		ListingName: req.ListingName,
		HostID:      req.HostID,
	})
	if err != nil {
		h.respondMessagingError(c, err, "create conversation", "user_id", p.ID, "peer_id", req.PeerID, "listing_id", req.ListingID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	items, err := h.Messaging.Conversations(c.Request.Context(), p.ID)
	if err != nil {
		h.respondMessagingError(c, err, "list conversations", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": newConversationList(items, p.ID)})
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	p, conv, ok := h.authorizeConversation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newConversationDTO(conv, p.ID))
}

// SendMessage appends a message. Requests carrying an Idempotency-Key replay
// the first successful response instead of sending twice.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	var req sendMessageRequest
	if !h.bind(c, &req) {
		return
	}
	send := func(ctx context.Context) (any, error) {
		msg, err := h.Messaging.SendMessage(ctx, conversationID, p.ID, req.Text)
		if err != nil {
			return nil, err
		}
		return newMessageDTO(msg), nil
	}

	var out messageDTO
	key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
	if h.Guard == nil || key == "" {
		res, err := send(c.Request.Context())
		if err != nil {
			h.respondMessagingError(c, err, "send message", "conversation_id", conversationID, "user_id", p.ID)
			return
		}
		c.JSON(http.StatusCreated, res)
		return
	}
	replayed, err := h.Guard.Do(c.Request.Context(), "send:"+p.ID+":"+conversationID+":"+key, &out, send)
	if err != nil {
		h.respondMessagingError(c, err, "send message", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	if replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	c.JSON(http.StatusCreated, out)
}

// MarkRead never fails once the caller is authorized.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	p, conv, ok := h.authorizeConversation(c)
	if !ok {
		return
	}
	h.Messaging.MarkMessagesAsRead(c.Request.Context(), conv.ID, p.ID)
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) SetTyping(c *gin.Context) {
	p, conv, ok := h.authorizeConversation(c)
	if !ok {
		return
	}
	var req typingRequest
	if !h.bind(c, &req) {
		return
	}
	h.Messaging.SetTypingStatus(c.Request.Context(), conv.ID, p.ID, *req.Typing)
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) UnreadCount(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": h.Messaging.GetUnreadMessageCount(c.Request.Context(), p.ID)})
}

func (h *ChatHandler) StreamConversations(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	streamEvents(c, h.keepAlive(), "conversations", func(ctx context.Context, fn func([]domain.Conversation)) domain.Cancel {
		return h.Messaging.SubscribeToConversations(ctx, p.ID, fn)
	}, func(items []domain.Conversation) any {
		return newConversationList(items, p.ID)
	})
}

func (h *ChatHandler) StreamMessages(c *gin.Context) {
	_, conv, ok := h.authorizeConversation(c)
	if !ok {
		return
	}
	streamEvents(c, h.keepAlive(), "messages", func(ctx context.Context, fn func([]domain.Message)) domain.Cancel {
		return h.Messaging.SubscribeToMessages(ctx, conv.ID, fn)
	}, func(items []domain.Message) any {
		return newMessageList(items)
	})
}

func (h *ChatHandler) StreamTyping(c *gin.Context) {
	_, conv, ok := h.authorizeConversation(c)
	if !ok {
		return
	}
	streamEvents(c, h.keepAlive(), "typing", func(ctx context.Context, fn func([]string)) domain.Cancel {
		return h.Messaging.SubscribeToTyping(ctx, conv.ID, fn)
	}, func(ids []string) any {
		return gin.H{"user_ids": ids}
	})
}

func (h *ChatHandler) StreamUnread(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	streamEvents(c, h.keepAlive(), "unread", func(ctx context.Context, fn func(int)) domain.Cancel {
		return h.Messaging.SubscribeToUnreadCount(ctx, p.ID, fn)
	}, func(count int) any {
		return gin.H{"count": count}
	})
}

// authorizeConversation loads the :id conversation and checks the caller is
// a member of it.
func (h *ChatHandler) authorizeConversation(c *gin.Context) (principal, *domain.Conversation, bool) {
	p, ok := requireUser(c)
	if !ok {
		return principal{}, nil, false
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return principal{}, nil, false
	}
	conv, err := h.Messaging.Conversation(c.Request.Context(), conversationID, p.ID)
	if err != nil {
		h.respondMessagingError(c, err, "load conversation", "conversation_id", conversationID, "user_id", p.ID)
		return principal{}, nil, false
	}
	return p, conv, true
}

func (h *ChatHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return false
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[strings.ToLower(fe.Field())] = fe.Tag()
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return false
	}
	return true
}

func (h *ChatHandler) keepAlive() time.Duration {
	if h.KeepAlive > 0 {
		return h.KeepAlive
	}
	return 15 * time.Second
}

func (h *ChatHandler) respondMessagingError(c *gin.Context, err error, action string, attrs ...any) {
	status, message := statusFor(err)
	if h.Logger != nil {
		args := append([]any{"action", action, "status", status, "error", err}, attrs...)
		if status >= http.StatusInternalServerError {
			h.Logger.Error("messaging call failed", args...)
		} else {
			h.Logger.Debug("messaging call rejected", args...)
		}
	}
	c.JSON(status, gin.H{"error": message})
}

func statusFor(err error) (int, string) {
	var merr *domain.Error
	if !errors.As(err, &merr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return http.StatusServiceUnavailable, "messaging unavailable"
		}
		return http.StatusInternalServerError, "internal error"
	}
	switch merr.Kind {
	case domain.KindInvalidArgument:
		return http.StatusBadRequest, merr.Message
	case domain.KindNotFound:
		return http.StatusNotFound, "not found"
	case domain.KindPermissionDenied:
		return http.StatusForbidden, "forbidden"
	case domain.KindInvalidState:
		return http.StatusConflict, merr.Message
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

var _ ChatHTTP = (*ChatHandler)(nil)
var _ MessagingService = (*messaging.Service)(nil)
