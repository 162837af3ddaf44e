package ginserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"venuehub/internal/app/idempotency"
	"venuehub/internal/app/messaging"
	"venuehub/internal/app/profiles"
	domain "venuehub/internal/domain/messaging"
	"venuehub/internal/infra/config"
	"venuehub/internal/infra/obs"
	"venuehub/internal/infra/security"
	"venuehub/internal/infra/storage/memory"
)

type testAPI struct {
	router   *gin.Engine
	svc      *messaging.Service
	store    *memory.MessagingStore
	verifier *security.TokenVerifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	users := memory.NewUserRepository()
	require.NoError(t, users.Save(ctx, profiles.Profile{UserID: "guest", DisplayName: "Gia"}))
	require.NoError(t, users.Save(ctx, profiles.Profile{UserID: "host", DisplayName: "Hal", PhotoURL: "https://cdn/hal.jpg"}))

	store := memory.NewMessagingStore()
	svc, err := messaging.NewService(messaging.Deps{
		Conversations: store,
		Messages:      store,
		Typing:        store,
		Profiles:      profiles.Directory{Source: users},
		Listings:      memory.NewListingRepository(),
	})
	require.NoError(t, err)
	guard, err := idempotency.NewGuard(memory.NewIdempotencyStore(), nil, nil)
	require.NoError(t, err)

	verifier := security.NewTokenVerifier("test-secret", "accounts")
	chat := NewChatHandler(svc, guard, nil)
	chat.KeepAlive = time.Second
	router := NewRouter(config.Config{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, Handlers{
		Chat:           chat,
		AuthMiddleware: AuthMiddleware{Verifier: verifier}.Handle,
		Metrics:        obs.NewMetrics(),
	})
	return &testAPI{router: router, svc: svc, store: store, verifier: verifier}
}

func (a *testAPI) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := a.verifier.Issue(userID, time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(t *testing.T, userID, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(t, userID))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (a *testAPI) createConversation(t *testing.T) string {
	t.Helper()
	rec := a.do(t, "guest", http.MethodPost, "/api/v1/conversations", map[string]string{"peer_id": "host", "listing_id": "L9", "listing_name": "Barn"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[map[string]string](t, rec)["id"]
}

func TestRequiresAuthentication(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, "", http.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/unread", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConversationLifecycle(t *testing.T) {
	api := newTestAPI(t)
	id := api.createConversation(t)
	require.Equal(t, id, api.createConversation(t))

	rec := api.do(t, "guest", http.MethodPost, "/api/v1/conversations/"+id+"/messages", map[string]string{"text": "  Is the barn free on Friday?  "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	msg := decode[messageDTO](t, rec)
	require.Equal(t, "Is the barn free on Friday?", msg.Text)
	require.Equal(t, "Gia", msg.SenderName)

	rec = api.do(t, "host", http.MethodGet, "/api/v1/unread", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, decode[map[string]int](t, rec)["count"])

	rec = api.do(t, "host", http.MethodGet, "/api/v1/conversations/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decode[conversationDTO](t, rec)
	require.Equal(t, "Barn", conv.ListingName)
	require.Equal(t, 1, conv.Unread)
	require.Equal(t, &participantDTO{ID: "guest", Name: "Gia"}, conv.Participant)
	require.Equal(t, map[string]string{"host": "host", "guest": "guest"}, conv.Roles)

	rec = api.do(t, "host", http.MethodPost, "/api/v1/conversations/"+id+"/read", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, "host", http.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Items []conversationDTO `json:"items"`
	}](t, rec)
	require.Len(t, list.Items, 1)
	require.Zero(t, list.Items[0].Unread)
	require.Equal(t, "Is the barn free on Friday?", list.Items[0].LastMessage)
}

func TestSendMessageIdempotencyKey(t *testing.T) {
	api := newTestAPI(t)
	id := api.createConversation(t)
	path := "/api/v1/conversations/" + id + "/messages"

	first := api.do(t, "guest", http.MethodPost, path, map[string]string{"text": "hello"}, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := api.do(t, "guest", http.MethodPost, path, map[string]string{"text": "hello"}, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.Equal(t, decode[messageDTO](t, first).ID, decode[messageDTO](t, second).ID)

	msgs, err := api.store.MessagesFor(context.Background(), id, false)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	id := api.createConversation(t)

	rec := api.do(t, "stranger", http.MethodGet, "/api/v1/conversations/"+id, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, "stranger", http.MethodPost, "/api/v1/conversations/"+id+"/messages", map[string]string{"text": "hi"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, "guest", http.MethodGet, "/api/v1/conversations/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, "guest", http.MethodPost, "/api/v1/conversations/"+id+"/messages", map[string]string{"text": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, "guest", http.MethodPost, "/api/v1/conversations/"+id+"/messages", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "validation failed")

	rec = api.do(t, "guest", http.MethodPost, "/api/v1/conversations", map[string]string{"peer_id": "guest"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, "guest", http.MethodPut, "/api/v1/conversations/"+id+"/typing", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	api.store.InjectFault(memory.OpAppendMessage, fmt.Errorf("field %q: %w", "a.b", domain.ErrUnstorableID))
	rec = api.do(t, "guest", http.MethodPost, "/api/v1/conversations/"+id+"/messages", map[string]string{"text": "hi"})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestTypingRoundTrip(t *testing.T) {
	api := newTestAPI(t)
	id := api.createConversation(t)

	rec := api.do(t, "guest", http.MethodPut, "/api/v1/conversations/"+id+"/typing", map[string]bool{"typing": true})
	require.Equal(t, http.StatusNoContent, rec.Code)

	typing := make(chan []string, 4)
	cancel := api.svc.SubscribeToTyping(context.Background(), id, func(ids []string) { typing <- ids })
	defer cancel()
	select {
	case ids := <-typing:
		require.Equal(t, []string{"guest"}, ids)
	case <-time.After(3 * time.Second):
		t.Fatal("no typing snapshot")
	}
}

func TestUnreadStream(t *testing.T) {
	api := newTestAPI(t)
	id := api.createConversation(t)
	srv := httptest.NewServer(api.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/unread/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+api.token(t, "host"))
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	counts := make(chan int, 8)
	go func() {
		defer close(counts)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var payload struct {
				Count int `json:"count"`
			}
			if json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &payload) == nil {
				counts <- payload.Count
			}
		}
	}()

	next := func() int {
		select {
		case n, ok := <-counts:
			require.True(t, ok, "stream closed")
			return n
		case <-time.After(3 * time.Second):
			t.Fatal("no stream event")
			return -1
		}
	}
	require.Equal(t, 0, next())

	_, err = api.svc.SendMessage(context.Background(), id, "guest", "ping")
	require.NoError(t, err)
	for n := next(); n != 1; n = next() {
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, "", http.MethodGet, "/livez", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, "", http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}
