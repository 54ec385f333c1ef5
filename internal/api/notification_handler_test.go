package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/tradeloop/notification-service/internal/api"
	"github.com/tradeloop/notification-service/internal/domain"
	"github.com/tradeloop/notification-service/internal/realtime"
	"github.com/tradeloop/notification-service/internal/repository"
)

// nopBroadcaster satisfies domain.Broadcaster; handler tests assert on HTTP
// behavior, push fanout is covered by the domain tests.
type nopBroadcaster struct{}

func (nopBroadcaster) ToUser(int64, string, any) {}
func (nopBroadcaster) ToChat(string, string, any) {}
func (nopBroadcaster) ToAdmins(string, any)       {}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestServer(t *testing.T) (http.Handler, *domain.NotificationService, *repository.MemoryRepository) {
	t.Helper()
	logger := zap.NewNop()
	repo := repository.NewMemoryRepository()
	unread := domain.NewUnreadService(repo)
	service := domain.NewNotificationService(repo, repo, unread, nopBroadcaster{}, nil, logger)

	hub := realtime.NewHub(logger)
	hub.SetCoordinator(service)
	go hub.Run()

	router := api.NewRouter(
		api.NewNotificationHandler(service, logger),
		api.NewWSHandler(hub, logger),
		api.NewHealthHandler(nil),
		nil,
		logger,
	)
	return router.Setup(), service, repo
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestGetUnreadCounts(t *testing.T) {
	h, service, _ := newTestServer(t)
	require.NoError(t, service.IngestComment(context.Background(), domain.InboundEvent{UserID: 7, Message: "hi"}))

	rec, env := doJSON(t, h, http.MethodGet, "/notifications/unread?user_id=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	var snap domain.UnreadSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, int64(0), snap.Chat)
	assert.Equal(t, int64(1), snap.Comments)
}

func TestGetUnreadCounts_InvalidUserID(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec, env := doJSON(t, h, http.MethodGet, "/notifications/unread?user_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestMarkRead_NotFoundAndSecondCall(t *testing.T) {
	h, service, repo := newTestServer(t)
	ctx := context.Background()

	// Unknown id answers not-found.
	rec, _ := doJSON(t, h, http.MethodPost, "/notifications/mark-read", map[string]any{
		"user_id": 7,
		"id":      primitive.NewObjectID().Hex(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, service.IngestComment(ctx, domain.InboundEvent{UserID: 7, Message: "hi"}))
	records, err := repo.Find(ctx, domain.UserCategory(7, domain.CategoryComment), false)
	require.NoError(t, err)
	require.Len(t, records, 1)

	body := map[string]any{"user_id": 7, "id": records[0].ID.Hex()}

	rec, env := doJSON(t, h, http.MethodPost, "/notifications/mark-read", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	// Already read now: indistinguishable from absent.
	rec, env = doJSON(t, h, http.MethodPost, "/notifications/mark-read", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestMarkRead_InvalidID(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec, _ := doJSON(t, h, http.MethodPost, "/notifications/mark-read", map[string]any{
		"user_id": 7,
		"id":      "not-an-object-id",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkChatRead_Idempotent(t *testing.T) {
	h, service, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, service.IngestChat(ctx, domain.InboundEvent{UserID: 7, ChatID: "c1", Message: "a"}))
	require.NoError(t, service.IngestChat(ctx, domain.InboundEvent{UserID: 7, ChatID: "c1", Message: "b"}))

	body := map[string]any{"user_id": 7, "chat_id": "c1"}

	rec, env := doJSON(t, h, http.MethodPost, "/notifications/mark-chat-read", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]int64
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, int64(2), result["modified_count"])

	rec, env = doJSON(t, h, http.MethodPost, "/notifications/mark-chat-read", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, int64(0), result["modified_count"])
}

func TestPaymentEndpoints(t *testing.T) {
	h, service, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, service.IngestPayment(ctx, domain.InboundEvent{BuyerID: 1, SellerID: 2, Message: "paid"}))

	rec, env := doJSON(t, h, http.MethodGet, "/notifications/unread-payments?user_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count domain.PaymentCount
	require.NoError(t, json.Unmarshal(env.Data, &count))
	assert.Equal(t, int64(1), count.Payments)

	rec, env = doJSON(t, h, http.MethodGet, "/notifications/all-payments?user_id=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list domain.NotificationList
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Lists, 1)
	assert.Equal(t, int64(2), list.Lists[0].UserID)

	rec, env = doJSON(t, h, http.MethodPost, "/notifications/mark-payment-read", map[string]any{"user_id": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]int64
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, int64(1), result["modified_count"])

	// The seller's side is untouched by the buyer's read.
	rec, env = doJSON(t, h, http.MethodGet, "/notifications/unread-payments?user_id=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &count))
	assert.Equal(t, int64(1), count.Payments)
}

func TestAdminEndpoints_GlobalReadState(t *testing.T) {
	h, service, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, service.IngestAdminRequest(ctx, domain.InboundEvent{UserID: 100}))
	require.NoError(t, service.IngestAdminRequest(ctx, domain.InboundEvent{UserID: 101}))

	rec, env := doJSON(t, h, http.MethodGet, "/notifications/unread-admin-requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var counts map[string]int64
	require.NoError(t, json.Unmarshal(env.Data, &counts))
	assert.Equal(t, int64(2), counts["counts"])

	// No request body needed: read state is global across admins.
	rec, env = doJSON(t, h, http.MethodPost, "/notifications/mark-admin-request-read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]int64
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, int64(2), result["modified_count"])

	rec, env = doJSON(t, h, http.MethodGet, "/notifications/all-admin-requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list domain.NotificationList
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Lists, 2)
}

func TestUnreadDetails(t *testing.T) {
	h, service, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, service.IngestChat(ctx, domain.InboundEvent{UserID: 7, ChatID: "c1"}))
	require.NoError(t, service.IngestChat(ctx, domain.InboundEvent{UserID: 7, ChatID: "c2"}))

	rec, env := doJSON(t, h, http.MethodGet, "/notifications/unread-details?user_id=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var refs []domain.ChatRef
	require.NoError(t, json.Unmarshal(env.Data, &refs))
	assert.ElementsMatch(t, []domain.ChatRef{
		{ChatID: "c1", Category: domain.CategoryChat},
		{ChatID: "c2", Category: domain.CategoryChat},
	}, refs)
}

func TestRegisterDeviceToken(t *testing.T) {
	h, _, repo := newTestServer(t)

	rec, _ := doJSON(t, h, http.MethodPost, "/notifications/device-token", map[string]any{
		"user_id": 7,
		"token":   "tok-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	tokens, err := repo.DeviceTokens(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-1"}, tokens)

	// Missing token rejected.
	rec, _ = doJSON(t, h, http.MethodPost, "/notifications/device-token", map[string]any{"user_id": 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// stallingBody blocks every Read until unblocked, simulating a client that
// never finishes sending its request body.
type stallingBody struct {
	unblock chan struct{}
}

func (b *stallingBody) Read([]byte) (int, error) {
	<-b.unblock
	return 0, io.EOF
}

func TestMutation_StalledBodyAnswers408(t *testing.T) {
	h, _, _ := newTestServer(t)

	body := &stallingBody{unblock: make(chan struct{})}
	t.Cleanup(func() { close(body.unblock) })

	// A context deadline shorter than the body read bound keeps the test fast;
	// the handler's bounded wait fires on whichever deadline comes first.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/notifications/mark-chat-read", body).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "REQUEST_TIMEOUT", env.Error.Code)
}

func TestWebSocketUpgradeThroughMiddleware(t *testing.T) {
	h, _, _ := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	// The handshake must survive the full middleware chain of the real server.
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user_id=7"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "websocket handshake failed")
	defer conn.Close()
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"get_unread_counts"}`)))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var pushed realtime.Envelope
	require.NoError(t, json.Unmarshal(raw, &pushed))
	assert.Equal(t, domain.EventUnreadCounts, pushed.Event)
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
