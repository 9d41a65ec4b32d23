package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/lifelink/lifelink/internal/platform/auth"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newClient(hub *Hub, topics ...string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		Topics: topics,
		Send:   make(chan []byte, 256),
		hub:    hub,
	}
}

// ---------------------------------------------------------------------------
// Hub tests
// ---------------------------------------------------------------------------

func TestHub_RegisterClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	userID := uuid.New()
	client := newClient(hub, UserTopic(userID))

	if !hub.Register(client) {
		t.Fatal("expected register to succeed")
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount(UserTopic(userID)) != 1 {
		t.Fatalf("expected 1 client on user topic, got %d", hub.TopicCount(UserTopic(userID)))
	}
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient(hub, "user:x")
	hub.Register(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.TopicCount("user:x") != 0 {
		t.Fatalf("expected topic to be removed")
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send channel to be closed")
	}

	// A second unregister must not panic on the closed channel.
	hub.Unregister(client)
}

func TestHub_PublishToUser(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	alice, bob := uuid.New(), uuid.New()
	ca := newClient(hub, UserTopic(alice))
	cb := newClient(hub, UserTopic(bob))
	hub.Register(ca)
	hub.Register(cb)

	err := hub.PublishToUser(context.Background(), alice, "notification", "notification", "n-1",
		map[string]string{"title": "Request Approved"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case msg := <-ca.Send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ev.Type != "notification" || ev.ResourceID != "n-1" || ev.Topic != UserTopic(alice) {
			t.Errorf("unexpected event: %+v", ev)
		}
		if !strings.Contains(string(ev.Data), "Request Approved") {
			t.Errorf("unexpected data: %s", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("alice did not receive event")
	}

	select {
	case <-cb.Send:
		t.Fatal("bob should not receive alice's event")
	default:
	}
}

func TestHub_BroadcastToEmptyTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Broadcast("user:nobody", Event{Type: "x"})
}

func TestHub_BroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Topics: []string{TopicStock}, Send: make(chan []byte, 1), hub: hub}
	hub.Register(client)

	hub.Broadcast(TopicStock, Event{Type: "a"})
	hub.Broadcast(TopicStock, Event{Type: "b"})

	if len(client.Send) != 1 {
		t.Fatalf("expected exactly one buffered event, got %d", len(client.Send))
	}
}

func TestHub_SubscribeOnlyPublicTopics(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient(hub, "user:me")
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{TopicStock, "user:someone-else", TopicStock}})

	if hub.TopicCount(TopicStock) != 1 {
		t.Errorf("expected stock subscription, got %d", hub.TopicCount(TopicStock))
	}
	if hub.TopicCount("user:someone-else") != 0 {
		t.Error("private topic of another user must not be subscribable")
	}
	if len(client.Topics) != 2 {
		t.Errorf("expected 2 topics, got %v", client.Topics)
	}
}

func TestHub_UnsubscribeKeepsPrivateTopics(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient(hub, "user:me", TopicStock)
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{TopicStock, "user:me"}})

	if hub.TopicCount(TopicStock) != 0 {
		t.Error("expected stock subscription removed")
	}
	if hub.TopicCount("user:me") != 1 {
		t.Error("user topic must survive unsubscribe")
	}
	if len(client.Topics) != 1 || client.Topics[0] != "user:me" {
		t.Errorf("unexpected topics: %v", client.Topics)
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient(hub, TopicStock)
			hub.Register(c)
			hub.Broadcast(TopicStock, Event{Type: "stock.changed"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHub_RegisterAfterCloseFails(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Close()
	if hub.Register(newClient(hub, TopicStock)) {
		t.Fatal("expected register to fail after close")
	}
	hub.Close()
}

// ---------------------------------------------------------------------------
// Pump tests with a fake connection
// ---------------------------------------------------------------------------

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.inbound:
		return gorillawebsocket.TextMessage, msg, nil
	case <-f.closed:
		return 0, nil, errors.New("closed")
	}
}

func (f *fakeConn) WriteMessage(mt int, data []byte) error {
	if mt != gorillawebsocket.TextMessage {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(appData string) error) {}
func (f *fakeConn) SetReadLimit(int64) {}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHub_RunDeliversAndCloseStopsPumps(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := newFakeConn()
	client := &Client{ID: "c1", Topics: []string{"user:1"}, Send: make(chan []byte, 8), hub: hub, conn: conn}
	hub.Register(client)
	hub.Run(client)

	conn.inbound <- []byte(`{"action":"subscribe","topics":["stock"]}`)
	waitFor(t, func() bool { return hub.TopicCount(TopicStock) == 1 })

	hub.Broadcast(TopicStock, Event{Type: "stock.changed"})
	waitFor(t, func() bool { return conn.writes() == 1 })

	hub.Close()
	if hub.ClientCount() != 0 {
		t.Errorf("expected no clients after close, got %d", hub.ClientCount())
	}
}

func TestHub_ReadErrorUnregisters(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := newFakeConn()
	client := &Client{ID: "c2", Topics: []string{"user:2"}, Send: make(chan []byte, 8), hub: hub, conn: conn}
	hub.Register(client)
	hub.Run(client)

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
	hub.Close()
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func TestHandler_RequiresIdentity(t *testing.T) {
	h := NewHandler(NewHub(zerolog.Nop()), nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	rec := httptest.NewRecorder()
	err := h.HandleConnect(e.NewContext(req, rec))

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_CheckOrigin(t *testing.T) {
	h := NewHandler(NewHub(zerolog.Nop()), []string{"https://app.lifelink.local"})

	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	req.Header.Set("Origin", "https://evil.example")
	if h.upgrader.CheckOrigin(req) {
		t.Error("expected foreign origin to be rejected")
	}
	req.Header.Set("Origin", "https://app.lifelink.local")
	if !h.upgrader.CheckOrigin(req) {
		t.Error("expected configured origin to be accepted")
	}
}

func TestHandler_FullUpgradeWithToken(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	tokens := auth.NewTokenManager(auth.TokenConfig{Secret: []byte("ws-test-secret-0123456789abcdef"), Issuer: "lifelink-test"})
	userID := uuid.New()
	pair, err := tokens.Issue(userID, auth.RoleDonor)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	e := echo.New()
	api := e.Group("/api")
	api.Use(auth.JWTMiddleware(tokens, nil))
	NewHandler(hub, nil).RegisterRoutes(api)

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws?token=" + pair.AccessToken
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	waitFor(t, func() bool { return hub.TopicCount(UserTopic(userID)) == 1 })
	if hub.TopicCount(RoleTopic(auth.RoleDonor)) != 1 {
		t.Error("expected role topic subscription")
	}

	if err := hub.PublishToUser(context.Background(), userID, "notification", "notification", "n-9", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.ResourceID != "n-9" {
		t.Fatalf("expected ResourceID n-9, got %s", received.ResourceID)
	}

	conn.Close()
	hub.Close()
}

func TestHandler_UpgradeWithoutTokenRejected(t *testing.T) {
	tokens := auth.NewTokenManager(auth.TokenConfig{Secret: []byte("ws-test-secret-0123456789abcdef")})
	e := echo.New()
	api := e.Group("/api")
	api.Use(auth.JWTMiddleware(tokens, nil))
	NewHandler(NewHub(zerolog.Nop()), nil).RegisterRoutes(api)

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws"
	_, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}
}
