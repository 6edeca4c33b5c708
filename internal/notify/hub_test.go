package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"pulse/pkg/auth"
	"pulse/pkg/models"
	"pulse/pkg/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var jwtHelper = testutil.NewJWTTestHelper()

type hubHarness struct {
	hub    *Hub
	server *httptest.Server
}

func newHubHarness(t *testing.T) *hubHarness {
	t.Helper()
	logger, _ := logrustest.NewNullLogger()
	hub := NewHub(logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", auth.JWTAuthMiddleware(jwtHelper.Secret), func(c *gin.Context) {
		p, _ := auth.GetPrincipal(c)
		hub.ServeWS(c.Writer, c.Request, p)
	})
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return &hubHarness{hub: hub, server: server}
}

func (h *hubHarness) waitForClients(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.hub.ClientCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d registered clients, have %d", n, h.hub.ClientCount())
}

func TestHubRoutesByRoom(t *testing.T) {
	h := newHubHarness(t)

	editor1, _, err := testutil.DialWebSocket(t, h.server.URL, "/ws", testutil.EditorTenant1.Token(jwtHelper))
	if err != nil {
		t.Fatalf("dial editor1: %v", err)
	}
	viewer2, _, err := testutil.DialWebSocket(t, h.server.URL, "/ws", testutil.ViewerTenant2.Token(jwtHelper))
	if err != nil {
		t.Fatalf("dial viewer2: %v", err)
	}
	admin, _, err := testutil.DialWebSocket(t, h.server.URL, "/ws", testutil.GlobalAdmin.Token(jwtHelper))
	if err != nil {
		t.Fatalf("dial admin: %v", err)
	}
	h.waitForClients(t, 3)

	ctx := context.Background()
	if err := h.hub.Publish(ctx, TenantRoom("tenant-1"), EventVideoUploaded, map[string]string{"id": "vid-1"}); err != nil {
		t.Fatalf("publish tenant: %v", err)
	}
	if err := h.hub.Publish(ctx, RoomAdmin, EventModerationAlert, map[string]string{"video_id": "vid-1"}); err != nil {
		t.Fatalf("publish admin: %v", err)
	}

	var env Envelope
	testutil.ReadJSON(t, editor1, time.Second, &env)
	if env.Event != EventVideoUploaded || env.Room != "tenant-1" {
		t.Fatalf("editor1 got %+v", env)
	}
	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil || data["id"] != "vid-1" {
		t.Fatalf("unexpected data %s (%v)", env.Data, err)
	}
	if env.Timestamp.IsZero() {
		t.Fatal("envelope timestamp missing")
	}

	testutil.ReadJSON(t, admin, time.Second, &env)
	if env.Event != EventModerationAlert || env.Room != RoomAdmin {
		t.Fatalf("admin got %+v", env)
	}

	testutil.ExpectSilence(t, viewer2, 100*time.Millisecond)
	testutil.ExpectSilence(t, editor1, 100*time.Millisecond)
}

func TestHubPreservesOrderWithinRoom(t *testing.T) {
	h := newHubHarness(t)

	conn, _, err := testutil.DialWebSocket(t, h.server.URL, "/ws", testutil.ViewerTenant1.Token(jwtHelper))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	h.waitForClients(t, 1)

	events := []string{EventVideoUploaded, EventVideoUpdated, EventVideoDeleted}
	for _, e := range events {
		if err := h.hub.Publish(context.Background(), "tenant-1", e, map[string]string{"id": "vid-1"}); err != nil {
			t.Fatalf("publish %s: %v", e, err)
		}
	}

	for _, want := range events {
		var env Envelope
		testutil.ReadJSON(t, conn, time.Second, &env)
		if env.Event != want {
			t.Fatalf("expected %s, got %s", want, env.Event)
		}
	}
}

func TestHubLateJoinerMissesPriorEvents(t *testing.T) {
	h := newHubHarness(t)

	first, _, err := testutil.DialWebSocket(t, h.server.URL, "/ws", testutil.EditorTenant1.Token(jwtHelper))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	h.waitForClients(t, 1)

	_ = h.hub.Publish(context.Background(), "tenant-1", EventVideoUploaded, map[string]string{"id": "early"})
	var env Envelope
	testutil.ReadJSON(t, first, time.Second, &env)

	late, _, err := testutil.DialWebSocket(t, h.server.URL, "/ws", testutil.ViewerTenant1.Token(jwtHelper))
	if err != nil {
		t.Fatalf("dial late: %v", err)
	}
	h.waitForClients(t, 2)
	testutil.ExpectSilence(t, late, 100*time.Millisecond)
}

func TestHubRejectsUnauthenticated(t *testing.T) {
	h := newHubHarness(t)

	_, resp, err := testutil.DialWebSocket(t, h.server.URL, "/ws", "")
	if err == nil {
		t.Fatal("expected dial without token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	expired, err := jwtHelper.GenerateExpiredJWT("u-1", "tenant-1", "u@example.com", models.RoleEditor)
	if err != nil {
		t.Fatalf("expired token: %v", err)
	}
	_, resp, err = testutil.DialWebSocket(t, h.server.URL, "/ws", expired)
	if err == nil {
		t.Fatal("expected dial with expired token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %+v", resp)
	}
	if h.hub.ClientCount() != 0 {
		t.Fatalf("rejected dials must not register clients")
	}
}

func TestHubDisconnectUnregisters(t *testing.T) {
	h := newHubHarness(t)

	conn, _, err := testutil.DialWebSocket(t, h.server.URL, "/ws", testutil.EditorTenant1.Token(jwtHelper))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	h.waitForClients(t, 1)

	stats := h.hub.GetStats()
	rooms := stats["room_members"].(map[string]int)
	if rooms["tenant-1"] != 1 || rooms[RoomAdmin] != 0 {
		t.Fatalf("unexpected room stats %v", rooms)
	}

	_ = conn.Close()
	h.waitForClients(t, 0)
}

func TestHubPublishAfterStop(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	hub := NewHub(logger, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	if err := hub.Publish(context.Background(), "tenant-1", EventVideoUpdated, nil); err != ErrHubStopped {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
}
