package testutil

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DialWebSocket connects to path on an httptest server URL, passing token as
// the token query parameter the way browsers do.
func DialWebSocket(t *testing.T, serverURL, path, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(strings.Replace(serverURL, "http", "ws", 1) + path)
	if err != nil {
		t.Fatalf("parse websocket url: %v", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err == nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

// ReadJSON reads one message into out, failing the test after timeout.
func ReadJSON(t *testing.T, conn *websocket.Conn, timeout time.Duration, out any) {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read websocket message: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode websocket message %q: %v", data, err)
	}
}

// ExpectSilence fails the test if a message arrives within wait.
func ExpectSilence(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(wait))
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected no message, got %s", data)
	}
}
