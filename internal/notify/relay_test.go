package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"pulse/pkg/testutil"
)

func TestRelayDeliversThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := newHubHarness(t)
	logger, _ := logrustest.NewNullLogger()
	relay := NewRelay(client, h.hub, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ready := make(chan struct{})
	go func() { _ = relay.Run(ctx, ready) }()
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("relay subscription not ready")
	}

	conn, _, err := testutil.DialWebSocket(t, h.server.URL, "/ws", testutil.EditorTenant1.Token(jwtHelper))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	h.waitForClients(t, 1)

	if err := relay.Publish(context.Background(), "tenant-1", EventVideoUpdated, map[string]string{"id": "vid-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var env Envelope
	testutil.ReadJSON(t, conn, 2*time.Second, &env)
	if env.Event != EventVideoUpdated || env.Room != "tenant-1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	testutil.ExpectSilence(t, conn, 100*time.Millisecond)
}

func TestRelayFallsBackToLocalDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	h := newHubHarness(t)
	logger, hook := logrustest.NewNullLogger()
	relay := NewRelay(client, h.hub, logger, nil)

	conn, _, err := testutil.DialWebSocket(t, h.server.URL, "/ws", testutil.GlobalAdmin.Token(jwtHelper))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	h.waitForClients(t, 1)

	if err := relay.Publish(context.Background(), RoomAdmin, EventModerationAlert, AlertPayload{VideoID: "vid-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var env Envelope
	testutil.ReadJSON(t, conn, 2*time.Second, &env)
	if env.Event != EventModerationAlert {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if len(hook.AllEntries()) == 0 {
		t.Fatal("expected relay failure to be logged")
	}
}
