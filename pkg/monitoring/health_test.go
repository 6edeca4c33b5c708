package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthChecker_Aggregation(t *testing.T) {
	tests := []struct {
		name    string
		results []string
		want    string
	}{
		{"all healthy", []string{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []string{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"one unhealthy", []string{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
		{"unknown status", []string{"weird"}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker("svc", "v1")
			for i, r := range tt.results {
				result := r
				hc.AddCheck(string(rune('a'+i)), func() CheckResult { return CheckResult{Status: result} })
			}
			if got := hc.CheckHealth().Status; got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestPingHealthCheck(t *testing.T) {
	if res := PingHealthCheck("x", stubPinger{}, false)(); res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %q", res.Status)
	}
	if res := PingHealthCheck("x", stubPinger{err: errors.New("down")}, false)(); res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %q", res.Status)
	}
	if res := PingHealthCheck("x", stubPinger{err: errors.New("down")}, true)(); res.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %q", res.Status)
	}
	if res := PingHealthCheck("x", nil, false)(); res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy for nil pinger, got %q", res.Status)
	}
}

func TestDatabaseHealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectPing()

	if res := DatabaseHealthCheck(db)(); res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %q: %s", res.Status, res.Message)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRedisHealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	if res := RedisHealthCheck(client)(); res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %q: %s", res.Status, res.Message)
	}
	mr.Close()
	if res := RedisHealthCheck(client)(); res.Status != StatusDegraded {
		t.Fatalf("expected degraded after redis stops, got %q", res.Status)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	res := ConfigurationHealthCheck(map[string]string{"JWT_SECRET": ""})()
	if res.Status != StatusUnhealthy || !strings.Contains(res.Message, "JWT_SECRET") {
		t.Fatalf("expected missing JWT_SECRET, got %+v", res)
	}
}

func TestHealthHandlerStatusCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("db", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })

	r := gin.New()
	r.GET("/health", hc.Handler())
	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), "GET", "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
