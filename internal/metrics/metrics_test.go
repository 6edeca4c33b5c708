package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"pulse/pkg/monitoring"
)

func TestMetricsRegisterAndCount(t *testing.T) {
	m := New(monitoring.NewMetricsCollector("pulse", "test", "abc"))

	m.IncEvent("video.uploaded", "tenant")
	m.IncEvent("video.uploaded", "tenant")
	m.IncJob("completed")
	m.ObserveJobDuration("completed", 12*time.Second)
	m.IncStream("206", 1000, true)
	m.IncStream("416", 0, false)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	if got := testutil.ToFloat64(m.EventsPublished.WithLabelValues("video.uploaded", "tenant")); got != 2 {
		t.Fatalf("events published = %v", got)
	}
	if got := testutil.ToFloat64(m.ModerationJobs.WithLabelValues("completed")); got != 1 {
		t.Fatalf("jobs = %v", got)
	}
	if got := testutil.CollectAndCount(m.ModerationDuration); got != 1 {
		t.Fatalf("duration series = %d", got)
	}
	if got := testutil.ToFloat64(m.StreamBytes.WithLabelValues("range")); got != 1000 {
		t.Fatalf("stream bytes = %v", got)
	}
	if got := testutil.ToFloat64(m.HubConnections.WithLabelValues()); got != 1 {
		t.Fatalf("connections = %v", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.IncEvent("x", "admin")
	m.IncJob("failed")
	m.ObserveJobDuration("failed", time.Second)
	m.IncPoll("running")
	m.IncStream("200", 10, false)
	m.IncUpload("created")
	m.IncRelay("out", "ok")
	m.ConnectionOpened()
	m.ConnectionClosed()
}
