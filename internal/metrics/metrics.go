package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pulse/pkg/monitoring"
)

// Metrics holds all Prometheus metrics for the pulse service
type Metrics struct {
	// Notification hub
	HubConnections  *prometheus.GaugeVec
	EventsPublished *prometheus.CounterVec
	RelayMessages   *prometheus.CounterVec

	// Moderation
	ModerationJobs     *prometheus.CounterVec
	ModerationDuration *prometheus.HistogramVec
	PollAttempts       *prometheus.CounterVec
	WorkerPanics       *prometheus.CounterVec

	// Media
	StreamRequests *prometheus.CounterVec
	StreamBytes    *prometheus.CounterVec
	Uploads        *prometheus.CounterVec

	// Store
	DBQueries  *prometheus.CounterVec
	DBDuration *prometheus.HistogramVec
}

// A run lasts at most MaxAttempts x PollInterval, five minutes by default.
var jobDurationBuckets = []float64{5, 15, 30, 60, 120, 300}

// New registers the service metrics on mc
func New(mc *monitoring.MetricsCollector) *Metrics {
	m := &Metrics{
		HubConnections:  mc.NewGauge("websocket_connections_active", "Active notification websocket connections", []string{}),
		EventsPublished: mc.NewCounter("events_published_total", "Notification events published", []string{"event", "room_kind"}),
		RelayMessages:   mc.NewCounter("relay_messages_total", "Notification envelopes through the redis relay", []string{"direction", "status"}),

		ModerationJobs:     mc.NewCounter("moderation_jobs_total", "Moderation jobs by terminal outcome", []string{"outcome"}),
		ModerationDuration: mc.NewHistogram("moderation_job_duration_seconds", "Time from submission to terminal outcome", []string{"outcome"}, jobDurationBuckets),
		PollAttempts:       mc.NewCounter("moderation_poll_attempts_total", "Moderation poll attempts by result", []string{"result"}),
		WorkerPanics:       mc.NewCounter("worker_panics_total", "Background task panics", []string{"task"}),

		StreamRequests: mc.NewCounter("stream_requests_total", "Stream requests by response status", []string{"status"}),
		StreamBytes:    mc.NewCounter("stream_bytes_total", "Bytes served by the stream proxy", []string{"kind"}),
		Uploads:        mc.NewCounter("uploads_total", "Video uploads by result", []string{"status"}),
	}
	m.DBQueries, m.DBDuration = mc.CreateDatabaseMetrics()
	return m
}

// Counter helpers tolerate a nil receiver so components can run without metrics.

func (m *Metrics) IncEvent(event, roomKind string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(event, roomKind).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.HubConnections.WithLabelValues().Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.HubConnections.WithLabelValues().Dec()
}

func (m *Metrics) IncRelay(direction, status string) {
	if m == nil {
		return
	}
	m.RelayMessages.WithLabelValues(direction, status).Inc()
}

func (m *Metrics) IncJob(outcome string) {
	if m == nil {
		return
	}
	m.ModerationJobs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveJobDuration(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ModerationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) IncPoll(result string) {
	if m == nil {
		return
	}
	m.PollAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) IncStream(status string, bytes int64, partial bool) {
	if m == nil {
		return
	}
	m.StreamRequests.WithLabelValues(status).Inc()
	if bytes > 0 {
		kind := "full"
		if partial {
			kind = "range"
		}
		m.StreamBytes.WithLabelValues(kind).Add(float64(bytes))
	}
}

func (m *Metrics) IncUpload(status string) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(status).Inc()
}

func (m *Metrics) IncWorkerPanic(task string) {
	if m == nil {
		return
	}
	m.WorkerPanics.WithLabelValues(task).Inc()
}
