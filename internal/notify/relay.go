package notify

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"pulse/internal/metrics"
	"pulse/pkg/logging"
	"pulse/pkg/redis"
)

// RelayChannel carries envelopes between pulse processes
const RelayChannel = "pulse:notifications"

// Relay publishes through Redis so that every process delivers each event to
// its own websocket clients. Run must be active for local delivery.
type Relay struct {
	hub     *Hub
	pubsub  *redis.TypedPubSub[Envelope]
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewRelay(client goredis.UniversalClient, hub *Hub, logger logging.Logger, m *metrics.Metrics) *Relay {
	return &Relay{
		hub:     hub,
		pubsub:  redis.NewTypedPubSub[Envelope](client, logger),
		logger:  logger,
		metrics: m,
	}
}

// Publish sends the event to all processes. If Redis is unreachable the event
// is still delivered to this process's clients.
func (r *Relay) Publish(ctx context.Context, room, event string, payload any) error {
	env, err := NewEnvelope(room, event, payload)
	if err != nil {
		return err
	}

	if err := r.pubsub.Publish(ctx, RelayChannel, env); err != nil {
		r.metrics.IncRelay("out", "error")
		r.logger.WithError(err).WithFields(logging.Fields{
			"room":  room,
			"event": event,
		}).Warn("Relay publish failed, delivering locally")
		if err := r.hub.Deliver(ctx, env); err != nil {
			return err
		}
	} else {
		r.metrics.IncRelay("out", "ok")
	}

	r.metrics.IncEvent(event, roomKind(room))
	return nil
}

// Run forwards relayed envelopes to the local hub until ctx is done. ready is
// closed once the subscription is live.
func (r *Relay) Run(ctx context.Context, ready chan<- struct{}) error {
	return r.pubsub.Subscribe(ctx, RelayChannel, ready, func(env Envelope) {
		r.metrics.IncRelay("in", "ok")
		if err := r.hub.Deliver(ctx, env); err != nil {
			r.logger.WithError(err).WithField("event", env.Event).Warn("Failed to deliver relayed event")
		}
	})
}
