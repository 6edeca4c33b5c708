package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pulse/pkg/logging"
	"pulse/pkg/models"
)

// AlertPayload is the data of a moderation.alert event
type AlertPayload struct {
	VideoID string   `json:"video_id"`
	Title   string   `json:"title"`
	Reasons []string `json:"reasons"`
	Message string   `json:"message"`
}

// AlertMessage renders the human readable alert line
func AlertMessage(title string, reasons []string) string {
	return fmt.Sprintf("AI detected %s in \"%s\"", strings.Join(reasons, ", "), title)
}

// Fanout routes catalog changes to the rooms that must hear about them.
// Delivery is best effort: failures are logged and returned joined.
type Fanout struct {
	pub    Publisher
	logger logging.Logger
}

func NewFanout(pub Publisher, logger logging.Logger) *Fanout {
	return &Fanout{pub: pub, logger: logger}
}

type delivery struct {
	room    string
	event   string
	payload any
}

func (f *Fanout) send(ctx context.Context, deliveries ...delivery) error {
	var errs []error
	for _, d := range deliveries {
		if err := f.pub.Publish(ctx, d.room, d.event, d.payload); err != nil {
			f.logger.WithError(err).WithFields(logging.Fields{
				"room":  d.room,
				"event": d.event,
			}).Warn("Failed to publish notification")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// VideoUploaded announces a new record to its tenant
func (f *Fanout) VideoUploaded(ctx context.Context, v *models.Video) error {
	return f.send(ctx, delivery{TenantRoom(v.TenantID()), EventVideoUploaded, v})
}

// VideoUpdated announces a state change to the tenant only
func (f *Fanout) VideoUpdated(ctx context.Context, v *models.Video) error {
	return f.send(ctx, delivery{TenantRoom(v.TenantID()), EventVideoUpdated, v})
}

// VideoEdited announces a user edit to the tenant and to admins
func (f *Fanout) VideoEdited(ctx context.Context, v *models.Video) error {
	return f.send(ctx,
		delivery{TenantRoom(v.TenantID()), EventVideoUpdated, v},
		delivery{RoomAdmin, EventVideoUpdated, v},
	)
}

// VideoDeleted announces a removal to the tenant and to admins
func (f *Fanout) VideoDeleted(ctx context.Context, tenantID, id string) error {
	payload := map[string]string{"id": id}
	return f.send(ctx,
		delivery{TenantRoom(tenantID), EventVideoDeleted, payload},
		delivery{RoomAdmin, EventVideoDeleted, payload},
	)
}

// ClassificationOutcome announces the end of a moderation pass. Flagged
// outcomes also raise an alert and enter the admin review feed.
func (f *Fanout) ClassificationOutcome(ctx context.Context, v *models.Video) error {
	deliveries := []delivery{{TenantRoom(v.TenantID()), EventVideoUpdated, v}}
	if v.IsFlagged {
		reasons := append([]string{}, v.ModerationLabels...)
		deliveries = append(deliveries,
			delivery{RoomAdmin, EventModerationAlert, AlertPayload{
				VideoID: v.ID,
				Title:   v.Title,
				Reasons: reasons,
				Message: AlertMessage(v.Title, reasons),
			}},
			delivery{RoomAdmin, EventVideoUploaded, v},
		)
	}
	return f.send(ctx, deliveries...)
}
