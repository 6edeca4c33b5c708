// Package notify delivers video catalog events to websocket subscribers
// grouped in rooms: one room per tenant plus the admin oversight room.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pulse/pkg/auth"
)

const (
	RoomAdmin = "admin"

	EventVideoUploaded   = "video.uploaded"
	EventVideoUpdated    = "video.updated"
	EventVideoDeleted    = "video.deleted"
	EventModerationAlert = "moderation.alert"
)

// TenantRoom names the room of a tenant's members
func TenantRoom(tenantID string) string {
	return tenantID
}

// RoomsFor lists the rooms a principal joins on connect
func RoomsFor(p *auth.Principal) []string {
	if p == nil {
		return nil
	}
	var rooms []string
	if p.TenantID != "" {
		rooms = append(rooms, TenantRoom(p.TenantID))
	}
	if p.IsAdmin() {
		rooms = append(rooms, RoomAdmin)
	}
	return rooms
}

func roomKind(room string) string {
	if room == RoomAdmin {
		return "admin"
	}
	return "tenant"
}

// Publisher sends one event to every current member of a room
type Publisher interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

// Envelope is the wire format of every notification
type Envelope struct {
	Event     string          `json:"event"`
	Room      string          `json:"room"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewEnvelope(room, event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Envelope{
		Event:     event,
		Room:      room,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}, nil
}
