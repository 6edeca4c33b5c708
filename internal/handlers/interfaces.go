package handlers

import (
	"context"
	"io"
	"net/http"

	"pulse/pkg/auth"
	"pulse/pkg/models"
)

// BlobWriter stores and removes uploaded objects
type BlobWriter interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Moderator starts automated classification of a new upload
type Moderator interface {
	Start(ctx context.Context, videoID, blobKey string) (string, error)
}

// Notifier announces user-driven catalog changes
type Notifier interface {
	VideoUploaded(ctx context.Context, v *models.Video) error
	VideoEdited(ctx context.Context, v *models.Video) error
	VideoDeleted(ctx context.Context, tenantID, id string) error
}

// Streamer serves video bytes
type Streamer interface {
	Serve(ctx context.Context, w http.ResponseWriter, videoID, rangeHeader string, p *auth.Principal)
}

// Subscriptions upgrades notification websocket connections
type Subscriptions interface {
	ServeWS(w http.ResponseWriter, r *http.Request, p *auth.Principal)
}
