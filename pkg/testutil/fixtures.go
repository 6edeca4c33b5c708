package testutil

import (
	"time"

	"pulse/pkg/models"
)

// VideoOption customises a fixture video
type VideoOption func(*models.Video)

// WithTenant sets the owning tenant
func WithTenant(tenantID string) VideoOption {
	return func(v *models.Video) { v.Tenant = models.NewTenantRef(tenantID) }
}

// WithTitle sets the title
func WithTitle(title string) VideoOption {
	return func(v *models.Video) { v.Title = title }
}

// WithBlobKey sets the object key
func WithBlobKey(key string) VideoOption {
	return func(v *models.Video) { v.BlobKey = key }
}

// WithSize sets the file size
func WithSize(size int64) VideoOption {
	return func(v *models.Video) { v.FileSize = size }
}

// Published marks the fixture as a classified, clean, published video
func Published() VideoOption {
	return func(v *models.Video) {
		v.Status = models.VideoStatusCompleted
		v.IsFlagged = false
		v.IsPublished = true
	}
}

// Flagged marks the fixture as classified and flagged with labels
func Flagged(labels ...string) VideoOption {
	return func(v *models.Video) {
		v.Status = models.VideoStatusCompleted
		v.IsFlagged = true
		v.ModerationLabels = append([]string{}, labels...)
	}
}

// Video builds a freshly uploaded fixture in tenant-1 with a fixed timestamp.
func Video(id string, opts ...VideoOption) *models.Video {
	v := models.NewVideo(id, "tenant-1", "Fixture "+id, "tenant-1/"+id+".mp4", "video/mp4", 4_000_000)
	ts := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	v.CreatedAt, v.UpdatedAt = ts, ts
	for _, opt := range opts {
		opt(v)
	}
	return v
}
