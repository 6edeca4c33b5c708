// Package store persists video records. Every implementation applies a patch
// to a single record atomically and resolves the owning tenant's name at the
// data-access boundary.
package store

import (
	"context"
	"errors"

	"pulse/pkg/models"
)

// ErrNotFound is returned when no record matches the id
var ErrNotFound = errors.New("video not found")

// VideoStore is the persistence contract shared by the catalog handlers and
// the moderation pipeline.
type VideoStore interface {
	Create(ctx context.Context, v *models.Video) error
	FindByID(ctx context.Context, id string) (*models.Video, error)
	// UpdateByID applies patch and returns the record as committed, or
	// ErrNotFound when the record is gone.
	UpdateByID(ctx context.Context, id string, patch models.VideoPatch) (*models.Video, error)
	List(ctx context.Context, filter models.VideoFilter) ([]*models.Video, error)
	Delete(ctx context.Context, id string) error
}

// Driver names accepted by STORE_DRIVER
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)
