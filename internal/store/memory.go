package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"pulse/pkg/models"
)

// MemoryStore keeps records in process. Reads return copies so callers never
// observe a half-applied patch.
type MemoryStore struct {
	mu      sync.RWMutex
	videos  map[string]*models.Video
	tenants map[string]string
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		videos:  make(map[string]*models.Video),
		tenants: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PutTenant registers a tenant name used to resolve references
func (s *MemoryStore) PutTenant(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[id] = name
}

func (s *MemoryStore) Create(_ context.Context, v *models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := v.Clone()
	stored.Tenant = models.NewTenantRef(v.Tenant.ID)
	s.videos[v.ID] = stored
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*models.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.resolve(v), nil
}

func (s *MemoryStore) UpdateByID(_ context.Context, id string, patch models.VideoPatch) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, ErrNotFound
	}
	updated := v.Clone()
	patch.Apply(updated)
	updated.UpdatedAt = s.now()
	s.videos[id] = updated
	return s.resolve(updated), nil
}

func (s *MemoryStore) List(_ context.Context, filter models.VideoFilter) ([]*models.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Video, 0, len(s.videos))
	for _, v := range s.videos {
		if filter.Matches(v) {
			out = append(out, s.resolve(v))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[id]; !ok {
		return ErrNotFound
	}
	delete(s.videos, id)
	return nil
}

// resolve must be called with the lock held
func (s *MemoryStore) resolve(v *models.Video) *models.Video {
	out := v.Clone()
	if name, ok := s.tenants[v.Tenant.ID]; ok {
		out.Tenant = out.Tenant.Resolved(name)
	}
	return out
}
