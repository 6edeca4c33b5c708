package models

import (
	"encoding/json"
	"time"
)

// VideoStatus is the lifecycle projection of a video's moderation
type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "pending"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusCompleted  VideoStatus = "completed"
	VideoStatusFailed     VideoStatus = "failed"
)

// Valid reports whether s is a known status
func (s VideoStatus) Valid() bool {
	switch s {
	case VideoStatusPending, VideoStatusProcessing, VideoStatusCompleted, VideoStatusFailed:
		return true
	}
	return false
}

// Video is the catalog record for one uploaded object
type Video struct {
	ID               string      `json:"id"`
	Tenant           TenantRef   `json:"-"`
	Title            string      `json:"title"`
	BlobKey          string      `json:"blob_key"`
	MimeType         string      `json:"mime_type"`
	FileSize         int64       `json:"file_size"`
	Status           VideoStatus `json:"status"`
	IsFlagged        bool        `json:"is_flagged"`
	IsPublished      bool        `json:"is_published"`
	ModerationLabels []string    `json:"moderation_labels"`
	UploadedBy       string      `json:"uploaded_by,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// NewVideo returns a freshly uploaded record: processing, flagged and unpublished.
func NewVideo(id, tenantID, title, blobKey, mimeType string, fileSize int64) *Video {
	now := time.Now().UTC()
	return &Video{
		ID:               id,
		Tenant:           NewTenantRef(tenantID),
		Title:            title,
		BlobKey:          blobKey,
		MimeType:         mimeType,
		FileSize:         fileSize,
		Status:           VideoStatusProcessing,
		IsFlagged:        true,
		IsPublished:      false,
		ModerationLabels: []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// TenantID returns the owning tenant's identifier
func (v *Video) TenantID() string {
	return v.Tenant.ID
}

// VisibleToViewer reports whether a restricted viewer may see the video
func (v *Video) VisibleToViewer() bool {
	return v.Status == VideoStatusCompleted && v.IsPublished && !v.IsFlagged
}

// Clone returns a deep copy
func (v *Video) Clone() *Video {
	if v == nil {
		return nil
	}
	out := *v
	out.ModerationLabels = append([]string{}, v.ModerationLabels...)
	if v.Tenant.Name != nil {
		name := *v.Tenant.Name
		out.Tenant.Name = &name
	}
	return &out
}

type videoJSON Video

// MarshalJSON flattens the tenant reference into tenant_id and tenant_name
func (v Video) MarshalJSON() ([]byte, error) {
	labels := v.ModerationLabels
	if labels == nil {
		labels = []string{}
	}
	aux := struct {
		videoJSON
		TenantID         string   `json:"tenant_id"`
		TenantName       *string  `json:"tenant_name,omitempty"`
		ModerationLabels []string `json:"moderation_labels"`
	}{
		videoJSON:        videoJSON(v),
		TenantID:         v.Tenant.ID,
		TenantName:       v.Tenant.Name,
		ModerationLabels: labels,
	}
	return json.Marshal(aux)
}

// UnmarshalJSON restores the tenant reference from tenant_id and tenant_name
func (v *Video) UnmarshalJSON(data []byte) error {
	aux := struct {
		*videoJSON
		TenantID   string  `json:"tenant_id"`
		TenantName *string `json:"tenant_name"`
	}{videoJSON: (*videoJSON)(v)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v.Tenant = TenantRef{ID: aux.TenantID, Name: aux.TenantName}
	return nil
}

// VideoPatch is a partial update; nil fields are left untouched
type VideoPatch struct {
	Title            *string      `json:"title,omitempty"`
	Status           *VideoStatus `json:"status,omitempty"`
	IsFlagged        *bool        `json:"is_flagged,omitempty"`
	IsPublished      *bool        `json:"is_published,omitempty"`
	ModerationLabels []string     `json:"moderation_labels,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p VideoPatch) IsEmpty() bool {
	return p.Title == nil && p.Status == nil && p.IsFlagged == nil && p.IsPublished == nil && p.ModerationLabels == nil
}

// Apply writes the patch onto v
func (p VideoPatch) Apply(v *Video) {
	if p.Title != nil {
		v.Title = *p.Title
	}
	if p.Status != nil {
		v.Status = *p.Status
	}
	if p.IsFlagged != nil {
		v.IsFlagged = *p.IsFlagged
	}
	if p.IsPublished != nil {
		v.IsPublished = *p.IsPublished
	}
	if p.ModerationLabels != nil {
		v.ModerationLabels = append([]string{}, p.ModerationLabels...)
	}
}

// VideoFilter narrows a listing; nil fields are not applied
type VideoFilter struct {
	TenantID  string
	Flagged   *bool
	Published *bool
	// Completed restricts the listing to classified videos
	Completed bool
}

// Matches reports whether v passes the filter
func (f VideoFilter) Matches(v *Video) bool {
	if f.TenantID != "" && v.Tenant.ID != f.TenantID {
		return false
	}
	if f.Flagged != nil && v.IsFlagged != *f.Flagged {
		return false
	}
	if f.Published != nil && v.IsPublished != *f.Published {
		return false
	}
	if f.Completed && v.Status != VideoStatusCompleted {
		return false
	}
	return true
}

// Ptr returns a pointer to v, handy for building patches and filters
func Ptr[T any](v T) *T {
	return &v
}
