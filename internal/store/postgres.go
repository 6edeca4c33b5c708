package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"pulse/pkg/database"
	"pulse/pkg/models"
)

const videoColumns = `v.id, v.tenant_id, t.name, v.title, v.blob_key, v.mime_type, v.file_size,
	v.status, v.is_flagged, v.is_published, v.moderation_labels, COALESCE(v.uploaded_by::text, ''),
	v.created_at, v.updated_at`

// PostgresStore persists videos in the videos table, joined to tenants for
// name resolution.
type PostgresStore struct {
	db database.PostgresConn

	queries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewPostgresStore(db database.PostgresConn) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithQueryMetrics instruments every query with the given collectors
func (s *PostgresStore) WithQueryMetrics(queries *prometheus.CounterVec, duration *prometheus.HistogramVec) *PostgresStore {
	s.queries = queries
	s.duration = duration
	return s
}

func (s *PostgresStore) observe(queryType string, start time.Time, err error) {
	if s.queries == nil {
		return
	}
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	s.queries.WithLabelValues(queryType, status).Inc()
	s.duration.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
}

func (s *PostgresStore) Create(ctx context.Context, v *models.Video) (err error) {
	defer func(start time.Time) { s.observe("insert", start, err) }(time.Now())

	var uploadedBy any
	if v.UploadedBy != "" {
		uploadedBy = v.UploadedBy
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO videos (id, tenant_id, title, blob_key, mime_type, file_size, status,
			is_flagged, is_published, moderation_labels, uploaded_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		v.ID, v.Tenant.ID, v.Title, v.BlobKey, v.MimeType, v.FileSize, string(v.Status),
		v.IsFlagged, v.IsPublished, pq.Array(labelsOrEmpty(v.ModerationLabels)), uploadedBy, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (v *models.Video, err error) {
	defer func(start time.Time) { s.observe("select", start, err) }(time.Now())

	row := s.db.QueryRowContext(ctx, `
		SELECT `+videoColumns+`
		FROM videos v
		LEFT JOIN tenants t ON t.id = v.tenant_id
		WHERE v.id = $1`, id)
	v, err = scanVideo(row)
	if err != nil {
		return nil, mapError("select video", err)
	}
	return v, nil
}

// UpdateByID applies the patch in a single UPDATE statement; the CTE returns
// the committed row joined with its tenant.
func (s *PostgresStore) UpdateByID(ctx context.Context, id string, patch models.VideoPatch) (v *models.Video, err error) {
	defer func(start time.Time) { s.observe("update", start, err) }(time.Now())

	sets := []string{}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.IsFlagged != nil {
		add("is_flagged", *patch.IsFlagged)
	}
	if patch.IsPublished != nil {
		add("is_published", *patch.IsPublished)
	}
	if patch.ModerationLabels != nil {
		add("moderation_labels", pq.Array(patch.ModerationLabels))
	}
	sets = append(sets, "updated_at = NOW()")

	row := s.db.QueryRowContext(ctx, `
		WITH v AS (
			UPDATE videos SET `+strings.Join(sets, ", ")+`
			WHERE id = $1
			RETURNING *
		)
		SELECT `+videoColumns+`
		FROM v
		LEFT JOIN tenants t ON t.id = v.tenant_id`, args...)
	v, err = scanVideo(row)
	if err != nil {
		return nil, mapError("update video", err)
	}
	return v, nil
}

func (s *PostgresStore) List(ctx context.Context, filter models.VideoFilter) (out []*models.Video, err error) {
	defer func(start time.Time) { s.observe("list", start, err) }(time.Now())

	where := []string{}
	args := []any{}
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.TenantID != "" {
		add("v.tenant_id = $%d", filter.TenantID)
	}
	if filter.Flagged != nil {
		add("v.is_flagged = $%d", *filter.Flagged)
	}
	if filter.Published != nil {
		add("v.is_published = $%d", *filter.Published)
	}
	if filter.Completed {
		add("v.status = $%d", string(models.VideoStatusCompleted))
	}

	query := `SELECT ` + videoColumns + ` FROM videos v LEFT JOIN tenants t ON t.id = v.tenant_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY v.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	out = []*models.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return mapError("delete video", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*models.Video, error) {
	var (
		v          models.Video
		tenantID   string
		tenantName sql.NullString
		status     string
		labels     []string
	)
	err := row.Scan(&v.ID, &tenantID, &tenantName, &v.Title, &v.BlobKey, &v.MimeType, &v.FileSize,
		&status, &v.IsFlagged, &v.IsPublished, pq.Array(&labels), &v.UploadedBy,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.Status = models.VideoStatus(status)
	v.ModerationLabels = labelsOrEmpty(labels)
	v.Tenant = models.NewTenantRef(tenantID)
	if tenantName.Valid {
		v.Tenant = v.Tenant.Resolved(tenantName.String)
	}
	return &v, nil
}

// mapError folds "no row" and malformed-uuid errors into ErrNotFound
func mapError(op string, err error) error {
	if errors.Is(err, database.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "22P02" {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func labelsOrEmpty(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return labels
}
