package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"pulse/pkg/models"
	fixtures "pulse/pkg/testutil"
)

var scanColumns = []string{
	"id", "tenant_id", "name", "title", "blob_key", "mime_type", "file_size",
	"status", "is_flagged", "is_published", "moderation_labels", "uploaded_by",
	"created_at", "updated_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func videoRow(ts time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(scanColumns).AddRow(
		"v1", "t1", "Acme", "Clip", "t1/v1.mp4", "video/mp4", int64(1024),
		"completed", true, false, `{"Smoking/Tobacco Detected"}`, "u1", ts, ts,
	)
}

func TestPostgresFindByID(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT .* FROM videos v\s+LEFT JOIN tenants t ON t.id = v.tenant_id\s+WHERE v.id = \$1`).
		WithArgs("v1").
		WillReturnRows(videoRow(ts))

	v, err := s.FindByID(context.Background(), "v1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if v.Tenant.ID != "t1" || v.Tenant.Name == nil || *v.Tenant.Name != "Acme" {
		t.Fatalf("tenant not resolved: %+v", v.Tenant)
	}
	if v.Status != models.VideoStatusCompleted || !v.IsFlagged || len(v.ModerationLabels) != 1 || v.ModerationLabels[0] != "Smoking/Tobacco Detected" {
		t.Fatalf("unexpected video: %+v", v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresFindByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`(?s)SELECT .* FROM videos v`).WithArgs("missing").WillReturnRows(sqlmock.NewRows(scanColumns))
	if _, err := s.FindByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery(`(?s)SELECT .* FROM videos v`).WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"})
	if _, err := s.FindByID(context.Background(), "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected malformed id to map to ErrNotFound, got %v", err)
	}
}

func TestPostgresCreate(t *testing.T) {
	s, mock := newMockStore(t)
	v := fixtures.Video("v1")

	mock.ExpectExec(`INSERT INTO videos`).
		WithArgs("v1", "tenant-1", v.Title, v.BlobKey, "video/mp4", v.FileSize, "processing",
			true, false, sqlmock.AnyArg(), nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Create(context.Background(), v); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresUpdateBuildsSingleStatement(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Now()

	mock.ExpectQuery(`WITH v AS \(\s+UPDATE videos SET status = \$2, is_flagged = \$3, moderation_labels = \$4, updated_at = NOW\(\)\s+WHERE id = \$1\s+RETURNING \*`).
		WithArgs("v1", "completed", true, sqlmock.AnyArg()).
		WillReturnRows(videoRow(ts))

	v, err := s.UpdateByID(context.Background(), "v1", models.VideoPatch{
		Status:           models.Ptr(models.VideoStatusCompleted),
		IsFlagged:        models.Ptr(true),
		ModerationLabels: []string{"Smoking/Tobacco Detected"},
	})
	if err != nil {
		t.Fatalf("UpdateByID: %v", err)
	}
	if v.ID != "v1" {
		t.Fatalf("unexpected record %+v", v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresUpdateMissingRecord(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`WITH v AS`).WithArgs("gone", "failed").WillReturnRows(sqlmock.NewRows(scanColumns))

	_, err := s.UpdateByID(context.Background(), "gone", models.VideoPatch{Status: models.Ptr(models.VideoStatusFailed)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresListFilters(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Now()

	mock.ExpectQuery(`WHERE v.tenant_id = \$1 AND v.is_flagged = \$2 AND v.is_published = \$3 AND v.status = \$4 ORDER BY v.created_at DESC`).
		WithArgs("t1", false, true, "completed").
		WillReturnRows(videoRow(ts))

	out, err := s.List(context.Background(), models.VideoFilter{
		TenantID:  "t1",
		Flagged:   models.Ptr(false),
		Published: models.Ptr(true),
		Completed: true,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one row, got %d", len(out))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresDelete(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM videos WHERE id = \$1`).WithArgs("v1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM videos WHERE id = \$1`).WithArgs("v2").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Delete(context.Background(), "v1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(context.Background(), "v2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresQueryMetrics(t *testing.T) {
	s, mock := newMockStore(t)
	queries := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "q"}, []string{"query_type", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "d"}, []string{"query_type"})
	s.WithQueryMetrics(queries, duration)

	mock.ExpectExec(`DELETE FROM videos`).WithArgs("v1").WillReturnError(errors.New("connection lost"))
	_ = s.Delete(context.Background(), "v1")

	if got := testutil.ToFloat64(queries.WithLabelValues("delete", "error")); got != 1 {
		t.Fatalf("expected one failed delete recorded, got %v", got)
	}
}
