// Package stream serves stored videos over HTTP with byte-range support
// after checking the caller may see them.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"pulse/internal/metrics"
	"pulse/internal/storage"
	"pulse/internal/store"
	"pulse/pkg/auth"
	"pulse/pkg/logging"
	"pulse/pkg/models"
)

// Blobs is the read side of the object store
type Blobs interface {
	Head(ctx context.Context, key string) (storage.ObjectInfo, error)
	GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error)
	GetFull(ctx context.Context, key string) (io.ReadCloser, error)
}

type Records interface {
	FindByID(ctx context.Context, id string) (*models.Video, error)
}

type Proxy struct {
	records Records
	blobs   Blobs
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewProxy(records Records, blobs Blobs, logger logging.Logger, m *metrics.Metrics) *Proxy {
	return &Proxy{records: records, blobs: blobs, logger: logger, metrics: m}
}

// Serve writes the video, or the requested slice of it, to w
func (p *Proxy) Serve(ctx context.Context, w http.ResponseWriter, videoID, rangeHeader string, principal *auth.Principal) {
	if principal == nil {
		p.fail(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	video, err := p.records.FindByID(ctx, videoID)
	if errors.Is(err, store.ErrNotFound) {
		p.fail(w, http.StatusNotFound, "Video not found")
		return
	}
	if err != nil {
		p.streamFailure(w, videoID, err)
		return
	}

	if !principal.CanViewVideo(video) {
		p.fail(w, http.StatusForbidden, "Access denied")
		return
	}

	info, err := p.blobs.Head(ctx, video.BlobKey)
	if err != nil {
		p.streamFailure(w, videoID, err)
		return
	}
	contentType := ResolveContentType(info.ContentType, video.BlobKey)
	size := info.Size

	if rangeHeader == "" {
		body, err := p.blobs.GetFull(ctx, video.BlobKey)
		if err != nil {
			p.streamFailure(w, videoID, err)
			return
		}
		defer body.Close()

		h := w.Header()
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		h.Set("Content-Type", contentType)
		h.Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		p.copy(w, body, videoID, http.StatusOK, false)
		return
	}

	r, err := ParseRange(rangeHeader, size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		p.fail(w, http.StatusRequestedRangeNotSatisfiable, "Requested range not satisfiable")
		return
	}

	body, err := p.blobs.GetRange(ctx, video.BlobKey, r.Start, r.End)
	if err != nil {
		p.streamFailure(w, videoID, err)
		return
	}
	defer body.Close()

	h := w.Header()
	h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Length", strconv.FormatInt(r.Length(), 10))
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusPartialContent)
	p.copy(w, body, videoID, http.StatusPartialContent, true)
}

func (p *Proxy) copy(w io.Writer, body io.Reader, videoID string, status int, partial bool) {
	n, err := io.Copy(w, body)
	p.metrics.IncStream(strconv.Itoa(status), n, partial)
	if err != nil {
		// Headers are gone; the client sees a short body.
		p.logger.WithError(err).WithFields(logging.Fields{
			"video_id": videoID,
			"bytes":    n,
		}).Warn("Stream interrupted")
	}
}

func (p *Proxy) streamFailure(w http.ResponseWriter, videoID string, err error) {
	p.logger.WithError(err).WithField("video_id", videoID).Error("Streaming failure")
	p.fail(w, http.StatusInternalServerError, "Streaming failure: "+err.Error())
}

func (p *Proxy) fail(w http.ResponseWriter, status int, msg string) {
	p.metrics.IncStream(strconv.Itoa(status), 0, false)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
