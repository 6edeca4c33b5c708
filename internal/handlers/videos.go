package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pulse/internal/metrics"
	"pulse/internal/storage"
	"pulse/internal/store"
	"pulse/pkg/auth"
	"pulse/pkg/logging"
	"pulse/pkg/middleware"
	"pulse/pkg/models"
)

// multipartOverhead is allowed on top of the file limit for form fields and boundaries
const multipartOverhead = 1 << 20

type VideoHandler struct {
	videos    store.VideoStore
	blobs     BlobWriter
	moderator Moderator
	notifier  Notifier
	streamer  Streamer
	subs      Subscriptions
	maxUpload int64
	logger    logging.Logger
	metrics   *metrics.Metrics
}

type Deps struct {
	Videos        store.VideoStore
	Blobs         BlobWriter
	Moderator     Moderator
	Notifier      Notifier
	Streamer      Streamer
	Subscriptions Subscriptions
	MaxUpload     int64
	Logger        logging.Logger
	Metrics       *metrics.Metrics
}

func NewVideoHandler(d Deps) *VideoHandler {
	return &VideoHandler{
		videos:    d.Videos,
		blobs:     d.Blobs,
		moderator: d.Moderator,
		notifier:  d.Notifier,
		streamer:  d.Streamer,
		subs:      d.Subscriptions,
		maxUpload: d.MaxUpload,
		logger:    d.Logger,
		metrics:   d.Metrics,
	}
}

// RegisterRoutes mounts the catalog API and the notification socket
func (h *VideoHandler) RegisterRoutes(r gin.IRouter, secret []byte) {
	api := r.Group("/api")
	api.Use(auth.JWTAuthMiddleware(secret))

	videos := api.Group("/videos")
	videos.GET("/stream/:id", h.Stream)
	videos.POST("", auth.RequireRoles(models.RoleEditor, models.RoleAdmin), h.Upload)
	videos.GET("", h.List)
	videos.GET("/:id", h.Get)
	videos.PATCH("/:id", h.Update)
	videos.DELETE("/:id", auth.RequireRoles(models.RoleEditor, models.RoleAdmin), h.Delete)

	r.GET("/ws", auth.JWTAuthMiddleware(secret), h.WebSocket)
}

func principal(c *gin.Context) *auth.Principal {
	p, ok := auth.GetPrincipal(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthenticated.Error()})
		return nil
	}
	return p
}

// Stream handles GET /api/videos/stream/:id
func (h *VideoHandler) Stream(c *gin.Context) {
	p := principal(c)
	if p == nil {
		return
	}
	h.streamer.Serve(c.Request.Context(), c.Writer, c.Param("id"), c.GetHeader("Range"), p)
}

// WebSocket handles GET /ws
func (h *VideoHandler) WebSocket(c *gin.Context) {
	p := principal(c)
	if p == nil {
		return
	}
	h.subs.ServeWS(c.Writer, c.Request, p)
}

// Upload handles POST /api/videos
func (h *VideoHandler) Upload(c *gin.Context) {
	p := principal(c)
	if p == nil {
		return
	}
	log := middleware.GetContextLogger(c, h.logger)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
	file, header, err := c.Request.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.IncUpload("too_large")
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		h.metrics.IncUpload("bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "A video file is required"})
		return
	}
	defer file.Close()

	if header.Size > h.maxUpload {
		h.metrics.IncUpload("too_large")
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		h.metrics.IncUpload("bad_type")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only video files are allowed"})
		return
	}

	tenantID := p.TenantID
	if p.IsAdmin() {
		if requested := strings.TrimSpace(c.PostForm("tenant_id")); requested != "" {
			tenantID = requested
		}
	}
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A tenant is required to upload"})
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = header.Filename
	}

	ctx := c.Request.Context()
	id := uuid.NewString()
	key := storage.BuildObjectKey(tenantID, id, header.Filename)

	if err := h.blobs.Put(ctx, key, file, header.Size, contentType); err != nil {
		h.metrics.IncUpload("storage_error")
		log.WithError(err).WithField("blob_key", key).Error("Failed to store upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store video"})
		return
	}

	video := models.NewVideo(id, tenantID, title, key, contentType, header.Size)
	video.UploadedBy = p.UserID
	if err := h.videos.Create(ctx, video); err != nil {
		h.metrics.IncUpload("db_error")
		log.WithError(err).WithField("video_id", id).Error("Failed to create video record")
		if derr := h.blobs.Delete(ctx, key); derr != nil {
			log.WithError(derr).WithField("blob_key", key).Warn("Failed to remove orphaned upload")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save video"})
		return
	}
	if stored, err := h.videos.FindByID(ctx, id); err == nil {
		video = stored
	}

	_ = h.notifier.VideoUploaded(ctx, video)

	// Classification outlives the request.
	if _, err := h.moderator.Start(context.WithoutCancel(ctx), id, key); err != nil {
		log.WithError(err).WithField("video_id", id).Warn("Moderation did not start; video flagged for review")
	}

	h.metrics.IncUpload("created")
	log.WithFields(logging.Fields{
		"video_id":  id,
		"tenant_id": tenantID,
		"size":      header.Size,
	}).Info("Video uploaded")
	c.JSON(http.StatusCreated, video)
}

// List handles GET /api/videos
func (h *VideoHandler) List(c *gin.Context) {
	p := principal(c)
	if p == nil {
		return
	}

	filter, err := listFilter(c, p)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	videos, err := h.videos.List(c.Request.Context(), filter)
	if err != nil {
		middleware.GetContextLogger(c, h.logger).WithError(err).Error("Failed to list videos")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list videos"})
		return
	}
	if videos == nil {
		videos = []*models.Video{}
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos, "count": len(videos)})
}

// listFilter scopes a listing to what the principal may see
func listFilter(c *gin.Context, p *auth.Principal) (models.VideoFilter, error) {
	switch p.Role {
	case models.RoleAdmin:
		filter := models.VideoFilter{TenantID: c.Query("tenant_id")}
		if raw := c.Query("flagged"); raw != "" {
			flagged, err := strconv.ParseBool(raw)
			if err != nil {
				return filter, errors.New("flagged must be a boolean")
			}
			filter.Flagged = &flagged
		}
		if raw := c.Query("published"); raw != "" {
			published, err := strconv.ParseBool(raw)
			if err != nil {
				return filter, errors.New("published must be a boolean")
			}
			filter.Published = &published
			if published {
				filter.Flagged = models.Ptr(false)
			}
		}
		return filter, nil

	case models.RoleEditor:
		return models.VideoFilter{TenantID: p.TenantID}, nil

	default:
		return models.VideoFilter{
			TenantID:  p.TenantID,
			Published: models.Ptr(true),
			Flagged:   models.Ptr(false),
			Completed: true,
		}, nil
	}
}

// load fetches the video named by the :id parameter, writing 404/500 itself
func (h *VideoHandler) load(c *gin.Context) *models.Video {
	video, err := h.videos.FindByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
		return nil
	}
	if err != nil {
		middleware.GetContextLogger(c, h.logger).WithError(err).Error("Failed to load video")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load video"})
		return nil
	}
	return video
}

// Get handles GET /api/videos/:id
func (h *VideoHandler) Get(c *gin.Context) {
	p := principal(c)
	if p == nil {
		return
	}
	video := h.load(c)
	if video == nil {
		return
	}
	if !p.CanViewVideo(video) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}
	c.JSON(http.StatusOK, video)
}

type updateVideoRequest struct {
	Title       *string `json:"title"`
	IsFlagged   *bool   `json:"is_flagged"`
	IsPublished *bool   `json:"is_published"`
}

// Update handles PATCH /api/videos/:id
func (h *VideoHandler) Update(c *gin.Context) {
	p := principal(c)
	if p == nil {
		return
	}

	var req updateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	video := h.load(c)
	if video == nil {
		return
	}
	if !p.CanEditVideo(video) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	var patch models.VideoPatch
	if req.IsFlagged != nil {
		if !p.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only admins can change moderation flags"})
			return
		}
		patch.IsFlagged = req.IsFlagged
	}
	if (req.Title != nil || req.IsPublished != nil) && !p.IsTenantEditor(video) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only editors of the owning tenant can change title or publication"})
		return
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Title cannot be empty"})
			return
		}
		patch.Title = &title
	}
	patch.IsPublished = req.IsPublished
	if patch.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No updatable fields provided"})
		return
	}

	ctx := c.Request.Context()
	updated, err := h.videos.UpdateByID(ctx, video.ID, patch)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
		return
	}
	if err != nil {
		middleware.GetContextLogger(c, h.logger).WithError(err).WithField("video_id", video.ID).Error("Failed to update video")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update video"})
		return
	}

	_ = h.notifier.VideoEdited(ctx, updated)
	c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /api/videos/:id
func (h *VideoHandler) Delete(c *gin.Context) {
	p := principal(c)
	if p == nil {
		return
	}
	video := h.load(c)
	if video == nil {
		return
	}
	if !p.CanEditVideo(video) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	ctx := c.Request.Context()
	log := middleware.GetContextLogger(c, h.logger).WithField("video_id", video.ID)
	if err := h.videos.Delete(ctx, video.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
			return
		}
		log.WithError(err).Error("Failed to delete video")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete video"})
		return
	}
	if err := h.blobs.Delete(ctx, video.BlobKey); err != nil {
		log.WithError(err).Warn("Failed to delete stored object")
	}

	_ = h.notifier.VideoDeleted(ctx, video.TenantID(), video.ID)
	log.Info("Video deleted")
	c.JSON(http.StatusOK, gin.H{"id": video.ID, "deleted": true})
}
