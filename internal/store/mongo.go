package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"pulse/pkg/logging"
	"pulse/pkg/models"
)

const (
	videosCollection  = "videos"
	tenantsCollection = "tenants"
)

type videoDocument struct {
	ID               string    `bson:"_id"`
	TenantID         string    `bson:"tenant_id"`
	Title            string    `bson:"title"`
	BlobKey          string    `bson:"blob_key"`
	MimeType         string    `bson:"mime_type"`
	FileSize         int64     `bson:"file_size"`
	Status           string    `bson:"status"`
	IsFlagged        bool      `bson:"is_flagged"`
	IsPublished      bool      `bson:"is_published"`
	ModerationLabels []string  `bson:"moderation_labels"`
	UploadedBy       string    `bson:"uploaded_by,omitempty"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

func toDocument(v *models.Video) videoDocument {
	return videoDocument{
		ID:               v.ID,
		TenantID:         v.Tenant.ID,
		Title:            v.Title,
		BlobKey:          v.BlobKey,
		MimeType:         v.MimeType,
		FileSize:         v.FileSize,
		Status:           string(v.Status),
		IsFlagged:        v.IsFlagged,
		IsPublished:      v.IsPublished,
		ModerationLabels: labelsOrEmpty(v.ModerationLabels),
		UploadedBy:       v.UploadedBy,
		CreatedAt:        v.CreatedAt,
		UpdatedAt:        v.UpdatedAt,
	}
}

func (d videoDocument) toModel() *models.Video {
	return &models.Video{
		ID:               d.ID,
		Tenant:           models.NewTenantRef(d.TenantID),
		Title:            d.Title,
		BlobKey:          d.BlobKey,
		MimeType:         d.MimeType,
		FileSize:         d.FileSize,
		Status:           models.VideoStatus(d.Status),
		IsFlagged:        d.IsFlagged,
		IsPublished:      d.IsPublished,
		ModerationLabels: labelsOrEmpty(d.ModerationLabels),
		UploadedBy:       d.UploadedBy,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// MongoStore persists videos as documents; single-document updates are
// atomic on the server.
type MongoStore struct {
	videos  *mongo.Collection
	tenants *mongo.Collection
	logger  logging.Logger
}

// ConnectMongo opens a client and verifies it against the primary
func ConnectMongo(ctx context.Context, uri string, logger logging.Logger) (*mongo.Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo URI is required")
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	logger.Info("MongoDB connected")
	return client, nil
}

func NewMongoStore(db *mongo.Database, logger logging.Logger) *MongoStore {
	return &MongoStore{
		videos:  db.Collection(videosCollection),
		tenants: db.Collection(tenantsCollection),
		logger:  logger,
	}
}

// EnsureIndexes creates the listing indexes if they are missing
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.videos.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "is_flagged", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create video indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, v *models.Video) error {
	if _, err := s.videos.InsertOne(ctx, toDocument(v)); err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*models.Video, error) {
	var doc videoDocument
	if err := s.videos.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find video: %w", err)
	}
	v := doc.toModel()
	s.resolveTenants(ctx, []*models.Video{v})
	return v, nil
}

func (s *MongoStore) UpdateByID(ctx context.Context, id string, patch models.VideoPatch) (*models.Video, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.IsFlagged != nil {
		set["is_flagged"] = *patch.IsFlagged
	}
	if patch.IsPublished != nil {
		set["is_published"] = *patch.IsPublished
	}
	if patch.ModerationLabels != nil {
		set["moderation_labels"] = patch.ModerationLabels
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc videoDocument
	err := s.videos.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update video: %w", err)
	}
	v := doc.toModel()
	s.resolveTenants(ctx, []*models.Video{v})
	return v, nil
}

func (s *MongoStore) List(ctx context.Context, filter models.VideoFilter) ([]*models.Video, error) {
	query := bson.M{}
	if filter.TenantID != "" {
		query["tenant_id"] = filter.TenantID
	}
	if filter.Flagged != nil {
		query["is_flagged"] = *filter.Flagged
	}
	if filter.Published != nil {
		query["is_published"] = *filter.Published
	}
	if filter.Completed {
		query["status"] = string(models.VideoStatusCompleted)
	}

	cursor, err := s.videos.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	var docs []videoDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode videos: %w", err)
	}

	out := make([]*models.Video, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	if len(out) > 0 {
		s.resolveTenants(ctx, out)
	}
	return out, nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := s.videos.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// resolveTenants fills tenant names with one query. A failed lookup leaves
// references unresolved; it never fails the read.
func (s *MongoStore) resolveTenants(ctx context.Context, videos []*models.Video) {
	ids := make([]string, 0, len(videos))
	seen := map[string]bool{}
	for _, v := range videos {
		if !seen[v.Tenant.ID] {
			seen[v.Tenant.ID] = true
			ids = append(ids, v.Tenant.ID)
		}
	}

	cursor, err := s.tenants.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to resolve tenant names")
		return
	}
	var tenants []models.Tenant
	if err := cursor.All(ctx, &tenants); err != nil {
		s.logger.WithError(err).Warn("Failed to decode tenant names")
		return
	}

	names := make(map[string]string, len(tenants))
	for _, t := range tenants {
		names[t.ID] = t.Name
	}
	for _, v := range videos {
		if name, ok := names[v.Tenant.ID]; ok {
			v.Tenant = v.Tenant.Resolved(name)
		}
	}
}
