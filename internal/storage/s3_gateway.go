package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"pulse/pkg/clients"
	"pulse/pkg/logging"
)

// ErrObjectNotFound is returned when the key does not exist in the bucket
var ErrObjectNotFound = errors.New("object not found")

// S3Config holds configuration for the S3 gateway
type S3Config struct {
	Bucket    string // S3 bucket name
	Prefix    string // Key prefix for all operations
	Region    string // AWS region (default: us-east-1)
	Endpoint  string // Custom endpoint for S3-compatible storage (MinIO, etc.)
	AccessKey string // AWS access key (optional, uses IAM roles if empty)
	SecretKey string // AWS secret key (optional, uses IAM roles if empty)
}

// ObjectInfo is the metadata returned by Head
type ObjectInfo struct {
	Size        int64
	ContentType string
}

// s3API is the subset of *s3.Client the gateway uses
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Gateway reads and writes video objects in a single bucket
type S3Gateway struct {
	client s3API
	config S3Config
	logger logging.Logger
}

// LoadAWSConfig resolves the shared AWS configuration: explicit static
// credentials when both keys are set, the default chain otherwise.
func LoadAWSConfig(ctx context.Context, region, accessKey, secretKey string) (aws.Config, error) {
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithHTTPClient(clients.NewHTTPClient(0)),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewS3Gateway creates a gateway from an already loaded AWS configuration.
func NewS3Gateway(awsCfg aws.Config, cfg S3Config, logger logging.Logger) (*S3Gateway, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO and most S3-compatible storage
		})
	}

	logger.WithFields(logging.Fields{
		"bucket":   cfg.Bucket,
		"prefix":   cfg.Prefix,
		"region":   awsCfg.Region,
		"endpoint": cfg.Endpoint,
	}).Info("S3 gateway initialized")

	return newS3Gateway(s3.NewFromConfig(awsCfg, s3Opts...), cfg, logger), nil
}

func newS3Gateway(client s3API, cfg S3Config, logger logging.Logger) *S3Gateway {
	return &S3Gateway{client: client, config: cfg, logger: logger}
}

// fullKey returns the full S3 key including prefix
func (g *S3Gateway) fullKey(key string) string {
	if g.config.Prefix == "" {
		return key
	}
	return strings.TrimSuffix(g.config.Prefix, "/") + "/" + strings.TrimPrefix(key, "/")
}

// Bucket returns the configured bucket name
func (g *S3Gateway) Bucket() string {
	return g.config.Bucket
}

// ObjectKey returns the bucket-relative key including the configured prefix,
// which is what other AWS services must be handed.
func (g *S3Gateway) ObjectKey(key string) string {
	return g.fullKey(key)
}

// Head returns the object's size and declared content type
func (g *S3Gateway) Head(ctx context.Context, key string) (ObjectInfo, error) {
	resp, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(g.config.Bucket),
		Key:    aws.String(g.fullKey(key)),
	})
	if err != nil {
		return ObjectInfo{}, g.wrap("head", key, err)
	}

	return ObjectInfo{
		Size:        aws.ToInt64(resp.ContentLength),
		ContentType: aws.ToString(resp.ContentType),
	}, nil
}

// GetRange streams the inclusive byte range [start, end] of the object
func (g *S3Gateway) GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("invalid byte range %d-%d", start, end)
	}
	resp, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.config.Bucket),
		Key:    aws.String(g.fullKey(key)),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	})
	if err != nil {
		return nil, g.wrap("get range", key, err)
	}
	return resp.Body, nil
}

// GetFull streams the whole object
func (g *S3Gateway) GetFull(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.config.Bucket),
		Key:    aws.String(g.fullKey(key)),
	})
	if err != nil {
		return nil, g.wrap("get", key, err)
	}
	return resp.Body, nil
}

// Put uploads size bytes from body under key
func (g *S3Gateway) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	fullKey := g.fullKey(key)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(g.config.Bucket),
		Key:           aws.String(fullKey),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := g.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	g.logger.WithFields(logging.Fields{
		"bucket": g.config.Bucket,
		"key":    fullKey,
		"size":   size,
	}).Info("Uploaded object to S3")

	return nil
}

// Delete removes an object from S3
func (g *S3Gateway) Delete(ctx context.Context, key string) error {
	fullKey := g.fullKey(key)

	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.config.Bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	g.logger.WithFields(logging.Fields{
		"bucket": g.config.Bucket,
		"key":    fullKey,
	}).Info("Deleted object from S3")

	return nil
}

// BuildObjectKey builds the key for a new upload: <tenant>/<id><ext>
func BuildObjectKey(tenantID, videoID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return tenantID + "/" + videoID + ext
}

func (g *S3Gateway) wrap(op, key string, err error) error {
	if isNotFoundError(err) {
		return fmt.Errorf("%s %s: %w", op, key, ErrObjectNotFound)
	}
	return fmt.Errorf("failed to %s object %s: %w", op, key, err)
}

// isNotFoundError checks if the error is a "not found" type error
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "StatusCode: 404")
}
