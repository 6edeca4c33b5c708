package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"pulse/pkg/clients"
	"pulse/pkg/logging"
)

// JobStatus is the coarse state of a content analysis job
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Label is one detection reported by the analysis service
type Label struct {
	Name       string
	Confidence float64
}

// JobResult is a snapshot of a job. Labels are only populated once the job
// succeeded; ErrorMessage only when it failed.
type JobResult struct {
	Status       JobStatus
	Labels       []Label
	ErrorMessage string
}

// ErrEmptyJobID is returned when the service accepts a job without an id
var ErrEmptyJobID = errors.New("analysis service returned no job id")

type rekognitionAPI interface {
	StartContentModeration(ctx context.Context, params *rekognition.StartContentModerationInput, optFns ...func(*rekognition.Options)) (*rekognition.StartContentModerationOutput, error)
	GetContentModeration(ctx context.Context, params *rekognition.GetContentModerationInput, optFns ...func(*rekognition.Options)) (*rekognition.GetContentModerationOutput, error)
}

// Config configures the Rekognition job client
type Config struct {
	// Bucket holding the videos; Rekognition reads them directly from S3
	Bucket string
	// ObjectKey maps a catalog blob key to the bucket-relative key
	ObjectKey func(key string) string
	// MaxResultsPerPage bounds a single GetContentModeration page
	MaxResultsPerPage int32
}

// RekognitionClient submits and polls Rekognition video content moderation jobs
type RekognitionClient struct {
	api     rekognitionAPI
	cfg     Config
	breaker *clients.CircuitBreaker
	logger  logging.Logger
}

// NewRekognitionClient creates a job client from a loaded AWS configuration.
func NewRekognitionClient(awsCfg aws.Config, cfg Config, breaker *clients.CircuitBreaker, logger logging.Logger) (*RekognitionClient, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("analysis bucket is required")
	}
	logger.WithFields(logging.Fields{
		"bucket": cfg.Bucket,
		"region": awsCfg.Region,
	}).Info("Rekognition client initialized")
	return newRekognitionClient(rekognition.NewFromConfig(awsCfg), cfg, breaker, logger), nil
}

func newRekognitionClient(api rekognitionAPI, cfg Config, breaker *clients.CircuitBreaker, logger logging.Logger) *RekognitionClient {
	if cfg.ObjectKey == nil {
		cfg.ObjectKey = func(key string) string { return key }
	}
	if cfg.MaxResultsPerPage <= 0 {
		cfg.MaxResultsPerPage = 1000
	}
	if breaker == nil {
		breaker = clients.NewCircuitBreaker(clients.CircuitBreakerConfig{Name: "rekognition", Logger: logger})
	}
	return &RekognitionClient{api: api, cfg: cfg, breaker: breaker, logger: logger}
}

// Submit starts a content moderation job for the object at key.
func (c *RekognitionClient) Submit(ctx context.Context, key string) (string, error) {
	var jobID string
	err := c.breaker.CallContext(ctx, func(ctx context.Context) error {
		out, err := c.api.StartContentModeration(ctx, &rekognition.StartContentModerationInput{
			Video: &types.Video{
				S3Object: &types.S3Object{
					Bucket: aws.String(c.cfg.Bucket),
					Name:   aws.String(c.cfg.ObjectKey(key)),
				},
			},
		})
		if err != nil {
			return err
		}
		jobID = aws.ToString(out.JobId)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("start content moderation: %w", err)
	}
	if jobID == "" {
		return "", ErrEmptyJobID
	}

	c.logger.WithFields(logging.Fields{
		"job_id":   jobID,
		"blob_key": key,
	}).Info("Content moderation job started")
	return jobID, nil
}

// Ping reports the Rekognition breaker as unavailable while it is open. It
// makes no API call.
func (c *RekognitionClient) Ping(context.Context) error {
	if c.breaker.IsOpen() {
		return fmt.Errorf("%s circuit breaker is %s: %w", c.breaker.Name(), c.breaker.State(), clients.ErrCircuitOpen)
	}
	return nil
}

// Poll fetches the job's status, collecting every label page once it succeeded.
func (c *RekognitionClient) Poll(ctx context.Context, jobID string) (*JobResult, error) {
	var result *JobResult
	err := c.breaker.CallContext(ctx, func(ctx context.Context) error {
		r, err := c.fetch(ctx, jobID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get content moderation %s: %w", jobID, err)
	}
	return result, nil
}

func (c *RekognitionClient) fetch(ctx context.Context, jobID string) (*JobResult, error) {
	input := &rekognition.GetContentModerationInput{
		JobId:      aws.String(jobID),
		MaxResults: aws.Int32(c.cfg.MaxResultsPerPage),
	}

	result := &JobResult{}
	for {
		out, err := c.api.GetContentModeration(ctx, input)
		if err != nil {
			return nil, err
		}

		switch out.JobStatus {
		case types.VideoJobStatusSucceeded:
			result.Status = JobSucceeded
		case types.VideoJobStatusFailed:
			return &JobResult{Status: JobFailed, ErrorMessage: aws.ToString(out.StatusMessage)}, nil
		default:
			return &JobResult{Status: JobRunning}, nil
		}

		for _, detection := range out.ModerationLabels {
			if detection.ModerationLabel == nil {
				continue
			}
			result.Labels = append(result.Labels, Label{
				Name:       aws.ToString(detection.ModerationLabel.Name),
				Confidence: float64(aws.ToFloat32(detection.ModerationLabel.Confidence)),
			})
		}

		if aws.ToString(out.NextToken) == "" {
			return result, nil
		}
		input.NextToken = out.NextToken
	}
}
