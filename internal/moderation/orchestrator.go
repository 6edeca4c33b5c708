// Package moderation drives a video through automated content analysis and
// records the verdict on its catalog record. Every path out of the
// orchestrator leaves the video flagged unless the analysis positively
// cleared it.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"pulse/internal/analysis"
	"pulse/internal/metrics"
	"pulse/internal/store"
	"pulse/pkg/clients"
	"pulse/pkg/logging"
	"pulse/pkg/models"
)

// Outcome is how a moderation run ended
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeFailed     Outcome = "failed"
	OutcomeExhausted  Outcome = "exhausted"
	OutcomeStartError Outcome = "start_error"
	OutcomeAbandoned  Outcome = "abandoned"
	OutcomeCancelled  Outcome = "cancelled"
)

// JobClient talks to the content analysis service
type JobClient interface {
	Submit(ctx context.Context, blobKey string) (string, error)
	Poll(ctx context.Context, jobID string) (*analysis.JobResult, error)
}

// Records is the slice of the video store the orchestrator needs
type Records interface {
	FindByID(ctx context.Context, id string) (*models.Video, error)
	UpdateByID(ctx context.Context, id string, patch models.VideoPatch) (*models.Video, error)
}

// Notifier announces terminal outcomes
type Notifier interface {
	ClassificationOutcome(ctx context.Context, v *models.Video) error
	VideoUpdated(ctx context.Context, v *models.Video) error
}

// Runner schedules background tasks
type Runner interface {
	Go(name string, fn func(ctx context.Context)) error
	Shutdown(ctx context.Context) error
}

type Config struct {
	MaxAttempts   int
	PollInterval  time.Duration
	MinConfidence float64
	// PersistRetry bounds retries of the terminal store write
	PersistRetry clients.RetryConfig
}

func DefaultConfig() Config {
	persist := clients.DefaultRetryConfig()
	persist.Name = "moderation-persist"
	return Config{
		MaxAttempts:   60,
		PollInterval:  5 * time.Second,
		MinConfidence: 50,
		PersistRetry:  persist,
	}
}

// Orchestrator submits analysis jobs and supervises their poll loops
type Orchestrator struct {
	cfg      Config
	jobs     JobClient
	records  Records
	notifier Notifier
	runner   Runner
	clock    Clock
	logger   logging.Logger
	metrics  *metrics.Metrics
	persist  failsafe.Executor[*models.Video]
}

func NewOrchestrator(cfg Config, jobs JobClient, records Records, notifier Notifier, runner Runner, clock Clock, logger logging.Logger, m *metrics.Metrics) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PersistRetry.Name == "" {
		cfg.PersistRetry.Name = def.PersistRetry.Name
	}
	if clock == nil {
		clock = RealClock{}
	}

	retry := cfg.PersistRetry
	retry.Logger = logger
	retry.ShouldRetry = func(err error) bool {
		return !errors.Is(err, store.ErrNotFound) &&
			!errors.Is(err, context.Canceled) &&
			!errors.Is(err, context.DeadlineExceeded)
	}

	return &Orchestrator{
		cfg:      cfg,
		jobs:     jobs,
		records:  records,
		notifier: notifier,
		runner:   runner,
		clock:    clock,
		logger:   logger,
		metrics:  m,
		persist:  clients.NewRetryExecutor[*models.Video](retry),
	}
}

// Start submits the video for analysis and schedules its poll loop. If the
// submission fails the video is flagged on the spot and the submission error
// is returned.
func (o *Orchestrator) Start(ctx context.Context, videoID, blobKey string) (string, error) {
	log := o.logger.WithField("video_id", videoID)
	started := o.clock.Now()

	jobID, err := o.jobs.Submit(ctx, blobKey)
	if err != nil {
		log.WithError(err).Error("Moderation job submission failed, flagging video")
		patch := models.VideoPatch{
			IsFlagged:        models.Ptr(true),
			ModerationLabels: StartErrorLabels(err),
			Status:           models.Ptr(models.VideoStatusCompleted),
		}
		if ferr := o.finish(ctx, videoID, patch, o.notifier.ClassificationOutcome); ferr != nil {
			log.WithError(ferr).Error("Failed to record submission failure")
		}
		o.metrics.IncJob(string(OutcomeStartError))
		o.metrics.ObserveJobDuration(string(OutcomeStartError), o.clock.Now().Sub(started))
		return "", fmt.Errorf("submit moderation job: %w", err)
	}

	log.WithField("job_id", jobID).Info("Moderation job submitted")
	if err := o.runner.Go("moderation:"+videoID, func(ctx context.Context) {
		o.poll(ctx, videoID, blobKey, jobID, started)
	}); err != nil {
		return jobID, fmt.Errorf("schedule moderation poll: %w", err)
	}
	return jobID, nil
}

// Shutdown cancels in-flight poll loops and waits for them to return. A loop
// interrupted this way writes nothing; its video stays in processing.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.runner.Shutdown(ctx)
}

// poll runs the bounded poll loop for one job and returns how it ended
func (o *Orchestrator) poll(ctx context.Context, videoID, blobKey, jobID string, started time.Time) Outcome {
	log := o.logger.WithFields(logging.Fields{
		"video_id": videoID,
		"job_id":   jobID,
	})
	outcome := o.pollAttempts(ctx, log, videoID, blobKey, jobID)
	o.metrics.IncJob(string(outcome))
	o.metrics.ObserveJobDuration(string(outcome), o.clock.Now().Sub(started))
	log.WithField("outcome", outcome).Info("Moderation run finished")
	return outcome
}

func (o *Orchestrator) pollAttempts(ctx context.Context, log logging.Entry, videoID, blobKey, jobID string) Outcome {
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if err := o.clock.Sleep(ctx, o.cfg.PollInterval); err != nil {
			return OutcomeCancelled
		}

		alog := log.WithField("attempt", attempt)

		video, err := o.records.FindByID(ctx, videoID)
		if errors.Is(err, store.ErrNotFound) {
			alog.Info("Video deleted during moderation, stopping")
			return OutcomeAbandoned
		}
		if err != nil {
			o.metrics.IncPoll("store_error")
			alog.WithError(err).Warn("Failed to load video during moderation poll")
			continue
		}

		result, err := o.jobs.Poll(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return OutcomeCancelled
			}
			o.metrics.IncPoll("error")
			alog.WithError(err).Warn("Moderation poll failed")
			continue
		}
		o.metrics.IncPoll(string(result.Status))

		switch result.Status {
		case analysis.JobSucceeded:
			labels := MapLabels(result.Labels, o.cfg.MinConfidence)
			patch := models.VideoPatch{
				IsFlagged:        models.Ptr(len(labels) > 0),
				ModerationLabels: labels,
				Status:           models.Ptr(models.VideoStatusCompleted),
			}
			if err := o.finish(ctx, videoID, patch, o.notifier.ClassificationOutcome); err != nil {
				alog.WithError(err).Error("Failed to record moderation result")
			}
			return OutcomeCompleted

		case analysis.JobFailed:
			alog.WithField("job_error", result.ErrorMessage).Warn("Moderation job failed, applying heuristic diagnosis")
			patch := models.VideoPatch{
				IsFlagged:        models.Ptr(true),
				ModerationLabels: Diagnose(video.Title, blobKey),
				Status:           models.Ptr(models.VideoStatusCompleted),
			}
			if err := o.finish(ctx, videoID, patch, o.notifier.ClassificationOutcome); err != nil {
				alog.WithError(err).Error("Failed to record heuristic diagnosis")
			}
			return OutcomeFailed
		}
	}

	log.WithField("attempts", o.cfg.MaxAttempts).Warn("Moderation poll budget exhausted")
	patch := models.VideoPatch{Status: models.Ptr(models.VideoStatusFailed)}
	if err := o.finish(ctx, videoID, patch, o.notifier.VideoUpdated); err != nil {
		log.WithError(err).Error("Failed to record exhausted moderation")
	}
	return OutcomeExhausted
}

// finish writes the terminal patch and, once it committed, announces it. A
// record deleted in the meantime is not an error.
func (o *Orchestrator) finish(ctx context.Context, videoID string, patch models.VideoPatch, announce func(context.Context, *models.Video) error) error {
	updated, err := clients.Retry(ctx, o.persist, func(ctx context.Context) (*models.Video, error) {
		return o.records.UpdateByID(ctx, videoID, patch)
	})
	if errors.Is(err, store.ErrNotFound) {
		o.logger.WithField("video_id", videoID).Info("Video deleted before moderation result was stored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist moderation result: %w", err)
	}

	if err := announce(ctx, updated); err != nil {
		o.logger.WithError(err).WithField("video_id", videoID).Warn("Moderation notification incomplete")
	}
	return nil
}
