package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/callpanel-api/internal/models"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
	"github.com/noah-isme/callpanel-api/pkg/jobs"
)

// JobTypeAnnouncementAudio pre-generates permanent audio for an announcement.
const JobTypeAnnouncementAudio = "announcement.audio"

type announcementAudioGenerator interface {
	GenerateForAnnouncement(ctx context.Context, announcementID string) (*models.ScheduledAnnouncement, error)
}

// AudioWorkerConfig sizes the background generation pool.
type AudioWorkerConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// AudioWorker generates announcement audio off the request path.
type AudioWorker struct {
	generator announcementAudioGenerator
	queue     *jobs.Queue
	logger    *zap.Logger
}

// NewAudioWorker builds the worker and its queue.
func NewAudioWorker(generator announcementAudioGenerator, cfg AudioWorkerConfig, logger *zap.Logger) *AudioWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &AudioWorker{generator: generator, logger: logger}
	w.queue = jobs.NewQueue("announcement-audio", w.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return w
}

// Start launches the workers.
func (w *AudioWorker) Start(ctx context.Context) {
	w.queue.Start(ctx)
}

// Stop waits for in-flight jobs. Queued jobs are dropped.
func (w *AudioWorker) Stop() {
	w.queue.Stop()
}

// EnqueueAnnouncement schedules audio generation. Repeated requests for an announcement still
// waiting in the queue collapse into one.
func (w *AudioWorker) EnqueueAnnouncement(announcementID string) error {
	return w.queue.Enqueue(jobs.Job{ID: announcementID, Type: JobTypeAnnouncementAudio, Payload: announcementID})
}

func (w *AudioWorker) handle(ctx context.Context, job jobs.Job) error {
	if job.Type != JobTypeAnnouncementAudio {
		return fmt.Errorf("unsupported job type %q", job.Type)
	}
	id, ok := job.Payload.(string)
	if !ok || id == "" {
		w.logger.Warn("discarding malformed audio job", zap.String("job_id", job.ID))
		return nil
	}
	announcement, err := w.generator.GenerateForAnnouncement(ctx, id)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Status < http.StatusInternalServerError {
			w.logger.Info("skipping audio job", zap.String("announcement_id", id), zap.String("reason", appErr.Message))
			return nil
		}
		return err
	}
	w.logger.Info("announcement audio ready", zap.String("announcement_id", id), zap.Stringp("cache_key", announcement.AudioCacheKey))
	return nil
}
