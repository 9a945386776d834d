package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gemledger/gemledger/internal/jobs"
)

// OverdueMarker is satisfied by the receivables service.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// KeyCleaner is satisfied by the idempotency store.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CacheInvalidator is satisfied by the Rapaport calculator.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// OverdueSweepJob relabels invoices whose due date has passed.
type OverdueSweepJob struct {
	Marker  OverdueMarker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOverdueSweepJob initialises the overdue sweep handler.
func NewOverdueSweepJob(marker OverdueMarker, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	return &OverdueSweepJob{
		Marker:  marker,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sweep.
func (j *OverdueSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Marker == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	var payload MarkOverduePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("overdue sweep: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	asOf := j.now()
	if payload.AsOf != "" {
		parsed, perr := time.Parse(time.DateOnly, payload.AsOf)
		if perr != nil {
			return fmt.Errorf("overdue sweep: as_of %q: %v: %w", payload.AsOf, perr, asynq.SkipRetry)
		}
		asOf = parsed
	}

	tracker := j.Metrics.Track(TaskMarkOverdue)
	defer func() {
		err = tracker.End(err)
	}()

	logger := loggerOrDefault(j.Logger).With(slog.String("job", TaskMarkOverdue), slog.Time("as_of", asOf))
	n, err := j.Marker.MarkOverdue(ctx, asOf)
	if err != nil {
		logger.Error("overdue sweep failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddProcessed(TaskMarkOverdue, n)
	logger.Info("overdue sweep completed", slog.Int64("marked", n))
	return nil
}

func (j *OverdueSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// IdempotencyCleanupJob purges processed keys older than the retention window.
type IdempotencyCleanupJob struct {
	Store   KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(store KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("idempotency cleanup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = DefaultIdempotencyRetention
	}

	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() {
		err = tracker.End(err)
	}()

	logger := loggerOrDefault(j.Logger).With(slog.String("job", TaskIdempotencyCleanup), slog.Duration("retention", retention))
	n, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		logger.Error("idempotency cleanup failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddProcessed(TaskIdempotencyCleanup, n)
	logger.Info("idempotency keys purged", slog.Int64("deleted", n))
	return nil
}

// RapInvalidateJob bumps the Rapaport cache version after a table import.
type RapInvalidateJob struct {
	Cache   CacheInvalidator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRapInvalidateJob initialises the invalidation handler.
func NewRapInvalidateJob(cache CacheInvalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *RapInvalidateJob {
	return &RapInvalidateJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle executes the invalidation.
func (j *RapInvalidateJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Cache == nil {
		return errors.New("rap invalidate: handler not configured")
	}
	tracker := j.Metrics.Track(TaskRapInvalidate)
	defer func() {
		err = tracker.End(err)
	}()
	if err = j.Cache.Invalidate(ctx); err != nil {
		loggerOrDefault(j.Logger).Error("rap invalidate failed", slog.Any("error", err))
	}
	return err
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
