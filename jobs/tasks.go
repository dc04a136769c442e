package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-rvu/internal/audit"
	jobmetrics "github.com/odyssey-erp/odyssey-rvu/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit records whose synchronous write failed.
	QueueAudit = "audit"

	// TaskAuditRetry replays an audit record into the history and audit tables.
	TaskAuditRetry = "audit:retry"
	// TaskIdempotencyPurge removes expired mass-operation request keys.
	TaskIdempotencyPurge = "idempotency:purge"
)

// NewAuditRetryTask wraps rec in an Asynq task.
func NewAuditRetryTask(rec audit.Record, maxRetry int) (*asynq.Task, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetry, body, asynq.Queue(QueueAudit), asynq.MaxRetry(maxRetry)), nil
}

// RecordWriter persists an audit record outside any workflow transaction.
type RecordWriter interface {
	Write(ctx context.Context, rec audit.Record) error
}

// AuditRetryJob replays records queued by the audit recorder.
type AuditRetryJob struct {
	writer  RecordWriter
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewAuditRetryJob wires the retry handler.
func NewAuditRetryJob(writer RecordWriter, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRetryJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRetryJob{writer: writer, logger: logger, metrics: metrics}
}

// Handle processes TaskAuditRetry tasks. Undecodable payloads are not retried.
func (j *AuditRetryJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.writer == nil {
		return errors.New("audit retry: handler not configured")
	}
	var rec audit.Record
	if err := json.Unmarshal(t.Payload(), &rec); err != nil {
		j.logger.Error("audit retry payload", slog.Any("error", err))
		return asynq.SkipRetry
	}
	if rec.Empty() {
		return nil
	}
	tracker := j.metrics.Track(TaskAuditRetry)
	defer func() { err = tracker.End(err) }()

	if err = j.writer.Write(ctx, rec); err != nil {
		j.logger.Warn("audit retry write", slog.Any("error", err))
		return err
	}
	j.metrics.AddReplayed("history", len(rec.History))
	j.metrics.AddReplayed("entries", len(rec.Entries))
	j.logger.Info("audit record replayed",
		slog.Int("history", len(rec.History)), slog.Int("entries", len(rec.Entries)))
	return nil
}

// Purger deletes idempotency keys older than the retention.
type Purger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// IdempotencyPurgeJob keeps the idempotency key table bounded.
type IdempotencyPurgeJob struct {
	purger    Purger
	retention time.Duration
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
}

// NewIdempotencyPurgeJob wires the purge handler.
func NewIdempotencyPurgeJob(purger Purger, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyPurgeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyPurgeJob{purger: purger, retention: retention, logger: logger, metrics: metrics}
}

// NewIdempotencyPurgeTask builds the periodic purge task.
func NewIdempotencyPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyPurge, nil, asynq.Queue(QueueDefault))
}

// Handle processes TaskIdempotencyPurge tasks.
func (j *IdempotencyPurgeJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.purger == nil {
		return errors.New("idempotency purge: handler not configured")
	}
	tracker := j.metrics.Track(TaskIdempotencyPurge)
	defer func() { err = tracker.End(err) }()

	removed, err := j.purger.Purge(ctx, j.retention)
	if err != nil {
		j.logger.Error("purge idempotency keys", slog.Any("error", err))
		return err
	}
	j.logger.Info("idempotency keys purged", slog.Int64("removed", removed))
	return nil
}
