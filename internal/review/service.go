package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-rvu/internal/audit"
	"github.com/odyssey-erp/odyssey-rvu/internal/depreciation"
	"github.com/odyssey-erp/odyssey-rvu/internal/platform/db"
	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

// txAttempts bounds how often a transaction that lost a race is re-run.
const txAttempts = 3

// AuditRecorder writes history and audit rows without failing the caller.
// Records that could not be written under a deferred context are queued by
// Flush once the transaction commits.
type AuditRecorder interface {
	Record(ctx context.Context, w audit.Writer, rec audit.Record)
	Flush(ctx context.Context, d *audit.Deferred)
}

// BatchLocker guards mass operations on a period across instances.
type BatchLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Invalidator drops cached read models after a committed change.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// TaskGate reports whether the external execution tasks of a period are done.
type TaskGate interface {
	TasksComplete(ctx context.Context, periodID int64) (bool, error)
}

// Metrics receives workflow outcomes.
type Metrics interface {
	ObserveRevision(outcome string)
	ObserveClose(result string)
	ObserveMassItem(operation, result string)
}

// ServiceConfig carries the optional collaborators of Service.
type ServiceConfig struct {
	Logger         *slog.Logger
	Recorder       AuditRecorder
	Locker         BatchLocker
	Invalidator    Invalidator
	TaskGate       TaskGate
	Metrics        Metrics
	NearTermMonths int
}

// Service orchestrates review periods, item revisions, delegations and approvals.
type Service struct {
	repo        Repository
	logger      *slog.Logger
	recorder    AuditRecorder
	locker      BatchLocker
	invalidator Invalidator
	gate        TaskGate
	metrics     Metrics
	policy      Policy
	now         func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		repo:        repo,
		logger:      logger,
		recorder:    cfg.Recorder,
		locker:      cfg.Locker,
		invalidator: cfg.Invalidator,
		gate:        cfg.TaskGate,
		metrics:     metrics,
		policy:      Policy{NearTermMonths: cfg.NearTermMonths},
		now:         time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) today() time.Time {
	return depreciation.Date(s.now())
}

// withTx runs fn in a repository transaction and re-runs it from a fresh
// snapshot when it lost a race with a concurrent writer. Audit fallbacks are
// only queued for the attempt that committed.
func (s *Service) withTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		txCtx, deferred := audit.WithDeferred(ctx)
		err = s.repo.WithTx(txCtx, fn)
		if err == nil {
			if s.recorder != nil {
				s.recorder.Flush(ctx, deferred)
			}
			return nil
		}
		if !db.Retryable(err) || ctx.Err() != nil {
			return err
		}
		s.logger.Debug("retry review transaction", slog.Int("attempt", attempt), slog.Any("error", err))
	}
	return fmt.Errorf("%w: %v", ErrConcurrentChange, err)
}

func (s *Service) record(ctx context.Context, w audit.Writer, rec audit.Record) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(ctx, w, rec)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.Warn("invalidate review read models", slog.Any("error", err))
	}
}

func authorize(p shared.Principal, period Period) error {
	if !p.CanAccess(period.CompanyID) {
		return ErrOutsideCompany
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

type noopMetrics struct{}

func (noopMetrics) ObserveRevision(string)         {}
func (noopMetrics) ObserveClose(string)            {}
func (noopMetrics) ObserveMassItem(string, string) {}
