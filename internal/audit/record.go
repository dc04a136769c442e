// Package audit records and queries the append-only history of review
// decisions and the audit trail of workflow actions.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Action names a history event on a review item.
type Action string

const (
	ActionApproved     Action = "approved"
	ActionAutoApproved Action = "auto_approved"
	ActionReverted     Action = "reverted"
)

// HistoryEntry is an append-only record of a decision on a review item.
type HistoryEntry struct {
	ID             int64     `json:"id,omitempty"`
	PeriodID       int64     `json:"period_id"`
	ItemID         int64     `json:"item_id"`
	AssetNumber    string    `json:"asset_number"`
	Action         Action    `json:"action"`
	ReviewerID     *int64    `json:"reviewer_id,omitempty"`
	SupervisorID   *int64    `json:"supervisor_id,omitempty"`
	PreviousMonths int       `json:"previous_months"`
	RevisedMonths  int       `json:"revised_months"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason"`
	At             time.Time `json:"at"`
}

// Entry is one row of the workflow audit trail.
type Entry struct {
	ID        int64          `json:"id,omitempty"`
	CompanyID int64          `json:"company_id"`
	ActorID   int64          `json:"actor_id"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entity_id"`
	Meta      map[string]any `json:"meta,omitempty"`
	At        time.Time      `json:"at"`
}

// Record groups the history and audit rows produced by one operation.
type Record struct {
	History []HistoryEntry `json:"history,omitempty"`
	Entries []Entry        `json:"entries,omitempty"`
}

// Empty reports whether there is nothing to write.
func (r Record) Empty() bool {
	return len(r.History) == 0 && len(r.Entries) == 0
}

// Writer persists a record, normally inside the caller's transaction.
type Writer interface {
	WriteRecord(ctx context.Context, rec Record) error
}

// RetryQueue re-submits records whose synchronous write failed.
type RetryQueue interface {
	EnqueueAuditRetry(ctx context.Context, rec Record) error
}

// FallbackObserver counts records that fell back to the retry queue.
type FallbackObserver interface {
	ObserveAuditFallback(outcome string)
}

// Recorder writes audit records on a best-effort basis: a failed write is
// logged and queued for retry, never surfaced to the caller.
type Recorder struct {
	logger   *slog.Logger
	queue    RetryQueue
	observer FallbackObserver
}

// NewRecorder constructs a Recorder. queue and observer may be nil.
func NewRecorder(logger *slog.Logger, queue RetryQueue, observer FallbackObserver) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger, queue: queue, observer: observer}
}

// Record writes rec through w. When ctx carries a Deferred the fallback is
// held until Flush, so a record is only queued once the surrounding
// transaction has committed.
func (r *Recorder) Record(ctx context.Context, w Writer, rec Record) {
	if r == nil || rec.Empty() {
		return
	}
	err := w.WriteRecord(ctx, rec)
	if err == nil {
		return
	}
	r.logger.Warn("audit write failed", slog.Any("error", err),
		slog.Int("history", len(rec.History)), slog.Int("entries", len(rec.Entries)))
	if d := deferredFrom(ctx); d != nil {
		d.hold(rec)
		return
	}
	r.enqueue(ctx, rec)
}

// Flush queues the records held by d. Call it after the transaction that
// produced them has committed; drop d instead when it rolled back.
func (r *Recorder) Flush(ctx context.Context, d *Deferred) {
	if r == nil || d == nil {
		return
	}
	for _, rec := range d.take() {
		r.enqueue(ctx, rec)
	}
}

func (r *Recorder) enqueue(ctx context.Context, rec Record) {
	if r.queue == nil {
		r.observe("dropped")
		return
	}
	if qerr := r.queue.EnqueueAuditRetry(context.WithoutCancel(ctx), rec); qerr != nil {
		r.logger.Error("audit retry enqueue failed", slog.Any("error", qerr))
		r.observe("dropped")
		return
	}
	r.observe("queued")
}

func (r *Recorder) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveAuditFallback(outcome)
	}
}

// Deferred holds records whose write failed inside an open transaction.
type Deferred struct {
	mu      sync.Mutex
	records []Record
}

type deferredKey struct{}

// WithDeferred returns a context under which Recorder.Record holds failed
// records in the returned Deferred instead of queueing them.
func WithDeferred(ctx context.Context) (context.Context, *Deferred) {
	d := &Deferred{}
	return context.WithValue(ctx, deferredKey{}, d), d
}

func deferredFrom(ctx context.Context) *Deferred {
	d, _ := ctx.Value(deferredKey{}).(*Deferred)
	return d
}

// Len reports how many records are held.
func (d *Deferred) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

func (d *Deferred) hold(rec Record) {
	d.mu.Lock()
	d.records = append(d.records, rec)
	d.mu.Unlock()
}

func (d *Deferred) take() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.records
	d.records = nil
	return out
}
