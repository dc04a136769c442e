package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

type stubHistoryRepo struct {
	history     []HistoryEntry
	lastFilters HistoryFilters
	lastLimit   int
	lastOffset  int
}

func (s *stubHistoryRepo) ListHistory(ctx context.Context, f HistoryFilters, limit, offset int) ([]HistoryEntry, error) {
	s.lastFilters, s.lastLimit, s.lastOffset = f, limit, offset
	if len(s.history) > limit {
		return s.history[:limit], nil
	}
	return s.history, nil
}

func (s *stubHistoryRepo) ListEntries(ctx context.Context, f EntryFilters, limit, offset int) ([]Entry, error) {
	return nil, nil
}

func TestHistoryPagingAndScope(t *testing.T) {
	repo := &stubHistoryRepo{history: []HistoryEntry{
		{ID: 3, Action: ActionApproved},
		{ID: 2, Action: ActionReverted},
		{ID: 1, Action: ActionAutoApproved},
	}}
	svc := NewService(repo)

	result, err := svc.History(context.Background(), shared.Principal{UserID: 9, CompanyIDs: []int64{4}}, HistoryFilters{
		CompanyIDs: []int64{99},
		ReviewerID: 7,
		Page:       2,
		PageSize:   2,
	})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
	assert.Equal(t, 3, repo.lastLimit)
	assert.Equal(t, 2, repo.lastOffset)
	assert.Equal(t, []int64{4}, repo.lastFilters.CompanyIDs)
	assert.Equal(t, int64(7), repo.lastFilters.ReviewerID)
}

func TestHistoryWithoutCompaniesIsEmpty(t *testing.T) {
	repo := &stubHistoryRepo{history: []HistoryEntry{{ID: 1}}}
	result, err := NewService(repo).History(context.Background(), shared.Principal{UserID: 1}, HistoryFilters{})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Zero(t, repo.lastLimit)
}

type failingWriter struct{ err error }

func (w failingWriter) WriteRecord(ctx context.Context, rec Record) error { return w.err }

type captureQueue struct {
	records []Record
	err     error
}

func (q *captureQueue) EnqueueAuditRetry(ctx context.Context, rec Record) error {
	q.records = append(q.records, rec)
	return q.err
}

type countingObserver map[string]int

func (o countingObserver) ObserveAuditFallback(outcome string) { o[outcome]++ }

func TestRecorderQueuesFailedWrites(t *testing.T) {
	queue := &captureQueue{}
	observer := countingObserver{}
	rec := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)), queue, observer)

	record := Record{History: []HistoryEntry{{ItemID: 5, Action: ActionApproved, At: time.Now()}}}
	rec.Record(context.Background(), failingWriter{err: errors.New("insert failed")}, record)

	require.Len(t, queue.records, 1)
	assert.Equal(t, int64(5), queue.records[0].History[0].ItemID)
	assert.Equal(t, 1, observer["queued"])
}

func TestRecorderDropsWhenQueueFails(t *testing.T) {
	queue := &captureQueue{err: errors.New("redis down")}
	observer := countingObserver{}
	rec := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)), queue, observer)

	rec.Record(context.Background(), failingWriter{err: errors.New("insert failed")}, Record{Entries: []Entry{{Action: "period.close"}}})
	assert.Equal(t, 1, observer["dropped"])
}

func TestRecorderSkipsEmptyRecords(t *testing.T) {
	queue := &captureQueue{}
	NewRecorder(nil, queue, nil).Record(context.Background(), failingWriter{err: errors.New("boom")}, Record{})
	assert.Empty(t, queue.records)
}

func TestRecorderHoldsFailedWritesUntilFlush(t *testing.T) {
	queue := &captureQueue{}
	observer := countingObserver{}
	rec := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)), queue, observer)

	ctx, deferred := WithDeferred(context.Background())
	rec.Record(ctx, failingWriter{err: errors.New("insert failed")}, Record{Entries: []Entry{{Action: "item.approve"}}})
	assert.Empty(t, queue.records)
	assert.Equal(t, 1, deferred.Len())

	rec.Flush(context.Background(), deferred)
	require.Len(t, queue.records, 1)
	assert.Equal(t, "item.approve", queue.records[0].Entries[0].Action)
	assert.Equal(t, 1, observer["queued"])
	assert.Zero(t, deferred.Len())

	rec.Flush(context.Background(), deferred)
	assert.Len(t, queue.records, 1)
}
