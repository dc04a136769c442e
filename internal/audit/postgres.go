package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-rvu/internal/platform/db"
)

// WriteTx inserts rec inside a savepoint of tx so a failed audit insert
// leaves the enclosing transaction usable.
func WriteTx(ctx context.Context, tx pgx.Tx, rec Record) error {
	return db.Savepoint(ctx, tx, func(sp pgx.Tx) error {
		return insertRecord(ctx, sp, rec)
	})
}

func insertRecord(ctx context.Context, tx pgx.Tx, rec Record) error {
	for _, h := range rec.History {
		_, err := tx.Exec(ctx, `
			INSERT INTO review_history (
				period_id, item_id, asset_number, action, reviewer_id, supervisor_id,
				previous_months, revised_months, status, reason, occurred_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))`,
			h.PeriodID, h.ItemID, h.AssetNumber, string(h.Action), h.ReviewerID, h.SupervisorID,
			h.PreviousMonths, h.RevisedMonths, h.Status, h.Reason, nullTime(h.At))
		if err != nil {
			return fmt.Errorf("audit: insert history: %w", err)
		}
	}
	for _, e := range rec.Entries {
		meta, err := json.Marshal(e.Meta)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO review_audit (company_id, actor_id, action, entity, entity_id, meta, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
			e.CompanyID, e.ActorID, e.Action, e.Entity, e.EntityID, meta, nullTime(e.At))
		if err != nil {
			return fmt.Errorf("audit: insert entry: %w", err)
		}
	}
	return nil
}

// Store reads and writes audit rows through a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Write persists rec in its own transaction. Used by the retry worker.
func (s *Store) Write(ctx context.Context, rec Record) error {
	return db.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		return insertRecord(ctx, tx, rec)
	})
}

// ListHistory returns history rows matching f, newest first.
func (s *Store) ListHistory(ctx context.Context, f HistoryFilters, limit, offset int) ([]HistoryEntry, error) {
	where := []string{"p.company_id = ANY($1)"}
	args := []any{f.CompanyIDs}
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.PeriodID != 0 {
		add("h.period_id = $%d", f.PeriodID)
	}
	if f.ItemID != 0 {
		add("h.item_id = $%d", f.ItemID)
	}
	if f.ReviewerID != 0 {
		add("h.reviewer_id = $%d", f.ReviewerID)
	}
	if f.SupervisorID != 0 {
		add("h.supervisor_id = $%d", f.SupervisorID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		add("h.reason ILIKE $%d", "%"+q+"%")
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT h.id, h.period_id, h.item_id, h.asset_number, h.action, h.reviewer_id, h.supervisor_id,
		       h.previous_months, h.revised_months, h.status, h.reason, h.occurred_at
		FROM review_history h
		JOIN review_periods p ON p.id = h.period_id
		WHERE %s
		ORDER BY h.occurred_at DESC, h.id DESC
		LIMIT $%d OFFSET $%d`, strings.Join(where, " AND "), len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var action string
		if err := rows.Scan(&h.ID, &h.PeriodID, &h.ItemID, &h.AssetNumber, &action, &h.ReviewerID, &h.SupervisorID,
			&h.PreviousMonths, &h.RevisedMonths, &h.Status, &h.Reason, &h.At); err != nil {
			return nil, err
		}
		h.Action = Action(action)
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListEntries returns audit trail rows matching f, newest first.
func (s *Store) ListEntries(ctx context.Context, f EntryFilters, limit, offset int) ([]Entry, error) {
	where := []string{"company_id = ANY($1)"}
	args := []any{f.CompanyIDs}
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.ActorID != 0 {
		add("actor_id = $%d", f.ActorID)
	}
	if e := strings.TrimSpace(f.Entity); e != "" {
		add("entity = $%d", e)
	}
	if id := strings.TrimSpace(f.EntityID); id != "" {
		add("entity_id = $%d", id)
	}
	if a := strings.TrimSpace(f.Action); a != "" {
		add("action = $%d", a)
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, company_id, actor_id, action, entity, entity_id, meta, occurred_at
		FROM review_audit
		WHERE %s
		ORDER BY occurred_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, strings.Join(where, " AND "), len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &meta, &e.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
