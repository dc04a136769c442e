package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-rvu/internal/audit"
	"github.com/odyssey-erp/odyssey-rvu/internal/platform/db"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const periodColumns = `p.id, p.code, p.company_id, p.unit_id, p.responsible_id, p.status, p.opened_on,
	p.expected_close_on, p.closed_on, p.base_date, p.description, p.notes, p.created_at, p.updated_at`

const itemColumns = `i.id, i.period_id, p.company_id, i.asset_number, i.sub_number, i.description, i.start_date,
	i.original_end_date, i.acquisition_value, i.accumulated_depreciation, i.book_value, i.cost_center,
	i.account_class, i.class_description, i.unit_id, i.original_months, i.revised_months, i.revised_end_date,
	i.condition, i.justification, i.increment, i.increment_reason, i.changed, i.status, i.author_id, i.updated_at`

const delegationColumns = `d.id, d.period_id, d.item_id, d.asset_number, d.reviewer_id, d.assigned_by, d.assigned_at, d.status`

const commentColumns = `c.id, c.period_id, c.item_id, c.author_id, c.recipient_id, c.kind, c.body, c.response,
	c.responded_by, c.responded_at, c.created_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	var status string
	err := row.Scan(&p.ID, &p.Code, &p.CompanyID, &p.UnitID, &p.ResponsibleID, &status, &p.OpenedOn,
		&p.ExpectedCloseOn, &p.ClosedOn, &p.BaseDate, &p.Description, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	p.Status = PeriodStatus(status)
	return p, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		it                   Item
		acq, accum, book     pgtype.Numeric
		revMonths            *int
		revEnd               *time.Time
		condition, increment *string
		status               string
	)
	err := row.Scan(&it.ID, &it.PeriodID, &it.CompanyID, &it.AssetNumber, &it.SubNumber, &it.Description, &it.StartDate,
		&it.OriginalEndDate, &acq, &accum, &book, &it.CostCenter,
		&it.AccountClass, &it.ClassDescription, &it.UnitID, &it.OriginalMonths, &revMonths, &revEnd,
		&condition, &it.Justification, &increment, &it.IncrementReason, &it.Changed, &status, &it.AuthorID, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	it.AcquisitionValue = fromNumeric(acq)
	it.AccumulatedDepreciation = fromNumeric(accum)
	it.BookValue = fromNumeric(book)
	if revEnd != nil {
		it.Revision = &Revision{EndDate: *revEnd}
		if revMonths != nil {
			it.Revision.Months = *revMonths
		}
	}
	if condition != nil {
		c := Condition(*condition)
		it.Condition = &c
	}
	if increment != nil {
		inc := Increment(*increment)
		it.Increment = &inc
	}
	it.Status = ItemStatus(status)
	return it, nil
}

func scanDelegation(row pgx.Row) (Delegation, error) {
	var d Delegation
	var status string
	if err := row.Scan(&d.ID, &d.PeriodID, &d.ItemID, &d.AssetNumber, &d.ReviewerID, &d.AssignedBy, &d.AssignedAt, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delegation{}, ErrDelegationNotFound
		}
		return Delegation{}, err
	}
	d.Status = DelegationStatus(status)
	return d, nil
}

func scanComment(row pgx.Row) (Comment, error) {
	var c Comment
	var kind string
	if err := row.Scan(&c.ID, &c.PeriodID, &c.ItemID, &c.AuthorID, &c.RecipientID, &kind, &c.Body, &c.Response,
		&c.RespondedBy, &c.RespondedAt, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Comment{}, ErrCommentNotFound
		}
		return Comment{}, err
	}
	c.Kind = CommentKind(kind)
	return c, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM review_periods p WHERE p.id = $1`, id))
}

func (r *repository) ListPeriods(ctx context.Context, companyIDs []int64) ([]Period, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM review_periods p
		WHERE p.company_id = ANY($1) ORDER BY p.opened_on DESC, p.id DESC`, companyIDs)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPeriod)
}

func (r *repository) GetItem(ctx context.Context, id int64) (Item, error) {
	return loadItem(ctx, r.pool, id, "")
}

func (r *repository) ListItems(ctx context.Context, f ItemFilter) ([]Item, error) {
	where := []string{"i.period_id = $1"}
	args := []any{f.PeriodID}
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Status != "" {
		add("i.status = $%d", string(f.Status))
	}
	if f.AssetNumber != "" {
		add("i.asset_number = $%d", f.AssetNumber)
	}
	if f.Changed != nil {
		add("i.changed = $%d", *f.Changed)
	}
	if f.ReviewerID != 0 {
		add(`EXISTS (SELECT 1 FROM review_delegations d
			WHERE d.item_id = i.id AND d.status = 'ACTIVE' AND d.reviewer_id = $%d)`, f.ReviewerID)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM review_items i
		JOIN review_periods p ON p.id = i.period_id
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY i.asset_number, i.sub_number`, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanItem)
}

func (r *repository) ListDelegations(ctx context.Context, periodID int64) ([]Delegation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+delegationColumns+` FROM review_delegations d
		WHERE d.period_id = $1 ORDER BY d.asset_number, d.item_id, d.id`, periodID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanDelegation)
}

func (r *repository) GetComment(ctx context.Context, id int64) (Comment, error) {
	return scanComment(r.pool.QueryRow(ctx, `SELECT `+commentColumns+` FROM review_comments c WHERE c.id = $1`, id))
}

func (r *repository) ListComments(ctx context.Context, itemID int64) ([]Comment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+commentColumns+` FROM review_comments c
		WHERE c.item_id = $1 ORDER BY c.created_at, c.id`, itemID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanComment)
}

func loadItem(ctx context.Context, q querier, id int64, lock string) (Item, error) {
	return scanItem(q.QueryRow(ctx, `SELECT `+itemColumns+` FROM review_items i
		JOIN review_periods p ON p.id = i.period_id
		WHERE i.id = $1 `+lock, id))
}

// WriteRecord stores audit rows inside a savepoint of the transaction.
func (t *txRepository) WriteRecord(ctx context.Context, rec audit.Record) error {
	return audit.WriteTx(ctx, t.tx, rec)
}

func (t *txRepository) Savepoint(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.Savepoint(ctx, t.tx, func(sp pgx.Tx) error {
		return fn(ctx, &txRepository{tx: sp})
	})
}

func (t *txRepository) LockCompany(ctx context.Context, companyID int64) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, int32(0x52565550), int32(companyID))
	return err
}

func (t *txRepository) LockPeriod(ctx context.Context, id int64, exclusive bool) (Period, error) {
	lock := "FOR SHARE"
	if exclusive {
		lock = "FOR UPDATE"
	}
	return scanPeriod(t.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM review_periods p WHERE p.id = $1 `+lock, id))
}

func (t *txRepository) LockPeriodOfItem(ctx context.Context, itemID int64) (Period, error) {
	period, err := scanPeriod(t.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM review_periods p
		JOIN review_items i ON i.period_id = p.id
		WHERE i.id = $1 FOR SHARE OF p`, itemID))
	if errors.Is(err, ErrPeriodNotFound) {
		return Period{}, ErrItemNotFound
	}
	return period, err
}

func (t *txRepository) LockAssetGroup(ctx context.Context, periodID int64, assetNumber string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, GroupLockKey(periodID, assetNumber))
	return err
}

func (t *txRepository) ActivePeriodExists(ctx context.Context, companyID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM review_periods WHERE company_id = $1 AND status <> 'CLOSED')`, companyID).Scan(&exists)
	return exists, err
}

func (t *txRepository) PeriodExistsForYear(ctx context.Context, companyID int64, year int) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM review_periods
		WHERE company_id = $1 AND EXTRACT(YEAR FROM opened_on) = $2)`, companyID, year).Scan(&exists)
	return exists, err
}

func (t *txRepository) CountPeriodCodes(ctx context.Context, prefix string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM review_periods WHERE code LIKE $1 || '%'`, prefix).Scan(&n)
	return n, err
}

func (t *txRepository) InsertPeriod(ctx context.Context, p Period) (Period, error) {
	created, err := scanPeriod(t.tx.QueryRow(ctx, `
		INSERT INTO review_periods AS p (
			code, company_id, unit_id, responsible_id, status, opened_on,
			expected_close_on, base_date, description, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+periodColumns,
		p.Code, p.CompanyID, p.UnitID, p.ResponsibleID, string(p.Status), p.OpenedOn,
		p.ExpectedCloseOn, p.BaseDate, p.Description, p.Notes))
	if err != nil {
		// A concurrent creation claimed the code or the active slot.
		return Period{}, db.UniqueConflict(err)
	}
	return created, nil
}

func (t *txRepository) UpdatePeriod(ctx context.Context, p Period) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE review_periods
		SET unit_id = $2, responsible_id = $3, status = $4, expected_close_on = $5, closed_on = $6,
		    base_date = $7, description = $8, notes = $9, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.UnitID, p.ResponsibleID, string(p.Status), p.ExpectedCloseOn, p.ClosedOn,
		p.BaseDate, p.Description, p.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (t *txRepository) CountForClose(ctx context.Context, periodID int64) (CloseCounts, error) {
	var c CloseCounts
	err := t.tx.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE EXISTS (
				SELECT 1 FROM review_delegations d WHERE d.item_id = i.id AND d.status = 'ACTIVE')),
			COUNT(*) FILTER (WHERE i.status NOT IN ('REVIEWED', 'APPROVED') AND NOT i.changed),
			COUNT(*) FILTER (WHERE i.status = 'REVIEWED')
		FROM review_items i
		WHERE i.period_id = $1`, periodID).Scan(&c.Items, &c.Delegated, &c.Untouched, &c.Reviewed)
	return c, err
}

func (t *txRepository) LoadItemForUpdate(ctx context.Context, id int64) (Item, error) {
	return loadItem(ctx, t.tx, id, "FOR UPDATE OF i")
}

func (t *txRepository) GroupItems(ctx context.Context, periodID int64, assetNumber string) ([]Item, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+itemColumns+` FROM review_items i
		JOIN review_periods p ON p.id = i.period_id
		WHERE i.period_id = $1 AND i.asset_number = $2
		ORDER BY i.sub_number, i.id
		FOR UPDATE OF i`, periodID, assetNumber)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanItem)
}

func (t *txRepository) SaveItem(ctx context.Context, it Item) error {
	var revMonths *int
	var revEnd *time.Time
	if it.Revision != nil {
		revMonths = &it.Revision.Months
		revEnd = &it.Revision.EndDate
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE review_items
		SET revised_months = $2, revised_end_date = $3, condition = $4, justification = $5,
		    increment = $6, increment_reason = $7, changed = $8, status = $9, author_id = $10,
		    updated_at = COALESCE($11, NOW())
		WHERE id = $1`,
		it.ID, revMonths, revEnd, stringPtr(it.Condition), it.Justification,
		stringPtr(it.Increment), it.IncrementReason, it.Changed, string(it.Status), it.AuthorID,
		nullTime(it.UpdatedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (t *txRepository) CopyItems(ctx context.Context, items []Item) (int64, error) {
	columns := []string{
		"period_id", "asset_number", "sub_number", "description", "start_date", "original_end_date",
		"acquisition_value", "accumulated_depreciation", "book_value", "cost_center", "account_class",
		"class_description", "unit_id", "original_months", "justification", "increment_reason",
		"changed", "status",
	}
	return t.tx.CopyFrom(ctx, pgx.Identifier{"review_items"}, columns, pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
		it := items[i]
		return []any{
			it.PeriodID, it.AssetNumber, it.SubNumber, it.Description, it.StartDate, it.OriginalEndDate,
			toNumeric(it.AcquisitionValue), toNumeric(it.AccumulatedDepreciation), toNumeric(it.BookValue),
			it.CostCenter, it.AccountClass, it.ClassDescription, it.UnitID, it.OriginalMonths, "", "",
			false, string(it.Status),
		}, nil
	}))
}

func (t *txRepository) GroupDelegations(ctx context.Context, periodID int64, assetNumber string) ([]Delegation, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+delegationColumns+` FROM review_delegations d
		WHERE d.period_id = $1 AND d.asset_number = $2 AND d.status = 'ACTIVE'
		ORDER BY d.id
		FOR UPDATE OF d`, periodID, assetNumber)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanDelegation)
}

func (t *txRepository) InsertDelegations(ctx context.Context, ds []Delegation) ([]Delegation, error) {
	out := make([]Delegation, 0, len(ds))
	for _, d := range ds {
		created, err := scanDelegation(t.tx.QueryRow(ctx, `
			INSERT INTO review_delegations AS d (period_id, item_id, asset_number, reviewer_id, assigned_by, assigned_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+delegationColumns,
			d.PeriodID, d.ItemID, d.AssetNumber, d.ReviewerID, d.AssignedBy, d.AssignedAt, string(d.Status)))
		if err != nil {
			return nil, db.UniqueConflict(err)
		}
		out = append(out, created)
	}
	return out, nil
}

func (t *txRepository) LoadDelegation(ctx context.Context, id int64) (Delegation, error) {
	return scanDelegation(t.tx.QueryRow(ctx, `SELECT `+delegationColumns+` FROM review_delegations d WHERE d.id = $1`, id))
}

func (t *txRepository) RemoveGroupDelegations(ctx context.Context, periodID int64, assetNumber string, removedBy int64, at time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE review_delegations
		SET status = 'REMOVED', removed_by = $3, removed_at = $4
		WHERE period_id = $1 AND asset_number = $2 AND status = 'ACTIVE'`,
		periodID, assetNumber, removedBy, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) InsertComment(ctx context.Context, c Comment) (Comment, error) {
	return scanComment(t.tx.QueryRow(ctx, `
		INSERT INTO review_comments AS c (period_id, item_id, author_id, recipient_id, kind, body, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', COALESCE($7, NOW()))
		RETURNING `+commentColumns,
		c.PeriodID, c.ItemID, c.AuthorID, c.RecipientID, string(c.Kind), c.Body, nullTime(c.CreatedAt)))
}

func (t *txRepository) LoadCommentForUpdate(ctx context.Context, id int64) (Comment, error) {
	return scanComment(t.tx.QueryRow(ctx, `SELECT `+commentColumns+` FROM review_comments c WHERE c.id = $1 FOR UPDATE`, id))
}

func (t *txRepository) SaveCommentResponse(ctx context.Context, c Comment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE review_comments SET response = $2, responded_by = $3, responded_at = $4 WHERE id = $1`,
		c.ID, c.Response, c.RespondedBy, c.RespondedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCommentNotFound
	}
	return nil
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func stringPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
