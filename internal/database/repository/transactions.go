package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// TransactionFilters defines list filters.
type TransactionFilters struct {
	UserID     string
	ItemID     string
	CategoryID string
	Month      time.Time // first day of month; zero time = no month filter
	Search     string
}

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// Upsert inserts or refreshes a transaction keyed on (source, external_id).
// On conflict, descriptive/amount/date/pending fields are always refreshed,
// but category, provenance and confidence survive unless the existing
// provenance is 'system'. User and rule decisions are protected structurally;
// no read-check-write race exists.
func (r *TransactionRepo) Upsert(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(
	 id, user_id, item_id, source, external_id, amount_cents, iso_currency, date, authorized_date,
	 description, merchant_name, mcc, upstream_primary, upstream_detailed, pending,
	 category_id, category_source, confidence, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(source, external_id) DO UPDATE SET
	 amount_cents=excluded.amount_cents,
	 iso_currency=excluded.iso_currency,
	 date=excluded.date,
	 authorized_date=excluded.authorized_date,
	 description=excluded.description,
	 merchant_name=excluded.merchant_name,
	 mcc=excluded.mcc,
	 upstream_primary=excluded.upstream_primary,
	 upstream_detailed=excluded.upstream_detailed,
	 pending=excluded.pending,
	 category_id=CASE WHEN transactions.category_source = 'system' THEN excluded.category_id ELSE transactions.category_id END,
	 category_source=CASE WHEN transactions.category_source = 'system' THEN excluded.category_source ELSE transactions.category_source END,
	 confidence=CASE WHEN transactions.category_source = 'system' THEN excluded.confidence ELSE transactions.confidence END,
	 updated_at=CURRENT_TIMESTAMP;
	`,
		t.ID, t.UserID, t.ItemID, t.Source, t.ExternalID, t.AmountCents, t.ISOCurrency, t.Date, t.AuthorizedDate,
		t.Description, t.MerchantName, t.MCC, t.UpstreamPrimary, t.UpstreamDetailed, t.Pending,
		t.CategoryID, t.CategorySource, t.Confidence)
	return err
}

// DeleteByExternal hard-deletes a transaction the upstream feed removed.
func (r *TransactionRepo) DeleteByExternal(ctx context.Context, source, externalID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE source = ? AND external_id = ?`, source, externalID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetCategory records a category decision together with its provenance. The
// write is unconditional, so it belongs to the user path; rule promotion goes
// through PromoteToRule.
func (r *TransactionRepo) SetCategory(ctx context.Context, id string, categoryID *string, provenance string, confidence *float64) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET category_id = ?, category_source = ?, confidence = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?
	`, categoryID, provenance, confidence, id)
	return err
}

// PromoteToRule assigns a rule decision only while the row still carries
// system provenance. The guard lives in the WHERE clause: a user decision
// that lands between the caller's read and this write keeps the row, and the
// promotion simply reports false.
func (r *TransactionRepo) PromoteToRule(ctx context.Context, id, categoryID string, confidence float64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET category_id = ?, category_source = ?, confidence = ?, updated_at=CURRENT_TIMESTAMP
	WHERE id = ? AND category_source = ?
	`, categoryID, ProvenanceRule, confidence, id, ProvenanceSystem)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, txSelect+` WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) GetByExternal(ctx context.Context, source, externalID string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, txSelect+` WHERE source = ? AND external_id = ?`, source, externalID)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []interface{}

	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ItemID != "" {
		where = append(where, "item_id = ?")
		args = append(args, f.ItemID)
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if !f.Month.IsZero() {
		start := time.Date(f.Month.Year(), f.Month.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0)
		where = append(where, "date >= ? AND date < ?")
		args = append(args, start, end)
	}
	if f.Search != "" {
		where = append(where, "description LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}

	query := txSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const txSelect = `SELECT id, user_id, item_id, source, external_id, amount_cents, iso_currency, date, authorized_date,
 description, merchant_name, mcc, upstream_primary, upstream_detailed, pending,
 category_id, category_source, confidence, created_at, updated_at FROM transactions`

// scanner handles nullable fields for both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var authorized sql.NullTime
	var merchant, mcc, primary, detailed, category sql.NullString
	var confidence sql.NullFloat64
	if err := row.Scan(&t.ID, &t.UserID, &t.ItemID, &t.Source, &t.ExternalID, &t.AmountCents, &t.ISOCurrency,
		&t.Date, &authorized, &t.Description, &merchant, &mcc, &primary, &detailed, &t.Pending,
		&category, &t.CategorySource, &confidence, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	if authorized.Valid {
		t.AuthorizedDate = &authorized.Time
	}
	if merchant.Valid {
		t.MerchantName = &merchant.String
	}
	if mcc.Valid {
		t.MCC = &mcc.String
	}
	if primary.Valid {
		t.UpstreamPrimary = &primary.String
	}
	if detailed.Valid {
		t.UpstreamDetailed = &detailed.String
	}
	if category.Valid {
		t.CategoryID = &category.String
	}
	if confidence.Valid {
		t.Confidence = &confidence.Float64
	}
	return t, nil
}
