package repository

import (
	"context"
	"database/sql"
)

// LinkedItemRepo handles upstream-linked accounts.
type LinkedItemRepo struct {
	db *sql.DB
}

func NewLinkedItemRepo(db *sql.DB) *LinkedItemRepo { return &LinkedItemRepo{db: db} }

func (r *LinkedItemRepo) Upsert(ctx context.Context, it LinkedItem) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO linked_items(id, user_id, external_id, institution, access_token, cursor, last_synced_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(external_id) DO UPDATE SET
	 institution=excluded.institution,
	 access_token=excluded.access_token,
	 updated_at=CURRENT_TIMESTAMP;
	`, it.ID, it.UserID, it.ExternalID, it.Institution, it.AccessToken, it.Cursor, it.LastSyncedAt)
	return err
}

func (r *LinkedItemRepo) Get(ctx context.Context, id string) (*LinkedItem, error) {
	row := r.db.QueryRowContext(ctx, itemSelect+` WHERE id = ?`, id)
	return scanItem(row)
}

func (r *LinkedItemRepo) GetByExternalID(ctx context.Context, externalID string) (*LinkedItem, error) {
	row := r.db.QueryRowContext(ctx, itemSelect+` WHERE external_id = ?`, externalID)
	return scanItem(row)
}

func (r *LinkedItemRepo) ListByUser(ctx context.Context, userID string) ([]LinkedItem, error) {
	rows, err := r.db.QueryContext(ctx, itemSelect+` WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LinkedItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

// SetCursor persists the cursor and last-synced timestamp after a full page
// loop completes.
func (r *LinkedItemRepo) SetCursor(ctx context.Context, id string, cursor string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE linked_items SET cursor = ?, last_synced_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, cursor, id)
	return err
}

// ClearCursor resets reconciliation progress after upstream cursor drift.
func (r *LinkedItemRepo) ClearCursor(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE linked_items SET cursor = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, id)
	return err
}

const itemSelect = `SELECT id, user_id, external_id, institution, access_token, cursor, last_synced_at, created_at, updated_at FROM linked_items`

func scanItem(row scanner) (*LinkedItem, error) {
	var it LinkedItem
	var cursor sql.NullString
	var synced sql.NullTime
	if err := row.Scan(&it.ID, &it.UserID, &it.ExternalID, &it.Institution, &it.AccessToken,
		&cursor, &synced, &it.CreatedAt, &it.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if cursor.Valid {
		it.Cursor = &cursor.String
	}
	if synced.Valid {
		it.LastSyncedAt = &synced.Time
	}
	return &it, nil
}
