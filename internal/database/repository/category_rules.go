package repository

import (
	"context"
	"database/sql"
)

// CategoryRuleRepo stores categorization rules.
type CategoryRuleRepo struct{ db *sql.DB }

func NewCategoryRuleRepo(db *sql.DB) *CategoryRuleRepo { return &CategoryRuleRepo{db: db} }

func (r *CategoryRuleRepo) Insert(ctx context.Context, cr CategoryRule) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO category_rules(id, user_id, category_id, field, operator, pattern, priority, active, source, learned_from, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, cr.ID, cr.UserID, cr.CategoryID, cr.Field, cr.Operator, cr.Pattern, cr.Priority, cr.Active, cr.Source, cr.LearnedFrom)
	return err
}

// InsertIfAbsent inserts cr unless an identical active
// (user, category, field, operator, pattern) rule already exists. An inactive
// duplicate does not block the insert. Returns whether a row was inserted.
func (r *CategoryRuleRepo) InsertIfAbsent(ctx context.Context, cr CategoryRule) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO category_rules(id, user_id, category_id, field, operator, pattern, priority, active, source, learned_from, created_at)
	SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP
	WHERE NOT EXISTS (
	 SELECT 1 FROM category_rules
	 WHERE user_id = ? AND category_id = ? AND field = ? AND operator = ? AND pattern = ? AND active = 1
	)
	`, cr.ID, cr.UserID, cr.CategoryID, cr.Field, cr.Operator, cr.Pattern, cr.Priority, cr.Active, cr.Source, cr.LearnedFrom,
		cr.UserID, cr.CategoryID, cr.Field, cr.Operator, cr.Pattern)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ActiveByUser returns the active rule snapshot used for matching.
func (r *CategoryRuleRepo) ActiveByUser(ctx context.Context, userID string) ([]CategoryRule, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, category_id, field, operator, pattern, priority, active, source, learned_from, created_at
	FROM category_rules WHERE user_id = ? AND active = 1
	ORDER BY priority, created_at, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategoryRule
	for rows.Next() {
		cr, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

func (r *CategoryRuleRepo) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE category_rules SET active = ? WHERE id = ?`, active, id)
	return err
}

func scanRule(row scanner) (CategoryRule, error) {
	var cr CategoryRule
	var learned sql.NullString
	if err := row.Scan(&cr.ID, &cr.UserID, &cr.CategoryID, &cr.Field, &cr.Operator, &cr.Pattern,
		&cr.Priority, &cr.Active, &cr.Source, &learned, &cr.CreatedAt); err != nil {
		return CategoryRule{}, err
	}
	if learned.Valid {
		cr.LearnedFrom = &learned.String
	}
	return cr, nil
}
