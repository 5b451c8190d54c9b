package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
)

// CategoryRepo handles categories.
type CategoryRepo struct {
	db *sql.DB
}

func NewCategoryRepo(db *sql.DB) *CategoryRepo {
	return &CategoryRepo{db: db}
}

// EnsureSystem upserts a system category keyed on (user, name) and returns the
// resulting row. A user-created category with the same name is left untouched.
func (r *CategoryRepo) EnsureSystem(ctx context.Context, userID, name string) (Category, error) {
	name = strings.TrimSpace(name)
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("cat:"+userID+":"+strings.ToLower(name))).String()
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO categories(id, user_id, name, source, created_at)
	VALUES (?, ?, ?, 'system', CURRENT_TIMESTAMP)
	ON CONFLICT(user_id, name) DO NOTHING;
	`, id, userID, name)
	if err != nil {
		return Category{}, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT id, user_id, name, source, created_at FROM categories WHERE user_id = ? AND name = ?`, userID, name)
	var c Category
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Source, &c.CreatedAt); err != nil {
		return Category{}, err
	}
	return c, nil
}

// SeedDefaults ensures the baseline system categories exist for a user.
// Idempotent; safe to run on every startup.
func (r *CategoryRepo) SeedDefaults(ctx context.Context, userID string) error {
	defaults := []string{
		"Income",
		"Groceries",
		"Restaurants",
		"Transport",
		"Shopping",
		"Utilities",
		"Subscriptions",
		"Health",
		"Entertainment",
		"Transfer",
	}
	for _, name := range defaults {
		if _, err := r.EnsureSystem(ctx, userID, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *CategoryRepo) Get(ctx context.Context, id string) (*Category, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, user_id, name, source, created_at FROM categories WHERE id = ?`, id)
	var c Category
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Source, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *CategoryRepo) List(ctx context.Context, userID string) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, name, source, created_at FROM categories WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Source, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
