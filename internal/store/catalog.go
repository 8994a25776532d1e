package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateCategory inserts a category with its options. Used by seeding and
// admin tooling; workers never mutate the catalog.
func (s *Store) CreateCategory(ctx context.Context, name string, displayOrder int, options []Option) (*Category, error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.tx.ExecContext(
		ctx,
		`INSERT INTO categories (name, display_order) VALUES (?, ?)`,
		name,
		displayOrder,
	)
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	categoryID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, option := range options {
		if _, err := tx.tx.ExecContext(
			ctx,
			`INSERT INTO options (category_id, label, is_typical, display_order) VALUES (?, ?, ?, ?)`,
			categoryID,
			option.Label,
			boolToInt(option.IsTypical),
			option.DisplayOrder,
		); err != nil {
			return nil, fmt.Errorf("insert option: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit category: %w", err)
	}
	return s.GetCategory(ctx, categoryID)
}

// GetCategory fetches a category with its ordered options.
func (s *Store) GetCategory(ctx context.Context, id int64) (*Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, display_order FROM categories WHERE id = ?`, id)
	category, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	category.Options, err = s.optionsForCategory(ctx, category.ID)
	if err != nil {
		return nil, err
	}
	return category, nil
}

// ListCategories returns all categories in display order with their options.
func (s *Store) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, display_order FROM categories ORDER BY display_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []*Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, category := range categories {
		category.Options, err = s.optionsForCategory(ctx, category.ID)
		if err != nil {
			return nil, err
		}
	}
	return categories, nil
}

// CategoryCount returns the number of catalog categories.
func (s *Store) CategoryCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM categories`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return count, nil
}

func (s *Store) optionsForCategory(ctx context.Context, categoryID int64) ([]Option, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, category_id, label, is_typical, display_order
         FROM options WHERE category_id = ? ORDER BY display_order, id`,
		categoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("options for category: %w", err)
	}
	defer rows.Close()

	var options []Option
	for rows.Next() {
		var (
			option  Option
			typical int
		)
		if err := rows.Scan(&option.ID, &option.CategoryID, &option.Label, &typical, &option.DisplayOrder); err != nil {
			return nil, err
		}
		option.IsTypical = typical != 0
		options = append(options, option)
	}
	return options, rows.Err()
}

func scanCategory(scanner interface{ Scan(dest ...any) error }) (*Category, error) {
	category := &Category{}
	if err := scanner.Scan(&category.ID, &category.Name, &category.DisplayOrder); err != nil {
		return nil, err
	}
	return category, nil
}
