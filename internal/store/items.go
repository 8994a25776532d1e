package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AddItem inserts an image into the shared pool.
func (s *Store) AddItem(ctx context.Context, filename, url string) (*Item, error) {
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO items (filename, url, is_improper, created_at) VALUES (?, ?, 0, ?)`,
		filename,
		url,
		nowTimestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetItem(ctx, id)
}

// GetItem fetches an item by identifier.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	return getItem(ctx, s.db, id)
}

// GetItem fetches an item inside the transaction.
func (t *Tx) GetItem(ctx context.Context, id int64) (*Item, error) {
	return getItem(ctx, t.tx, id)
}

func getItem(ctx context.Context, q dbtx, id int64) (*Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns the whole pool ordered by item id ascending.
func (s *Store) ListItems(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ItemCount returns the size of the pool.
func (s *Store) ItemCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM items`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}

// MarkItemImproper flags an item inside the transaction, recording the marker
// and timestamp. Improper items accept no further annotation writes.
func (t *Tx) MarkItemImproper(ctx context.Context, itemID, workerID int64, reason string) error {
	_, err := t.tx.ExecContext(
		ctx,
		`UPDATE items SET is_improper = 1, improper_reason = ?, improper_by = ?, improper_at = ? WHERE id = ?`,
		nullableString(reason),
		workerID,
		nowTimestamp(),
		itemID,
	)
	if err != nil {
		return fmt.Errorf("mark item improper: %w", err)
	}
	return nil
}

const itemColumns = "id, filename, url, is_improper, improper_reason, improper_by, improper_at, created_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id          int64
		filename    string
		url         string
		improper    int
		reason      sql.NullString
		improperBy  sql.NullInt64
		improperRaw sql.NullString
		createdRaw  string
	)
	if err := scanner.Scan(&id, &filename, &url, &improper, &reason, &improperBy, &improperRaw, &createdRaw); err != nil {
		return nil, err
	}

	item := &Item{
		ID:             id,
		Filename:       filename,
		URL:            url,
		Improper:       improper != 0,
		ImproperReason: reason.String,
	}
	if improperBy.Valid {
		v := improperBy.Int64
		item.ImproperBy = &v
	}
	if improperRaw.Valid {
		if at, err := parseTimeString(improperRaw.String); err == nil {
			item.ImproperAt = &at
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	return item, nil
}
