package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateWorker inserts a new labeling account.
func (s *Store) CreateWorker(ctx context.Context, username, fullName string, role Role) (*Worker, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	if role == "" {
		role = RoleWorker
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO workers (username, full_name, role, is_active, created_at) VALUES (?, ?, ?, 1, ?)`,
		username,
		nullableString(fullName),
		role,
		nowTimestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert worker: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetWorker(ctx, id)
}

// GetWorker fetches a worker by identifier, with assigned category ids.
func (s *Store) GetWorker(ctx context.Context, id int64) (*Worker, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = ?`, id)
	worker, err := scanWorker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get worker: %w", err)
	}
	worker.CategoryIDs, err = s.AssignedCategoryIDs(ctx, worker.ID)
	if err != nil {
		return nil, err
	}
	return worker, nil
}

// GetWorkerByUsername fetches a worker by username.
func (s *Store) GetWorkerByUsername(ctx context.Context, username string) (*Worker, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE username = ?`, strings.TrimSpace(username))
	worker, err := scanWorker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get worker by username: %w", err)
	}
	worker.CategoryIDs, err = s.AssignedCategoryIDs(ctx, worker.ID)
	if err != nil {
		return nil, err
	}
	return worker, nil
}

// ListWorkers returns all workers ordered by identifier, with assignments.
func (s *Store) ListWorkers(ctx context.Context) ([]*Worker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []*Worker
	for rows.Next() {
		worker, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, worker)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, worker := range workers {
		worker.CategoryIDs, err = s.AssignedCategoryIDs(ctx, worker.ID)
		if err != nil {
			return nil, err
		}
	}
	return workers, nil
}

// UpdateWorker persists mutable worker fields (full name, active flag).
func (s *Store) UpdateWorker(ctx context.Context, worker *Worker) error {
	if worker == nil {
		return errors.New("worker is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE workers SET full_name = ?, is_active = ? WHERE id = ?`,
		nullableString(worker.FullName),
		boolToInt(worker.Active),
		worker.ID,
	)
	if err != nil {
		return fmt.Errorf("update worker: %w", err)
	}
	return nil
}

// ReplaceAssignments swaps a worker's category assignments for the given set
// in one transaction.
func (s *Store) ReplaceAssignments(ctx context.Context, workerID int64, categoryIDs []int64) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.tx.ExecContext(ctx, `DELETE FROM worker_categories WHERE worker_id = ?`, workerID); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	for _, categoryID := range categoryIDs {
		if _, err := tx.tx.ExecContext(
			ctx,
			`INSERT INTO worker_categories (worker_id, category_id) VALUES (?, ?)`,
			workerID,
			categoryID,
		); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	return tx.Commit()
}

// AssignedCategoryIDs returns the category ids assigned to a worker, ordered
// by the catalog display order.
func (s *Store) AssignedCategoryIDs(ctx context.Context, workerID int64) ([]int64, error) {
	return assignedCategoryIDs(ctx, s.db, workerID)
}

// AssignedCategoryIDs returns assignments inside the transaction so save
// preconditions observe the same snapshot they commit against.
func (t *Tx) AssignedCategoryIDs(ctx context.Context, workerID int64) ([]int64, error) {
	return assignedCategoryIDs(ctx, t.tx, workerID)
}

func assignedCategoryIDs(ctx context.Context, q dbtx, workerID int64) ([]int64, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT wc.category_id
         FROM worker_categories wc
         JOIN categories c ON c.id = wc.category_id
         WHERE wc.worker_id = ?
         ORDER BY c.display_order, c.id`,
		workerID,
	)
	if err != nil {
		return nil, fmt.Errorf("assigned categories: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const workerColumns = "id, username, full_name, role, is_active, created_at"

func scanWorker(scanner interface{ Scan(dest ...any) error }) (*Worker, error) {
	var (
		id         int64
		username   string
		fullName   sql.NullString
		roleStr    string
		active     int
		createdRaw string
	)
	if err := scanner.Scan(&id, &username, &fullName, &roleStr, &active, &createdRaw); err != nil {
		return nil, err
	}

	worker := &Worker{
		ID:       id,
		Username: username,
		FullName: fullName.String,
		Role:     Role(roleStr),
		Active:   active != 0,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		worker.CreatedAt = created
	}
	return worker, nil
}
