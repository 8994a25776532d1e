package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateEditRequest files a pending unlock request for (worker, item). The
// generated token is the identifier surfaced to callers.
func (s *Store) CreateEditRequest(ctx context.Context, workerID, itemID int64, reason string) (*EditRequest, error) {
	token := uuid.New().String()
	timestamp := nowTimestamp()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO edit_requests (token, worker_id, item_id, reason, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		token,
		workerID,
		itemID,
		nullableString(reason),
		RequestPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert edit request: %w", err)
	}
	return s.GetEditRequest(ctx, token)
}

// GetEditRequest fetches a request by token.
func (s *Store) GetEditRequest(ctx context.Context, token string) (*EditRequest, error) {
	return editRequestWhere(ctx, s.db, `token = ?`, token)
}

// PendingEditRequest returns the worker's pending request for an item, if any.
// At most one pending request may exist per (worker, item).
func (s *Store) PendingEditRequest(ctx context.Context, workerID, itemID int64) (*EditRequest, error) {
	return editRequestWhere(ctx, s.db, `worker_id = ? AND item_id = ? AND status = ?`, workerID, itemID, RequestPending)
}

// ApprovedEditRequest returns the worker's approved, not yet consumed request
// for an item, if any.
func (s *Store) ApprovedEditRequest(ctx context.Context, workerID, itemID int64) (*EditRequest, error) {
	return editRequestWhere(ctx, s.db, `worker_id = ? AND item_id = ? AND status = ?`, workerID, itemID, RequestApproved)
}

// ApprovedEditRequest returns the approved request inside the transaction, so
// a save consumes the same grant it validated.
func (t *Tx) ApprovedEditRequest(ctx context.Context, workerID, itemID int64) (*EditRequest, error) {
	return editRequestWhere(ctx, t.tx, `worker_id = ? AND item_id = ? AND status = ?`, workerID, itemID, RequestApproved)
}

func editRequestWhere(ctx context.Context, q dbtx, where string, args ...any) (*EditRequest, error) {
	row := q.QueryRowContext(ctx, `SELECT `+editRequestColumns+` FROM edit_requests WHERE `+where+` ORDER BY id LIMIT 1`, args...)
	request, err := scanEditRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get edit request: %w", err)
	}
	return request, nil
}

// DecideEditRequest moves a request from pending to approved or denied,
// recording the reviewer.
func (t *Tx) DecideEditRequest(ctx context.Context, id int64, status EditRequestStatus, note string, reviewerID int64) error {
	timestamp := nowTimestamp()
	_, err := t.tx.ExecContext(
		ctx,
		`UPDATE edit_requests
         SET status = ?, review_note = ?, reviewed_by = ?, reviewed_at = ?, updated_at = ?
         WHERE id = ?`,
		status,
		nullableString(note),
		reviewerID,
		timestamp,
		timestamp,
		id,
	)
	if err != nil {
		return fmt.Errorf("decide edit request: %w", err)
	}
	return nil
}

// ConsumeEditRequest marks an approved request used. A grant is single-use:
// once consumed the item is locked again.
func (t *Tx) ConsumeEditRequest(ctx context.Context, id int64) error {
	timestamp := nowTimestamp()
	_, err := t.tx.ExecContext(
		ctx,
		`UPDATE edit_requests SET status = ?, used_at = ?, updated_at = ? WHERE id = ?`,
		RequestUsed,
		timestamp,
		timestamp,
		id,
	)
	if err != nil {
		return fmt.Errorf("consume edit request: %w", err)
	}
	return nil
}

// ListEditRequestsForWorker returns the worker's requests, newest first.
func (s *Store) ListEditRequestsForWorker(ctx context.Context, workerID int64) ([]*EditRequest, error) {
	return listEditRequests(ctx, s.db, `worker_id = ?`, workerID)
}

// ListPendingEditRequests returns all pending requests for the review screen,
// oldest first so the queue drains in arrival order.
func (s *Store) ListPendingEditRequests(ctx context.Context) ([]*EditRequest, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+editRequestColumns+` FROM edit_requests WHERE status = ? ORDER BY created_at, id`,
		RequestPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending edit requests: %w", err)
	}
	defer rows.Close()
	return collectEditRequests(rows)
}

func listEditRequests(ctx context.Context, q dbtx, where string, args ...any) ([]*EditRequest, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT `+editRequestColumns+` FROM edit_requests WHERE `+where+` ORDER BY created_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list edit requests: %w", err)
	}
	defer rows.Close()
	return collectEditRequests(rows)
}

func collectEditRequests(rows *sql.Rows) ([]*EditRequest, error) {
	var requests []*EditRequest
	for rows.Next() {
		request, err := scanEditRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

const editRequestColumns = "id, token, worker_id, item_id, reason, status, review_note, reviewed_by, reviewed_at, used_at, created_at, updated_at"

func scanEditRequest(scanner interface{ Scan(dest ...any) error }) (*EditRequest, error) {
	var (
		id          int64
		token       string
		workerID    int64
		itemID      int64
		reason      sql.NullString
		statusStr   string
		reviewNote  sql.NullString
		reviewedBy  sql.NullInt64
		reviewedRaw sql.NullString
		usedRaw     sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&id,
		&token,
		&workerID,
		&itemID,
		&reason,
		&statusStr,
		&reviewNote,
		&reviewedBy,
		&reviewedRaw,
		&usedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	request := &EditRequest{
		ID:         id,
		Token:      token,
		WorkerID:   workerID,
		ItemID:     itemID,
		Reason:     reason.String,
		Status:     EditRequestStatus(statusStr),
		ReviewNote: reviewNote.String,
	}
	if reviewedBy.Valid {
		v := reviewedBy.Int64
		request.ReviewedBy = &v
	}
	if reviewedRaw.Valid {
		if at, err := parseTimeString(reviewedRaw.String); err == nil {
			request.ReviewedAt = &at
		}
	}
	if usedRaw.Valid {
		if at, err := parseTimeString(usedRaw.String); err == nil {
			request.UsedAt = &at
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		request.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		request.UpdatedAt = updated
	}
	return request, nil
}
