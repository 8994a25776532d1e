package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AddNotification writes an event addressed to a worker.
func (s *Store) AddNotification(ctx context.Context, workerID int64, kind, message string, itemID *int64) error {
	return addNotification(ctx, s.db, workerID, kind, message, itemID)
}

// AddNotification writes the event inside the transaction, so a review
// decision and its notification commit together.
func (t *Tx) AddNotification(ctx context.Context, workerID int64, kind, message string, itemID *int64) error {
	return addNotification(ctx, t.tx, workerID, kind, message, itemID)
}

func addNotification(ctx context.Context, q dbtx, workerID int64, kind, message string, itemID *int64) error {
	_, err := q.ExecContext(
		ctx,
		`INSERT INTO notifications (worker_id, type, message, item_id, is_read, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		workerID,
		kind,
		message,
		nullableInt64(itemID),
		nowTimestamp(),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns a worker's notifications, newest first. Set
// unreadOnly to drop already-read entries.
func (s *Store) ListNotifications(ctx context.Context, workerID int64, unreadOnly bool) ([]*Notification, error) {
	query := `SELECT id, worker_id, type, message, item_id, is_read, created_at FROM notifications WHERE worker_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, workerID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var (
			notification Notification
			itemID       sql.NullInt64
			isRead       int
			createdRaw   string
		)
		if err := rows.Scan(
			&notification.ID,
			&notification.WorkerID,
			&notification.Type,
			&notification.Message,
			&itemID,
			&isRead,
			&createdRaw,
		); err != nil {
			return nil, err
		}
		notification.Read = isRead != 0
		if itemID.Valid {
			v := itemID.Int64
			notification.ItemID = &v
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			notification.CreatedAt = created
		}
		notifications = append(notifications, &notification)
	}
	return notifications, rows.Err()
}

// MarkNotificationsRead flags a worker's notifications as read. With no ids
// every unread entry is marked.
func (s *Store) MarkNotificationsRead(ctx context.Context, workerID int64, ids []int64) error {
	query := `UPDATE notifications SET is_read = 1 WHERE worker_id = ?`
	args := []any{workerID}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		args = append(args, int64Args(ids)...)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}
