package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ReviewAnnotation is a completed annotation joined with the display fields
// the review table needs.
type ReviewAnnotation struct {
	Annotation
	ItemFilename   string
	ItemURL        string
	WorkerUsername string
	CategoryName   string
}

// ReviewFilter narrows the review listing. Nil pointer fields match
// everything; ReviewStatuses empty matches every review state.
type ReviewFilter struct {
	WorkerID       *int64
	CategoryID     *int64
	ReviewStatuses []ReviewStatus
}

func (f ReviewFilter) clauses() (string, []any) {
	conditions := []string{"a.status = ?"}
	args := []any{StatusCompleted}
	if f.WorkerID != nil {
		conditions = append(conditions, "a.worker_id = ?")
		args = append(args, *f.WorkerID)
	}
	if f.CategoryID != nil {
		conditions = append(conditions, "a.category_id = ?")
		args = append(args, *f.CategoryID)
	}
	if len(f.ReviewStatuses) > 0 {
		var parts []string
		for _, status := range f.ReviewStatuses {
			if status == ReviewNone {
				parts = append(parts, "a.review_status IS NULL")
				continue
			}
			parts = append(parts, "a.review_status = ?")
			args = append(args, status)
		}
		conditions = append(conditions, "("+strings.Join(parts, " OR ")+")")
	}
	return strings.Join(conditions, " AND "), args
}

const reviewJoin = `
    FROM annotations a
    JOIN items i ON i.id = a.item_id
    JOIN workers w ON w.id = a.worker_id
    JOIN categories c ON c.id = a.category_id`

// ListCompleted returns completed annotations matching the filter, joined
// with item, worker, and category display fields.
func (s *Store) ListCompleted(ctx context.Context, filter ReviewFilter) ([]*ReviewAnnotation, error) {
	where, args := filter.clauses()
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+prefixedAnnotationColumns+`, i.filename, i.url, w.username, c.name`+
			reviewJoin+` WHERE `+where+` ORDER BY a.item_id, c.display_order, c.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	defer rows.Close()

	var results []*ReviewAnnotation
	for rows.Next() {
		entry, err := scanReviewAnnotation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	annotations := make([]*Annotation, len(results))
	for i, entry := range results {
		annotations[i] = &entry.Annotation
	}
	return results, loadSelections(ctx, s.db, annotations)
}

// PageCompletedItemIDs returns one page of distinct item ids that carry
// completed annotations matching the filter, plus the total item count. The
// review table paginates by item so an item's rows never split across pages.
func (s *Store) PageCompletedItemIDs(ctx context.Context, filter ReviewFilter, limit, offset int) ([]int64, int, error) {
	where, args := filter.clauses()

	var total int
	if err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(DISTINCT a.item_id)`+reviewJoin+` WHERE `+where,
		args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count completed items: %w", err)
	}

	pageArgs := append(append([]any{}, args...), limit, offset)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT DISTINCT a.item_id`+reviewJoin+` WHERE `+where+` ORDER BY a.item_id LIMIT ? OFFSET ?`,
		pageArgs...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("page completed items: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, 0, err
		}
		ids = append(ids, id)
	}
	return ids, total, rows.Err()
}

// CompletedForItems returns the completed annotations for the given items,
// grouped by item id, matching the filter.
func (s *Store) CompletedForItems(ctx context.Context, filter ReviewFilter, itemIDs []int64) (map[int64][]*ReviewAnnotation, error) {
	if len(itemIDs) == 0 {
		return map[int64][]*ReviewAnnotation{}, nil
	}
	where, args := filter.clauses()
	where += ` AND a.item_id IN (` + makePlaceholders(len(itemIDs)) + `)`
	args = append(args, int64Args(itemIDs)...)

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+prefixedAnnotationColumns+`, i.filename, i.url, w.username, c.name`+
			reviewJoin+` WHERE `+where+` ORDER BY a.item_id, c.display_order, c.id, w.username`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("completed for items: %w", err)
	}
	defer rows.Close()

	grouped := make(map[int64][]*ReviewAnnotation)
	var annotations []*Annotation
	for rows.Next() {
		entry, err := scanReviewAnnotation(rows)
		if err != nil {
			return nil, err
		}
		grouped[entry.ItemID] = append(grouped[entry.ItemID], entry)
		annotations = append(annotations, &entry.Annotation)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grouped, loadSelections(ctx, s.db, annotations)
}

// ReviewStats summarizes review progress over completed annotations.
type ReviewStats struct {
	Completed       int
	Unreviewed      int
	Approved        int
	ReworkRequested int
	ReworkCompleted int
}

// ReviewCounts tallies completed annotations by review state.
func (s *Store) ReviewCounts(ctx context.Context) (ReviewStats, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT COALESCE(review_status, ''), COUNT(1) FROM annotations WHERE status = ? GROUP BY review_status`,
		StatusCompleted,
	)
	if err != nil {
		return ReviewStats{}, fmt.Errorf("review counts: %w", err)
	}
	defer rows.Close()

	var stats ReviewStats
	for rows.Next() {
		var (
			statusStr string
			count     int
		)
		if err := rows.Scan(&statusStr, &count); err != nil {
			return ReviewStats{}, err
		}
		stats.Completed += count
		switch ReviewStatus(statusStr) {
		case ReviewNone:
			stats.Unreviewed += count
		case ReviewApproved:
			stats.Approved += count
		case ReviewReworkRequested:
			stats.ReworkRequested += count
		case ReviewReworkCompleted:
			stats.ReworkCompleted += count
		}
	}
	return stats, rows.Err()
}

func scanReviewAnnotation(scanner interface{ Scan(dest ...any) error }) (*ReviewAnnotation, error) {
	// Mirrors scanAnnotation plus the joined display columns.
	entry := &ReviewAnnotation{}
	var (
		statusStr   string
		isDuplicate sql.NullInt64
		isRework    int
		reviewStr   sql.NullString
		reviewNote  sql.NullString
		reviewedBy  sql.NullInt64
		reviewedRaw sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.ItemID,
		&entry.WorkerID,
		&entry.CategoryID,
		&statusStr,
		&isDuplicate,
		&entry.TimeSpentSeconds,
		&isRework,
		&entry.ReworkTimeSeconds,
		&reviewStr,
		&reviewNote,
		&reviewedBy,
		&reviewedRaw,
		&createdRaw,
		&updatedRaw,
		&entry.ItemFilename,
		&entry.ItemURL,
		&entry.WorkerUsername,
		&entry.CategoryName,
	); err != nil {
		return nil, err
	}

	entry.Status = AnnotationStatus(statusStr)
	entry.IsRework = isRework != 0
	entry.ReviewStatus = ReviewStatus(reviewStr.String)
	entry.ReviewNote = reviewNote.String
	if isDuplicate.Valid {
		v := isDuplicate.Int64 != 0
		entry.IsDuplicate = &v
	}
	if reviewedBy.Valid {
		v := reviewedBy.Int64
		entry.ReviewedBy = &v
	}
	if reviewedRaw.Valid {
		if at, err := parseTimeString(reviewedRaw.String); err == nil {
			entry.ReviewedAt = &at
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		entry.UpdatedAt = updated
	}
	return entry, nil
}
