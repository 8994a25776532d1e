package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetAnnotation fetches the unique annotation for (item, worker, category),
// with its selection set.
func (s *Store) GetAnnotation(ctx context.Context, itemID, workerID, categoryID int64) (*Annotation, error) {
	return getAnnotation(ctx, s.db, itemID, workerID, categoryID)
}

// GetAnnotation fetches the triple inside the transaction.
func (t *Tx) GetAnnotation(ctx context.Context, itemID, workerID, categoryID int64) (*Annotation, error) {
	return getAnnotation(ctx, t.tx, itemID, workerID, categoryID)
}

func getAnnotation(ctx context.Context, q dbtx, itemID, workerID, categoryID int64) (*Annotation, error) {
	row := q.QueryRowContext(
		ctx,
		`SELECT `+annotationColumns+` FROM annotations WHERE item_id = ? AND worker_id = ? AND category_id = ?`,
		itemID,
		workerID,
		categoryID,
	)
	annotation, err := scanAnnotation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get annotation: %w", err)
	}
	annotation.SelectedOptionIDs, err = selectionsFor(ctx, q, annotation.ID)
	if err != nil {
		return nil, err
	}
	return annotation, nil
}

// GetAnnotationByID fetches an annotation by row identifier.
func (s *Store) GetAnnotationByID(ctx context.Context, id int64) (*Annotation, error) {
	return getAnnotationByID(ctx, s.db, id)
}

// GetAnnotationByID fetches an annotation by row identifier inside the transaction.
func (t *Tx) GetAnnotationByID(ctx context.Context, id int64) (*Annotation, error) {
	return getAnnotationByID(ctx, t.tx, id)
}

func getAnnotationByID(ctx context.Context, q dbtx, id int64) (*Annotation, error) {
	row := q.QueryRowContext(ctx, `SELECT `+annotationColumns+` FROM annotations WHERE id = ?`, id)
	annotation, err := scanAnnotation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get annotation by id: %w", err)
	}
	annotation.SelectedOptionIDs, err = selectionsFor(ctx, q, annotation.ID)
	if err != nil {
		return nil, err
	}
	return annotation, nil
}

// AnnotationsForItemWorker returns the worker's annotations on an item,
// ordered by the category display order.
func (s *Store) AnnotationsForItemWorker(ctx context.Context, itemID, workerID int64) ([]*Annotation, error) {
	return annotationsForItemWorker(ctx, s.db, itemID, workerID)
}

// AnnotationsForItemWorker returns the worker's annotations on an item inside
// the transaction.
func (t *Tx) AnnotationsForItemWorker(ctx context.Context, itemID, workerID int64) ([]*Annotation, error) {
	return annotationsForItemWorker(ctx, t.tx, itemID, workerID)
}

func annotationsForItemWorker(ctx context.Context, q dbtx, itemID, workerID int64) ([]*Annotation, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT `+prefixedAnnotationColumns+`
         FROM annotations a
         JOIN categories c ON c.id = a.category_id
         WHERE a.item_id = ? AND a.worker_id = ?
         ORDER BY c.display_order, c.id`,
		itemID,
		workerID,
	)
	if err != nil {
		return nil, fmt.Errorf("annotations for item/worker: %w", err)
	}
	defer rows.Close()

	annotations, err := collectAnnotations(rows)
	if err != nil {
		return nil, err
	}
	return annotations, loadSelections(ctx, q, annotations)
}

// AnnotationsForItem returns every worker's annotations on an item.
func (s *Store) AnnotationsForItem(ctx context.Context, itemID int64) ([]*Annotation, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+annotationColumns+` FROM annotations WHERE item_id = ? ORDER BY category_id, worker_id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("annotations for item: %w", err)
	}
	defer rows.Close()

	annotations, err := collectAnnotations(rows)
	if err != nil {
		return nil, err
	}
	return annotations, loadSelections(ctx, s.db, annotations)
}

// ListAnnotations returns every annotation row. Used by the completion rollup.
func (s *Store) ListAnnotations(ctx context.Context) ([]*Annotation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+annotationColumns+` FROM annotations ORDER BY item_id, category_id, worker_id`)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	annotations, err := collectAnnotations(rows)
	if err != nil {
		return nil, err
	}
	return annotations, loadSelections(ctx, s.db, annotations)
}

// AnnotationsByWorker returns every annotation the worker holds, across all
// items, with selections loaded.
func (s *Store) AnnotationsByWorker(ctx context.Context, workerID int64) ([]*Annotation, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+annotationColumns+` FROM annotations WHERE worker_id = ? ORDER BY item_id, category_id`,
		workerID,
	)
	if err != nil {
		return nil, fmt.Errorf("annotations by worker: %w", err)
	}
	defer rows.Close()

	annotations, err := collectAnnotations(rows)
	if err != nil {
		return nil, err
	}
	return annotations, loadSelections(ctx, s.db, annotations)
}

// CompletedPairsByOthers returns, per item, the category ids completed by
// workers other than the given one.
func (s *Store) CompletedPairsByOthers(ctx context.Context, workerID int64) (map[int64]map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT DISTINCT item_id, category_id FROM annotations WHERE worker_id != ? AND status = ?`,
		workerID,
		StatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("completed pairs by others: %w", err)
	}
	defer rows.Close()

	pairs := make(map[int64]map[int64]struct{})
	for rows.Next() {
		var itemID, categoryID int64
		if err := rows.Scan(&itemID, &categoryID); err != nil {
			return nil, err
		}
		if pairs[itemID] == nil {
			pairs[itemID] = make(map[int64]struct{})
		}
		pairs[itemID][categoryID] = struct{}{}
	}
	return pairs, rows.Err()
}

// ItemIDsAnnotatedBy returns the ids of items the worker has touched in any
// category.
func (s *Store) ItemIDsAnnotatedBy(ctx context.Context, workerID int64) (map[int64]struct{}, error) {
	return itemIDSet(ctx, s.db, `SELECT DISTINCT item_id FROM annotations WHERE worker_id = ?`, workerID)
}

// ItemIDsAnnotatedByOthers returns the ids of items touched by any worker
// other than the given one. These items are invisible to the worker under the
// item-claim policy.
func (s *Store) ItemIDsAnnotatedByOthers(ctx context.Context, workerID int64) (map[int64]struct{}, error) {
	return itemIDSet(ctx, s.db, `SELECT DISTINCT item_id FROM annotations WHERE worker_id != ?`, workerID)
}

// ItemIDsAnnotatedByForCategory returns items the worker has touched in one
// category (the legacy queue's back-navigation half).
func (s *Store) ItemIDsAnnotatedByForCategory(ctx context.Context, workerID, categoryID int64) (map[int64]struct{}, error) {
	return itemIDSet(ctx, s.db, `SELECT DISTINCT item_id FROM annotations WHERE worker_id = ? AND category_id = ?`, workerID, categoryID)
}

// ItemIDsCompletedForCategory returns items completed by anyone for a
// category (the legacy queue's exclusion half).
func (s *Store) ItemIDsCompletedForCategory(ctx context.Context, categoryID int64) (map[int64]struct{}, error) {
	return itemIDSet(ctx, s.db, `SELECT DISTINCT item_id FROM annotations WHERE category_id = ? AND status = ?`, categoryID, StatusCompleted)
}

// ItemIDsCompletedByForCategory returns items the worker personally completed
// for a category.
func (s *Store) ItemIDsCompletedByForCategory(ctx context.Context, workerID, categoryID int64) (map[int64]struct{}, error) {
	return itemIDSet(ctx, s.db, `SELECT DISTINCT item_id FROM annotations WHERE worker_id = ? AND category_id = ? AND status = ?`, workerID, categoryID, StatusCompleted)
}

func itemIDSet(ctx context.Context, q dbtx, query string, args ...any) (map[int64]struct{}, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("item id set: %w", err)
	}
	defer rows.Close()

	set := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = struct{}{}
	}
	return set, rows.Err()
}

// ItemTouchedByOthers reports, inside the transaction, whether any other
// worker holds annotations on the item. This is the claim re-check that makes
// first-touch exclusivity sound under concurrent saves.
func (t *Tx) ItemTouchedByOthers(ctx context.Context, itemID, workerID int64) (bool, error) {
	var count int
	err := t.tx.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM annotations WHERE item_id = ? AND worker_id != ?`,
		itemID,
		workerID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("item touched by others: %w", err)
	}
	return count > 0, nil
}

// CompletedCategoryIDsByOthers returns the category ids already completed on
// the item by workers other than the given one.
func (s *Store) CompletedCategoryIDsByOthers(ctx context.Context, itemID, workerID int64) (map[int64]struct{}, error) {
	return completedCategoryIDsByOthers(ctx, s.db, itemID, workerID)
}

// CompletedCategoryIDsByOthers returns the set inside the transaction, so
// commit-time validation sees the snapshot it commits against.
func (t *Tx) CompletedCategoryIDsByOthers(ctx context.Context, itemID, workerID int64) (map[int64]struct{}, error) {
	return completedCategoryIDsByOthers(ctx, t.tx, itemID, workerID)
}

func completedCategoryIDsByOthers(ctx context.Context, q dbtx, itemID, workerID int64) (map[int64]struct{}, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT DISTINCT category_id FROM annotations WHERE item_id = ? AND worker_id != ? AND status = ?`,
		itemID,
		workerID,
		StatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("completed by others: %w", err)
	}
	defer rows.Close()

	set := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = struct{}{}
	}
	return set, rows.Err()
}

// CompletedCount returns how many categories the worker has completed on the
// item. Any completed annotation locks the item for that worker.
func (s *Store) CompletedCount(ctx context.Context, workerID, itemID int64) (int, error) {
	return completedCount(ctx, s.db, workerID, itemID)
}

// CompletedCount returns the count inside the transaction, so lock checks
// observe the same snapshot the save commits against.
func (t *Tx) CompletedCount(ctx context.Context, workerID, itemID int64) (int, error) {
	return completedCount(ctx, t.tx, workerID, itemID)
}

func completedCount(ctx context.Context, q dbtx, workerID, itemID int64) (int, error) {
	var count int
	err := q.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM annotations WHERE worker_id = ? AND item_id = ? AND status = ?`,
		workerID,
		itemID,
		StatusCompleted,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("completed count: %w", err)
	}
	return count, nil
}

// InsertAnnotation creates the row for a new (item, worker, category) triple.
// The unique index upholds one annotation per triple; a constraint violation
// here means another request created the row first.
func (t *Tx) InsertAnnotation(ctx context.Context, a *Annotation) (int64, error) {
	timestamp := nowTimestamp()
	res, err := t.tx.ExecContext(
		ctx,
		`INSERT INTO annotations (
            item_id, worker_id, category_id, status, is_duplicate,
            time_spent_seconds, is_rework, rework_time_seconds,
            review_status, review_note, reviewed_by, reviewed_at,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ItemID,
		a.WorkerID,
		a.CategoryID,
		a.Status,
		nullableBool(a.IsDuplicate),
		a.TimeSpentSeconds,
		boolToInt(a.IsRework),
		a.ReworkTimeSeconds,
		nullableString(string(a.ReviewStatus)),
		nullableString(a.ReviewNote),
		nullableInt64(a.ReviewedBy),
		nullableTime(a.ReviewedAt),
		timestamp,
		timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("insert annotation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// UpdateAnnotation persists the mutable fields of an existing annotation.
func (t *Tx) UpdateAnnotation(ctx context.Context, a *Annotation) error {
	if a == nil {
		return errors.New("annotation is nil")
	}
	_, err := t.tx.ExecContext(
		ctx,
		`UPDATE annotations
         SET status = ?, is_duplicate = ?, time_spent_seconds = ?, is_rework = ?,
             rework_time_seconds = ?, review_status = ?, review_note = ?,
             reviewed_by = ?, reviewed_at = ?, updated_at = ?
         WHERE id = ?`,
		a.Status,
		nullableBool(a.IsDuplicate),
		a.TimeSpentSeconds,
		boolToInt(a.IsRework),
		a.ReworkTimeSeconds,
		nullableString(string(a.ReviewStatus)),
		nullableString(a.ReviewNote),
		nullableInt64(a.ReviewedBy),
		nullableTime(a.ReviewedAt),
		nowTimestamp(),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("update annotation: %w", err)
	}
	return nil
}

// ReplaceSelections swaps the annotation's selection set atomically within
// the transaction: old rows deleted, new rows inserted.
func (t *Tx) ReplaceSelections(ctx context.Context, annotationID int64, optionIDs []int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM annotation_selections WHERE annotation_id = ?`, annotationID); err != nil {
		return fmt.Errorf("clear selections: %w", err)
	}
	for _, optionID := range optionIDs {
		if _, err := t.tx.ExecContext(
			ctx,
			`INSERT INTO annotation_selections (annotation_id, option_id) VALUES (?, ?)`,
			annotationID,
			optionID,
		); err != nil {
			return fmt.Errorf("insert selection: %w", err)
		}
	}
	return nil
}

// RecordTimeSpent stores the heartbeat's raw running total on an annotation
// without touching its status. The total only ever grows, so a replayed
// heartbeat is a no-op rather than an inflation.
func (t *Tx) RecordTimeSpent(ctx context.Context, annotationID, seconds int64) error {
	_, err := t.tx.ExecContext(
		ctx,
		`UPDATE annotations SET time_spent_seconds = MAX(time_spent_seconds, ?), updated_at = ? WHERE id = ?`,
		seconds,
		nowTimestamp(),
		annotationID,
	)
	if err != nil {
		return fmt.Errorf("record time spent: %w", err)
	}
	return nil
}

const annotationColumns = "id, item_id, worker_id, category_id, status, is_duplicate, time_spent_seconds, is_rework, rework_time_seconds, review_status, review_note, reviewed_by, reviewed_at, created_at, updated_at"

const prefixedAnnotationColumns = "a.id, a.item_id, a.worker_id, a.category_id, a.status, a.is_duplicate, a.time_spent_seconds, a.is_rework, a.rework_time_seconds, a.review_status, a.review_note, a.reviewed_by, a.reviewed_at, a.created_at, a.updated_at"

func scanAnnotation(scanner interface{ Scan(dest ...any) error }) (*Annotation, error) {
	var (
		id          int64
		itemID      int64
		workerID    int64
		categoryID  int64
		statusStr   string
		isDuplicate sql.NullInt64
		timeSpent   int64
		isRework    int
		reworkTime  int64
		reviewStr   sql.NullString
		reviewNote  sql.NullString
		reviewedBy  sql.NullInt64
		reviewedRaw sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&id,
		&itemID,
		&workerID,
		&categoryID,
		&statusStr,
		&isDuplicate,
		&timeSpent,
		&isRework,
		&reworkTime,
		&reviewStr,
		&reviewNote,
		&reviewedBy,
		&reviewedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	annotation := &Annotation{
		ID:                id,
		ItemID:            itemID,
		WorkerID:          workerID,
		CategoryID:        categoryID,
		Status:            AnnotationStatus(statusStr),
		TimeSpentSeconds:  timeSpent,
		IsRework:          isRework != 0,
		ReworkTimeSeconds: reworkTime,
		ReviewStatus:      ReviewStatus(reviewStr.String),
		ReviewNote:        reviewNote.String,
	}
	if isDuplicate.Valid {
		v := isDuplicate.Int64 != 0
		annotation.IsDuplicate = &v
	}
	if reviewedBy.Valid {
		v := reviewedBy.Int64
		annotation.ReviewedBy = &v
	}
	if reviewedRaw.Valid {
		if at, err := parseTimeString(reviewedRaw.String); err == nil {
			annotation.ReviewedAt = &at
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		annotation.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		annotation.UpdatedAt = updated
	}
	return annotation, nil
}

func collectAnnotations(rows *sql.Rows) ([]*Annotation, error) {
	var annotations []*Annotation
	for rows.Next() {
		annotation, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		annotations = append(annotations, annotation)
	}
	return annotations, rows.Err()
}

func selectionsFor(ctx context.Context, q dbtx, annotationID int64) ([]int64, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT option_id FROM annotation_selections WHERE annotation_id = ? ORDER BY option_id`,
		annotationID,
	)
	if err != nil {
		return nil, fmt.Errorf("selections: %w", err)
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

func loadSelections(ctx context.Context, q dbtx, annotations []*Annotation) error {
	if len(annotations) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(annotations))
	byID := make(map[int64]*Annotation, len(annotations))
	for _, annotation := range annotations {
		ids = append(ids, annotation.ID)
		byID[annotation.ID] = annotation
	}

	query := `SELECT annotation_id, option_id FROM annotation_selections WHERE annotation_id IN (` + makePlaceholders(len(ids)) + `) ORDER BY option_id`
	rows, err := q.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return fmt.Errorf("load selections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var annotationID, optionID int64
		if err := rows.Scan(&annotationID, &optionID); err != nil {
			return err
		}
		if annotation, ok := byID[annotationID]; ok {
			annotation.SelectedOptionIDs = append(annotation.SelectedOptionIDs, optionID)
		}
	}
	return rows.Err()
}
