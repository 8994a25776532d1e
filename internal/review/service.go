package review

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"petlabel/internal/logging"
	"petlabel/internal/notifications"
	"petlabel/internal/services"
	"petlabel/internal/store"
)

const component = "review"

// defaultEditNote is stamped when an admin edits selections without leaving
// their own note.
const defaultEditNote = "Edited by admin"

// Service drives the admin review workflow over completed annotations:
// listing, the table view, approval, reviewer edits, and rework requests.
type Service struct {
	store    *store.Store
	notifier notifications.Service
	logger   *slog.Logger
}

// NewService wires the review workflow to its store and notifier.
func NewService(st *store.Store, notifier notifications.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:    st,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, component),
	}
}

// List returns one item-level page of completed annotations matching the
// filter, flattened in item order, plus the total number of matching items.
func (s *Service) List(ctx context.Context, reviewer *store.Worker, filter store.ReviewFilter, page, pageSize int) ([]*store.ReviewAnnotation, int, error) {
	if err := requireAdmin(reviewer, "list"); err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)

	itemIDs, total, err := s.store.PageCompletedItemIDs(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, services.Wrap(nil, component, "list", "page items", err)
	}
	grouped, err := s.store.CompletedForItems(ctx, filter, itemIDs)
	if err != nil {
		return nil, 0, services.Wrap(nil, component, "list", "load annotations", err)
	}

	var results []*store.ReviewAnnotation
	for _, itemID := range itemIDs {
		results = append(results, grouped[itemID]...)
	}
	return results, total, nil
}

// TableCell is one (item, category, worker) entry in the audit table.
type TableCell struct {
	AnnotationID      int64
	WorkerUsername    string
	Status            store.AnnotationStatus
	SelectedOptionIDs []int64
	IsDuplicate       *bool
	ReviewStatus      store.ReviewStatus
	ReviewNote        string
}

// TableRow is one item with its per-category cells.
type TableRow struct {
	ItemID   int64
	Filename string
	URL      string
	Cells    map[int64][]*TableCell
}

// Table is the denormalized audit view: items as rows, categories as
// columns, paginated at the item level so an item never splits across pages.
type Table struct {
	Rows       []*TableRow
	Categories []*store.Category
	Total      int
	Page       int
	PageSize   int
}

// Table builds the audit table for one page of items matching the filter.
func (s *Service) Table(ctx context.Context, reviewer *store.Worker, filter store.ReviewFilter, page, pageSize int) (*Table, error) {
	if err := requireAdmin(reviewer, "table"); err != nil {
		return nil, err
	}
	page, pageSize = normalizePage(page, pageSize)

	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, services.Wrap(nil, component, "table", "load catalog", err)
	}
	itemIDs, total, err := s.store.PageCompletedItemIDs(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, services.Wrap(nil, component, "table", "page items", err)
	}
	grouped, err := s.store.CompletedForItems(ctx, filter, itemIDs)
	if err != nil {
		return nil, services.Wrap(nil, component, "table", "load annotations", err)
	}

	table := &Table{
		Categories: categories,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
	}
	for _, itemID := range itemIDs {
		annotations := grouped[itemID]
		if len(annotations) == 0 {
			continue
		}
		row := &TableRow{
			ItemID:   itemID,
			Filename: annotations[0].ItemFilename,
			URL:      annotations[0].ItemURL,
			Cells:    make(map[int64][]*TableCell),
		}
		for _, annotation := range annotations {
			row.Cells[annotation.CategoryID] = append(row.Cells[annotation.CategoryID], &TableCell{
				AnnotationID:      annotation.ID,
				WorkerUsername:    annotation.WorkerUsername,
				Status:            annotation.Status,
				SelectedOptionIDs: annotation.SelectedOptionIDs,
				IsDuplicate:       annotation.IsDuplicate,
				ReviewStatus:      annotation.ReviewStatus,
				ReviewNote:        annotation.ReviewNote,
			})
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// Approve accepts a completed annotation as-is, stamping reviewer and time.
func (s *Service) Approve(ctx context.Context, reviewer *store.Worker, annotationID int64, note string) (*store.Annotation, error) {
	return s.decide(ctx, reviewer, annotationID, strings.TrimSpace(note), nil, nil, false)
}

// EditAndApprove replaces the annotation's selection set and/or duplicate
// flag, then approves it. A default note is stamped when none is given.
func (s *Service) EditAndApprove(ctx context.Context, reviewer *store.Worker, annotationID int64, selections []int64, duplicate *bool, note string) (*store.Annotation, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		note = defaultEditNote
	}
	return s.decide(ctx, reviewer, annotationID, note, selections, duplicate, false)
}

// RequestRework pushes a completed annotation back to its worker. The item
// stays locked; the worker resubmits through the edit-request protocol and
// the resubmission advances the annotation to rework_completed.
func (s *Service) RequestRework(ctx context.Context, reviewer *store.Worker, annotationID int64, note string) (*store.Annotation, error) {
	return s.decide(ctx, reviewer, annotationID, strings.TrimSpace(note), nil, nil, true)
}

// Stats summarizes review progress over completed annotations.
func (s *Service) Stats(ctx context.Context, reviewer *store.Worker) (store.ReviewStats, error) {
	if err := requireAdmin(reviewer, "stats"); err != nil {
		return store.ReviewStats{}, err
	}
	stats, err := s.store.ReviewCounts(ctx)
	if err != nil {
		return store.ReviewStats{}, services.Wrap(nil, component, "stats", "count reviews", err)
	}
	return stats, nil
}

func (s *Service) decide(
	ctx context.Context,
	reviewer *store.Worker,
	annotationID int64,
	note string,
	selections []int64,
	duplicate *bool,
	rework bool,
) (*store.Annotation, error) {
	operation := "approve"
	target := store.ReviewApproved
	if rework {
		operation = "request rework"
		target = store.ReviewReworkRequested
	}

	if err := requireAdmin(reviewer, operation); err != nil {
		return nil, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, services.Wrap(nil, component, operation, "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	annotation, err := tx.GetAnnotationByID(ctx, annotationID)
	if err != nil {
		return nil, services.Wrap(nil, component, operation, "load annotation", err)
	}
	if annotation == nil {
		return nil, services.Wrap(services.ErrNotFound, component, operation, "annotation does not exist", nil)
	}
	if annotation.Status != store.StatusCompleted {
		return nil, services.Wrap(services.ErrValidation, component, operation, "only completed annotations are reviewable", nil)
	}
	if !store.ReviewTransitionAllowed(annotation.ReviewStatus, target) {
		return nil, services.Wrap(services.ErrConflict, component, operation, "review state does not permit this decision", nil)
	}

	if selections != nil {
		if err := tx.ReplaceSelections(ctx, annotation.ID, selections); err != nil {
			return nil, services.Wrap(nil, component, operation, "replace selections", err)
		}
		annotation.SelectedOptionIDs = selections
	}
	if duplicate != nil {
		annotation.IsDuplicate = duplicate
	}

	now := nowPtr()
	annotation.ReviewStatus = target
	annotation.ReviewNote = note
	annotation.ReviewedBy = &reviewer.ID
	annotation.ReviewedAt = now
	if err := tx.UpdateAnnotation(ctx, annotation); err != nil {
		return nil, services.Wrap(nil, component, operation, "persist decision", err)
	}

	kind := store.NotifyReviewApproved
	message := "Your annotations were approved"
	if rework {
		kind = store.NotifyReworkRequested
		message = "Rework requested on your annotations"
		if note != "" {
			message += ": " + note
		}
	}
	if err := tx.AddNotification(ctx, annotation.WorkerID, kind, message, &annotation.ItemID); err != nil {
		return nil, services.Wrap(nil, component, operation, "write notification", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, services.Wrap(nil, component, operation, "commit decision", err)
	}

	s.logger.Info("review decision",
		logging.Int64(logging.FieldAnnotationID, annotation.ID),
		logging.Int64(logging.FieldItemID, annotation.ItemID),
		logging.String("decision", string(target)),
	)
	s.push(ctx, annotation, rework)

	return s.store.GetAnnotationByID(ctx, annotationID)
}

func (s *Service) push(ctx context.Context, annotation *store.Annotation, rework bool) {
	if s.notifier == nil {
		return
	}
	username := ""
	if worker, err := s.store.GetWorker(ctx, annotation.WorkerID); err == nil && worker != nil {
		username = worker.Username
	}

	var err error
	if rework {
		categoryName := ""
		if category, catErr := s.store.GetCategory(ctx, annotation.CategoryID); catErr == nil && category != nil {
			categoryName = category.Name
		}
		err = s.notifier.NotifyReworkRequested(ctx, username, annotation.ItemID, categoryName)
	} else {
		err = s.notifier.NotifyReviewApproved(ctx, username, annotation.ItemID)
	}
	if err != nil {
		s.logger.Warn("review push failed", logging.Error(err))
	}
}

func nowPtr() *time.Time {
	now := time.Now().UTC()
	return &now
}

func requireAdmin(reviewer *store.Worker, operation string) error {
	if reviewer == nil || reviewer.Role != store.RoleAdmin {
		return services.Wrap(services.ErrForbidden, component, operation, "admin role required", nil)
	}
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return page, pageSize
}
