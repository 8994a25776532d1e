package annotating

import (
	"context"
	"log/slog"
	"strings"

	"petlabel/internal/config"
	"petlabel/internal/editlock"
	"petlabel/internal/logging"
	"petlabel/internal/services"
	"petlabel/internal/store"
)

const component = "annotating"

// CategorySave carries one category's payload within an item save.
type CategorySave struct {
	SelectedOptionIDs []int64
	IsDuplicate       *bool
}

// SaveInput is a full-item save: one entry per category the worker is
// submitting, plus the elapsed time for the sitting.
type SaveInput struct {
	Categories     map[int64]CategorySave
	ElapsedSeconds int64
	IsRework       bool
}

// Service owns the annotation lifecycle: saves, skips, heartbeats, and
// improper marks. Every mutation runs in one transaction so partial commits
// never surface.
type Service struct {
	store  *store.Store
	locks  *editlock.Manager
	cfg    *config.Config
	logger *slog.Logger
}

// NewService wires the state machine to its collaborators.
func NewService(st *store.Store, locks *editlock.Manager, cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:  st,
		locks:  locks,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, component),
	}
}

// SaveItem validates and commits a multi-category save. On success every
// submitted category's selection set is replaced atomically and its status
// becomes completed; the ids of the saved categories are returned. A
// validation failure commits nothing.
func (s *Service) SaveItem(ctx context.Context, worker *store.Worker, itemID int64, input SaveInput) ([]int64, error) {
	if worker == nil {
		return nil, services.Wrap(services.ErrForbidden, component, "save", "worker identity required", nil)
	}
	if len(input.Categories) == 0 {
		return nil, services.Wrap(services.ErrValidation, component, "save", "no categories submitted", nil)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, services.Wrap(nil, component, "save", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, assigned, err := s.checkWritable(ctx, tx, worker, itemID)
	if err != nil {
		return nil, err
	}

	assignedSet := make(map[int64]struct{}, len(assigned))
	for _, id := range assigned {
		assignedSet[id] = struct{}{}
	}
	for categoryID := range input.Categories {
		if _, ok := assignedSet[categoryID]; !ok {
			return nil, services.Wrap(services.ErrForbidden, component, "save", "category is not assigned to this worker", nil)
		}
	}

	grant, err := s.locks.Authorize(ctx, tx, worker.ID, itemID)
	if err != nil {
		return nil, err
	}

	existing, err := tx.AnnotationsForItemWorker(ctx, itemID, worker.ID)
	if err != nil {
		return nil, services.Wrap(nil, component, "save", "load annotations", err)
	}
	existingByCategory := make(map[int64]*store.Annotation, len(existing))
	for _, annotation := range existing {
		existingByCategory[annotation.CategoryID] = annotation
	}

	if err := s.validateRequired(ctx, tx, worker.ID, itemID, assigned, input, existingByCategory); err != nil {
		return nil, err
	}

	elapsed := clampElapsed(input.ElapsedSeconds, s.ceiling(input.IsRework))

	var savedCategoryIDs []int64
	timeCredited := false
	for _, categoryID := range assigned {
		payload, submitted := input.Categories[categoryID]
		if !submitted {
			continue
		}

		annotation := existingByCategory[categoryID]
		if annotation == nil {
			annotation = &store.Annotation{
				ItemID:     itemID,
				WorkerID:   worker.ID,
				CategoryID: categoryID,
				Status:     store.StatusCompleted,
			}
			annotation.IsDuplicate = payload.IsDuplicate
			applyTime(annotation, elapsed, input.IsRework, &timeCredited)
			id, err := tx.InsertAnnotation(ctx, annotation)
			if err != nil {
				return nil, services.Wrap(nil, component, "save", "insert annotation", err)
			}
			annotation.ID = id
		} else {
			if !store.AnnotationTransitionAllowed(annotation.Status, store.StatusCompleted) {
				// completed -> completed is always listed, so this only
				// guards future table changes.
				continue
			}
			annotation.Status = store.StatusCompleted
			annotation.IsDuplicate = payload.IsDuplicate
			// Resubmitting a rework-requested annotation completes the
			// rework whether or not the caller flagged the save.
			rework := annotation.ReviewStatus == store.ReviewReworkRequested
			if rework {
				annotation.IsRework = true
				annotation.ReviewStatus = store.ReviewReworkCompleted
			}
			applyTime(annotation, elapsed, rework || input.IsRework, &timeCredited)
			if err := tx.UpdateAnnotation(ctx, annotation); err != nil {
				return nil, services.Wrap(nil, component, "save", "update annotation", err)
			}
		}

		if err := tx.ReplaceSelections(ctx, annotation.ID, payload.SelectedOptionIDs); err != nil {
			return nil, services.Wrap(nil, component, "save", "replace selections", err)
		}
		savedCategoryIDs = append(savedCategoryIDs, categoryID)
	}

	if grant != nil {
		if err := tx.ConsumeEditRequest(ctx, grant.ID); err != nil {
			return nil, services.Wrap(nil, component, "save", "consume edit request", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, services.Wrap(nil, component, "save", "commit save", err)
	}

	s.logger.Info("item saved",
		logging.String(logging.FieldWorkerID, worker.Username),
		logging.Int64(logging.FieldItemID, itemID),
		logging.Int("categories", len(savedCategoryIDs)),
		logging.Bool("rework", input.IsRework),
	)
	return savedCategoryIDs, nil
}

// SkipItem marks the worker's unfinished assigned categories on the item as
// skipped. Completed categories are left untouched: a downgrade from
// completed is never an error, it just returns the unchanged record.
func (s *Service) SkipItem(ctx context.Context, worker *store.Worker, itemID int64) ([]*store.Annotation, error) {
	if worker == nil {
		return nil, services.Wrap(services.ErrForbidden, component, "skip", "worker identity required", nil)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, services.Wrap(nil, component, "skip", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, assigned, err := s.checkWritable(ctx, tx, worker, itemID)
	if err != nil {
		return nil, err
	}

	grant, err := s.locks.Authorize(ctx, tx, worker.ID, itemID)
	if err != nil {
		return nil, err
	}

	existing, err := tx.AnnotationsForItemWorker(ctx, itemID, worker.ID)
	if err != nil {
		return nil, services.Wrap(nil, component, "skip", "load annotations", err)
	}
	existingByCategory := make(map[int64]*store.Annotation, len(existing))
	for _, annotation := range existing {
		existingByCategory[annotation.CategoryID] = annotation
	}

	var results []*store.Annotation
	changed := false
	for _, categoryID := range assigned {
		annotation := existingByCategory[categoryID]
		if annotation == nil {
			annotation = &store.Annotation{
				ItemID:     itemID,
				WorkerID:   worker.ID,
				CategoryID: categoryID,
				Status:     store.StatusSkipped,
			}
			id, err := tx.InsertAnnotation(ctx, annotation)
			if err != nil {
				return nil, services.Wrap(nil, component, "skip", "insert annotation", err)
			}
			annotation.ID = id
			changed = true
		} else if store.AnnotationTransitionAllowed(annotation.Status, store.StatusSkipped) {
			if annotation.Status != store.StatusSkipped {
				annotation.Status = store.StatusSkipped
				if err := tx.UpdateAnnotation(ctx, annotation); err != nil {
					return nil, services.Wrap(nil, component, "skip", "update annotation", err)
				}
				changed = true
			}
		}
		results = append(results, annotation)
	}

	if grant != nil && changed {
		if err := tx.ConsumeEditRequest(ctx, grant.ID); err != nil {
			return nil, services.Wrap(nil, component, "skip", "consume edit request", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, services.Wrap(nil, component, "skip", "commit skip", err)
	}
	return results, nil
}

// Heartbeat records the sitting's running total of raw seconds on the
// worker's earliest open annotation for the item without changing its
// status. Beats report a total, not a delta, so replays are idempotent. It
// is best-effort: malformed input, missing items, improper items, and items
// claimed by someone else are silently ignored. When the worker has no
// annotation on the item yet, an in_progress placeholder is created on
// their first assigned category.
func (s *Service) Heartbeat(ctx context.Context, worker *store.Worker, itemID, elapsedSeconds int64) error {
	if worker == nil || elapsedSeconds <= 0 {
		return nil
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return services.Wrap(nil, component, "heartbeat", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	item, err := tx.GetItem(ctx, itemID)
	if err != nil {
		return services.Wrap(nil, component, "heartbeat", "load item", err)
	}
	if item == nil || item.Improper {
		return nil
	}

	annotations, err := tx.AnnotationsForItemWorker(ctx, itemID, worker.ID)
	if err != nil {
		return services.Wrap(nil, component, "heartbeat", "load annotations", err)
	}

	var target *store.Annotation
	for _, annotation := range annotations {
		if annotation.Status != store.StatusCompleted {
			target = annotation
			break
		}
	}
	if target == nil && len(annotations) > 0 {
		// Everything completed; the item is locked, leave it untouched.
		return nil
	}

	if target == nil {
		if s.cfg == nil || s.cfg.Labeling.AllocationPolicy != config.PolicyCategoryQueue {
			// Same claim rule as a save: a first heartbeat must not plant an
			// annotation on an item someone else already claimed.
			touched, err := tx.ItemTouchedByOthers(ctx, itemID, worker.ID)
			if err != nil {
				return services.Wrap(nil, component, "heartbeat", "claim check", err)
			}
			if touched {
				return nil
			}
		}
		assigned, err := tx.AssignedCategoryIDs(ctx, worker.ID)
		if err != nil {
			return services.Wrap(nil, component, "heartbeat", "load assignments", err)
		}
		if len(assigned) == 0 {
			return nil
		}
		placeholder := &store.Annotation{
			ItemID:     itemID,
			WorkerID:   worker.ID,
			CategoryID: assigned[0],
			Status:     store.StatusInProgress,
		}
		id, err := tx.InsertAnnotation(ctx, placeholder)
		if err != nil {
			return services.Wrap(nil, component, "heartbeat", "insert placeholder", err)
		}
		target = placeholder
		target.ID = id
	}

	if err := tx.RecordTimeSpent(ctx, target.ID, elapsedSeconds); err != nil {
		return services.Wrap(nil, component, "heartbeat", "record time", err)
	}
	return tx.Commit()
}

// MarkImproper flags the item so it accepts no further annotation writes
// from anyone. The mark is itself a write: it honors the claim and lock
// rules, consuming an approved edit request when the item is locked.
func (s *Service) MarkImproper(ctx context.Context, worker *store.Worker, itemID int64, reason string) error {
	if worker == nil {
		return services.Wrap(services.ErrForbidden, component, "mark improper", "worker identity required", nil)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return services.Wrap(nil, component, "mark improper", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	item, err := tx.GetItem(ctx, itemID)
	if err != nil {
		return services.Wrap(nil, component, "mark improper", "load item", err)
	}
	if item == nil {
		return services.Wrap(services.ErrNotFound, component, "mark improper", "item does not exist", nil)
	}
	if item.Improper {
		// Already flagged; re-marking is an ack, not an error.
		return nil
	}

	if _, _, err := s.checkWritable(ctx, tx, worker, itemID); err != nil {
		return err
	}

	grant, err := s.locks.Authorize(ctx, tx, worker.ID, itemID)
	if err != nil {
		return err
	}

	if err := tx.MarkItemImproper(ctx, itemID, worker.ID, strings.TrimSpace(reason)); err != nil {
		return services.Wrap(nil, component, "mark improper", "persist flag", err)
	}
	if grant != nil {
		if err := tx.ConsumeEditRequest(ctx, grant.ID); err != nil {
			return services.Wrap(nil, component, "mark improper", "consume edit request", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return services.Wrap(nil, component, "mark improper", "commit flag", err)
	}

	s.logger.Info("item marked improper",
		logging.String(logging.FieldWorkerID, worker.Username),
		logging.Int64(logging.FieldItemID, itemID),
	)
	return nil
}

// checkWritable loads the item inside the transaction and enforces the
// preconditions shared by every mutating operation: the item exists, is not
// improper, and under the item-claim policy has not been claimed by another
// worker. It returns the item and the worker's assigned category ids.
func (s *Service) checkWritable(ctx context.Context, tx *store.Tx, worker *store.Worker, itemID int64) (*store.Item, []int64, error) {
	item, err := tx.GetItem(ctx, itemID)
	if err != nil {
		return nil, nil, services.Wrap(nil, component, "precondition", "load item", err)
	}
	if item == nil {
		return nil, nil, services.Wrap(services.ErrNotFound, component, "precondition", "item does not exist", nil)
	}
	if item.Improper {
		return nil, nil, services.Wrap(services.ErrValidation, component, "precondition", "item is marked improper and accepts no writes", nil)
	}

	assigned, err := tx.AssignedCategoryIDs(ctx, worker.ID)
	if err != nil {
		return nil, nil, services.Wrap(nil, component, "precondition", "load assignments", err)
	}
	if len(assigned) == 0 {
		return nil, nil, services.Wrap(services.ErrForbidden, component, "precondition", "worker has no assigned categories", nil)
	}

	if s.cfg == nil || s.cfg.Labeling.AllocationPolicy != config.PolicyCategoryQueue {
		// Claim re-check at commit time: first touch wins, so an item
		// touched by anyone else is off-limits unless this worker touched
		// it first.
		mine, err := tx.AnnotationsForItemWorker(ctx, itemID, worker.ID)
		if err != nil {
			return nil, nil, services.Wrap(nil, component, "precondition", "load own annotations", err)
		}
		if len(mine) == 0 {
			touched, err := tx.ItemTouchedByOthers(ctx, itemID, worker.ID)
			if err != nil {
				return nil, nil, services.Wrap(nil, component, "precondition", "claim check", err)
			}
			if touched {
				return nil, nil, services.Wrap(services.ErrForbidden, component, "precondition", "item is claimed by another worker", nil)
			}
		}
	}
	return item, assigned, nil
}

// validateRequired enforces commit-time completeness: every category assigned
// to the worker and not already completed by another worker must end the
// save with at least one selection, counting selections already on file for
// categories the request leaves untouched.
func (s *Service) validateRequired(
	ctx context.Context,
	tx *store.Tx,
	workerID, itemID int64,
	assigned []int64,
	input SaveInput,
	existingByCategory map[int64]*store.Annotation,
) error {
	completedByOthers, err := tx.CompletedCategoryIDsByOthers(ctx, itemID, workerID)
	if err != nil {
		return services.Wrap(nil, component, "save", "load external completions", err)
	}

	var missing []int64
	for _, categoryID := range assigned {
		if _, done := completedByOthers[categoryID]; done {
			continue
		}
		if payload, submitted := input.Categories[categoryID]; submitted {
			if len(payload.SelectedOptionIDs) == 0 {
				missing = append(missing, categoryID)
			}
			continue
		}
		if existing := existingByCategory[categoryID]; existing != nil && len(existing.SelectedOptionIDs) > 0 {
			continue
		}
		missing = append(missing, categoryID)
	}
	if len(missing) == 0 {
		return nil
	}

	names := make([]string, 0, len(missing))
	for _, categoryID := range missing {
		category, err := s.store.GetCategory(ctx, categoryID)
		if err == nil && category != nil {
			names = append(names, category.Name)
			continue
		}
		names = append(names, "unknown category")
	}
	return &services.MissingSelectionsError{Categories: names}
}

func (s *Service) ceiling(isRework bool) int64 {
	if s.cfg == nil {
		return 0
	}
	if isRework {
		return int64(s.cfg.Labeling.MaxReworkTimeSeconds)
	}
	return int64(s.cfg.Labeling.MaxAnnotationTimeSeconds)
}

func clampElapsed(elapsed, ceiling int64) int64 {
	if elapsed < 0 {
		return 0
	}
	if ceiling > 0 && elapsed > ceiling {
		return ceiling
	}
	return elapsed
}

// applyTime credits the sitting's elapsed time to exactly one annotation in
// the save: the first one processed in display order.
func applyTime(annotation *store.Annotation, elapsed int64, isRework bool, credited *bool) {
	if *credited || elapsed <= 0 {
		return
	}
	if isRework {
		annotation.ReworkTimeSeconds += elapsed
	} else {
		annotation.TimeSpentSeconds += elapsed
	}
	*credited = true
}
