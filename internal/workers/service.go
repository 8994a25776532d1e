package workers

import (
	"context"
	"log/slog"
	"strings"

	"petlabel/internal/logging"
	"petlabel/internal/services"
	"petlabel/internal/store"
)

const component = "workers"

// Service manages labeling accounts and reports labeling progress. Account
// mutations are admin-only; workers are deactivated rather than deleted so
// annotation history keeps its author.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

// NewService wires account management to the store.
func NewService(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:  st,
		logger: logging.NewComponentLogger(logger, component),
	}
}

// Create registers a new account with the given role and category
// assignments. Usernames are unique.
func (s *Service) Create(ctx context.Context, admin *store.Worker, username, fullName string, role store.Role, categoryIDs []int64) (*store.Worker, error) {
	if err := requireAdmin(admin, "create"); err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, services.Wrap(services.ErrValidation, component, "create", "username is required", nil)
	}

	existing, err := s.store.GetWorkerByUsername(ctx, username)
	if err != nil {
		return nil, services.Wrap(nil, component, "create", "look up username", err)
	}
	if existing != nil {
		return nil, services.Wrap(services.ErrConflict, component, "create", "username is already taken", nil)
	}

	worker, err := s.store.CreateWorker(ctx, username, fullName, role)
	if err != nil {
		return nil, services.Wrap(nil, component, "create", "create worker", err)
	}
	if len(categoryIDs) > 0 {
		if err := s.assign(ctx, worker.ID, categoryIDs); err != nil {
			return nil, err
		}
		worker.CategoryIDs = categoryIDs
	}

	s.logger.Info("worker created",
		logging.String(logging.FieldWorkerID, worker.Username),
		logging.String("role", string(worker.Role)),
	)
	return worker, nil
}

// AssignCategories replaces the worker's category assignments.
func (s *Service) AssignCategories(ctx context.Context, admin *store.Worker, workerID int64, categoryIDs []int64) error {
	if err := requireAdmin(admin, "assign"); err != nil {
		return err
	}
	worker, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		return services.Wrap(nil, component, "assign", "load worker", err)
	}
	if worker == nil {
		return services.Wrap(services.ErrNotFound, component, "assign", "worker does not exist", nil)
	}
	return s.assign(ctx, workerID, categoryIDs)
}

func (s *Service) assign(ctx context.Context, workerID int64, categoryIDs []int64) error {
	for _, categoryID := range categoryIDs {
		category, err := s.store.GetCategory(ctx, categoryID)
		if err != nil {
			return services.Wrap(nil, component, "assign", "load category", err)
		}
		if category == nil {
			return services.Wrap(services.ErrNotFound, component, "assign", "category does not exist", nil)
		}
	}
	if err := s.store.ReplaceAssignments(ctx, workerID, categoryIDs); err != nil {
		return services.Wrap(nil, component, "assign", "replace assignments", err)
	}
	return nil
}

// SetActive flips the worker's active flag. Deactivation keeps all history.
func (s *Service) SetActive(ctx context.Context, admin *store.Worker, workerID int64, active bool) error {
	if err := requireAdmin(admin, "set active"); err != nil {
		return err
	}
	worker, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		return services.Wrap(nil, component, "set active", "load worker", err)
	}
	if worker == nil {
		return services.Wrap(services.ErrNotFound, component, "set active", "worker does not exist", nil)
	}
	worker.Active = active
	if err := s.store.UpdateWorker(ctx, worker); err != nil {
		return services.Wrap(nil, component, "set active", "persist flag", err)
	}
	return nil
}

// List returns every account with its assignments.
func (s *Service) List(ctx context.Context) ([]*store.Worker, error) {
	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		return nil, services.Wrap(nil, component, "list", "load workers", err)
	}
	return workers, nil
}

// Progress summarizes one worker's output.
type Progress struct {
	Worker            *store.Worker
	Completed         int
	InProgress        int
	Skipped           int
	Reworked          int
	TimeSpentSeconds  int64
	ReworkTimeSeconds int64
}

// WorkerProgress tallies a worker's annotations by status and time.
func (s *Service) WorkerProgress(ctx context.Context, workerID int64) (*Progress, error) {
	worker, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		return nil, services.Wrap(nil, component, "progress", "load worker", err)
	}
	if worker == nil {
		return nil, services.Wrap(services.ErrNotFound, component, "progress", "worker does not exist", nil)
	}

	annotations, err := s.store.AnnotationsByWorker(ctx, workerID)
	if err != nil {
		return nil, services.Wrap(nil, component, "progress", "load annotations", err)
	}

	progress := &Progress{Worker: worker}
	for _, annotation := range annotations {
		switch annotation.Status {
		case store.StatusCompleted:
			progress.Completed++
		case store.StatusInProgress:
			progress.InProgress++
		case store.StatusSkipped:
			progress.Skipped++
		}
		if annotation.IsRework {
			progress.Reworked++
		}
		progress.TimeSpentSeconds += annotation.TimeSpentSeconds
		progress.ReworkTimeSeconds += annotation.ReworkTimeSeconds
	}
	return progress, nil
}

// CategoryProgress summarizes one assigned category for a worker. Pending
// counts pool items the worker has not touched in the category.
type CategoryProgress struct {
	Category   *store.Category
	Completed  int
	InProgress int
	Skipped    int
	Pending    int
}

// CategoryProgress breaks a worker's progress down by assigned category, in
// display order.
func (s *Service) CategoryProgress(ctx context.Context, workerID int64) ([]*CategoryProgress, error) {
	worker, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		return nil, services.Wrap(nil, component, "category progress", "load worker", err)
	}
	if worker == nil {
		return nil, services.Wrap(services.ErrNotFound, component, "category progress", "worker does not exist", nil)
	}

	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, services.Wrap(nil, component, "category progress", "load items", err)
	}
	pool := 0
	for _, item := range items {
		if !item.Improper {
			pool++
		}
	}

	annotations, err := s.store.AnnotationsByWorker(ctx, workerID)
	if err != nil {
		return nil, services.Wrap(nil, component, "category progress", "load annotations", err)
	}
	byCategory := make(map[int64][]*store.Annotation)
	for _, annotation := range annotations {
		byCategory[annotation.CategoryID] = append(byCategory[annotation.CategoryID], annotation)
	}

	result := make([]*CategoryProgress, 0, len(worker.CategoryIDs))
	for _, categoryID := range worker.CategoryIDs {
		category, err := s.store.GetCategory(ctx, categoryID)
		if err != nil {
			return nil, services.Wrap(nil, component, "category progress", "load category", err)
		}
		if category == nil {
			continue
		}
		progress := &CategoryProgress{Category: category}
		for _, annotation := range byCategory[categoryID] {
			switch annotation.Status {
			case store.StatusCompleted:
				progress.Completed++
			case store.StatusInProgress:
				progress.InProgress++
			case store.StatusSkipped:
				progress.Skipped++
			}
		}
		progress.Pending = pool - progress.Completed - progress.InProgress - progress.Skipped
		if progress.Pending < 0 {
			progress.Pending = 0
		}
		result = append(result, progress)
	}
	return result, nil
}

// ItemCompletion is the per-item completion view: the best status any worker
// reached in each category, and whether every category is completed.
type ItemCompletion struct {
	Item     *store.Item
	Statuses map[int64]store.AnnotationStatus
	Complete bool
}

// ItemCompletionView reports, per pool item, the best annotation status per
// category across all workers. Completed beats in_progress beats skipped.
func (s *Service) ItemCompletionView(ctx context.Context) ([]*ItemCompletion, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, services.Wrap(nil, component, "completion view", "load items", err)
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, services.Wrap(nil, component, "completion view", "load catalog", err)
	}
	annotations, err := s.store.ListAnnotations(ctx)
	if err != nil {
		return nil, services.Wrap(nil, component, "completion view", "load annotations", err)
	}

	best := make(map[int64]map[int64]store.AnnotationStatus)
	for _, annotation := range annotations {
		if best[annotation.ItemID] == nil {
			best[annotation.ItemID] = make(map[int64]store.AnnotationStatus)
		}
		current := best[annotation.ItemID][annotation.CategoryID]
		if statusRank(annotation.Status) > statusRank(current) {
			best[annotation.ItemID][annotation.CategoryID] = annotation.Status
		}
	}

	result := make([]*ItemCompletion, 0, len(items))
	for _, item := range items {
		completion := &ItemCompletion{
			Item:     item,
			Statuses: best[item.ID],
			Complete: len(categories) > 0,
		}
		if completion.Statuses == nil {
			completion.Statuses = map[int64]store.AnnotationStatus{}
		}
		for _, category := range categories {
			if completion.Statuses[category.ID] != store.StatusCompleted {
				completion.Complete = false
				break
			}
		}
		result = append(result, completion)
	}
	return result, nil
}

func statusRank(status store.AnnotationStatus) int {
	switch status {
	case store.StatusCompleted:
		return 3
	case store.StatusInProgress:
		return 2
	case store.StatusSkipped:
		return 1
	}
	return 0
}

// Rollup summarizes pool-wide completion.
type Rollup struct {
	TotalItems       int
	FullyLabeled     int
	PartiallyLabeled int
	Untouched        int
	Improper         int
}

// CompletionRollup walks the pool and reports, per item, whether every
// category carries a completed annotation from someone.
func (s *Service) CompletionRollup(ctx context.Context) (*Rollup, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, services.Wrap(nil, component, "rollup", "load items", err)
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, services.Wrap(nil, component, "rollup", "load catalog", err)
	}
	annotations, err := s.store.ListAnnotations(ctx)
	if err != nil {
		return nil, services.Wrap(nil, component, "rollup", "load annotations", err)
	}

	completed := make(map[int64]map[int64]struct{})
	touched := make(map[int64]struct{})
	for _, annotation := range annotations {
		touched[annotation.ItemID] = struct{}{}
		if annotation.Status != store.StatusCompleted {
			continue
		}
		if completed[annotation.ItemID] == nil {
			completed[annotation.ItemID] = make(map[int64]struct{})
		}
		completed[annotation.ItemID][annotation.CategoryID] = struct{}{}
	}

	rollup := &Rollup{TotalItems: len(items)}
	for _, item := range items {
		if item.Improper {
			rollup.Improper++
			continue
		}
		done := completed[item.ID]
		if len(categories) > 0 && len(done) == len(categories) {
			rollup.FullyLabeled++
			continue
		}
		if _, ok := touched[item.ID]; ok {
			rollup.PartiallyLabeled++
			continue
		}
		rollup.Untouched++
	}
	return rollup, nil
}

func requireAdmin(admin *store.Worker, operation string) error {
	if admin == nil || admin.Role != store.RoleAdmin {
		return services.Wrap(services.ErrForbidden, component, operation, "admin role required", nil)
	}
	return nil
}
