package api

import (
	"context"
	"log/slog"

	"petlabel/internal/allocator"
	"petlabel/internal/editlock"
	"petlabel/internal/logging"
	"petlabel/internal/services"
	"petlabel/internal/store"
)

const component = "api"

// Service is the worker-facing query surface consumed by the CLI and any
// outer transport: the paged item listing with per-category statuses and the
// single-item annotation view with lock state and navigation.
type Service struct {
	store  *store.Store
	policy allocator.Policy
	locks  *editlock.Manager
	logger *slog.Logger
}

// NewService wires the query surface to its collaborators.
func NewService(st *store.Store, policy allocator.Policy, locks *editlock.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:  st,
		policy: policy,
		locks:  locks,
		logger: logging.NewComponentLogger(logger, component),
	}
}

// CategoryStatus is the worker's view of one category on one item.
type CategoryStatus string

const (
	CategoryPending          CategoryStatus = "pending"
	CategoryInProgress       CategoryStatus = "in_progress"
	CategoryCompleted        CategoryStatus = "completed"
	CategoryCompletedByOther CategoryStatus = "completed_by_other"
)

// ItemStatus is the derived overall status of an item for a worker.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemPartial   ItemStatus = "partial"
	ItemCompleted ItemStatus = "completed"
)

// ItemSummary is one row of the worker's item listing.
type ItemSummary struct {
	Item             *store.Item
	CategoryStatuses map[int64]CategoryStatus
	Status           ItemStatus
}

// ItemPage is one page of the worker's listing.
type ItemPage struct {
	Items    []*ItemSummary
	Total    int
	Page     int
	PageSize int
}

// ListAvailableItems pages through the worker's visible items, each
// annotated with per-assigned-category status and a derived overall status.
// An empty statusFilter returns everything.
func (s *Service) ListAvailableItems(ctx context.Context, worker *store.Worker, page, pageSize int, statusFilter ItemStatus) (*ItemPage, error) {
	if worker == nil {
		return nil, services.Wrap(services.ErrForbidden, component, "list items", "worker identity required", nil)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	summaries, err := s.summaries(ctx, worker)
	if err != nil {
		return nil, err
	}

	if statusFilter != "" {
		filtered := summaries[:0]
		for _, summary := range summaries {
			if summary.Status == statusFilter {
				filtered = append(filtered, summary)
			}
		}
		summaries = filtered
	}

	result := &ItemPage{
		Total:    len(summaries),
		Page:     page,
		PageSize: pageSize,
	}
	start := (page - 1) * pageSize
	if start < len(summaries) {
		end := start + pageSize
		if end > len(summaries) {
			end = len(summaries)
		}
		result.Items = summaries[start:end]
	}
	return result, nil
}

// CategoryDetail is one category's full state on the annotation screen.
type CategoryDetail struct {
	Category          *store.Category
	Status            CategoryStatus
	SelectedOptionIDs []int64
	IsDuplicate       *bool
	ReviewStatus      store.ReviewStatus
	ReviewNote        string
}

// ItemDetail is the single-item annotation view: catalog with the worker's
// current selections, lock and edit-request state, and prev/next navigation
// within the worker's visible set.
type ItemDetail struct {
	Item       *store.Item
	Categories []*CategoryDetail
	Lock       *editlock.Status
	PrevItemID *int64
	NextItemID *int64
}

// GetItemForAnnotation builds the annotation view for one visible item.
// Items outside the worker's available set are forbidden even when they
// exist.
func (s *Service) GetItemForAnnotation(ctx context.Context, worker *store.Worker, itemID int64) (*ItemDetail, error) {
	if worker == nil {
		return nil, services.Wrap(services.ErrForbidden, component, "get item", "worker identity required", nil)
	}

	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, services.Wrap(nil, component, "get item", "load item", err)
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, component, "get item", "item does not exist", nil)
	}

	visible, err := s.policy.AvailableItems(ctx, worker.ID)
	if err != nil {
		return nil, services.Wrap(nil, component, "get item", "compute availability", err)
	}
	index := -1
	for i, candidate := range visible {
		if candidate.ID == itemID {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, services.Wrap(services.ErrForbidden, component, "get item", "item is not in your queue", nil)
	}

	detail := &ItemDetail{Item: item}
	if index > 0 {
		id := visible[index-1].ID
		detail.PrevItemID = &id
	}
	if index < len(visible)-1 {
		id := visible[index+1].ID
		detail.NextItemID = &id
	}

	assigned, err := s.store.AssignedCategoryIDs(ctx, worker.ID)
	if err != nil {
		return nil, services.Wrap(nil, component, "get item", "load assignments", err)
	}
	own, err := s.store.AnnotationsForItemWorker(ctx, itemID, worker.ID)
	if err != nil {
		return nil, services.Wrap(nil, component, "get item", "load annotations", err)
	}
	ownByCategory := make(map[int64]*store.Annotation, len(own))
	for _, annotation := range own {
		ownByCategory[annotation.CategoryID] = annotation
	}

	externallyCompleted, err := s.store.CompletedCategoryIDsByOthers(ctx, itemID, worker.ID)
	if err != nil {
		return nil, services.Wrap(nil, component, "get item", "load external completions", err)
	}

	for _, categoryID := range assigned {
		category, err := s.store.GetCategory(ctx, categoryID)
		if err != nil {
			return nil, services.Wrap(nil, component, "get item", "load category", err)
		}
		if category == nil {
			continue
		}
		entry := &CategoryDetail{
			Category: category,
			Status:   CategoryPending,
		}
		if annotation := ownByCategory[categoryID]; annotation != nil {
			entry.SelectedOptionIDs = annotation.SelectedOptionIDs
			entry.IsDuplicate = annotation.IsDuplicate
			entry.ReviewStatus = annotation.ReviewStatus
			entry.ReviewNote = annotation.ReviewNote
			entry.Status = categoryStatus(annotation.Status)
		} else if _, done := externallyCompleted[categoryID]; done {
			entry.Status = CategoryCompletedByOther
		}
		detail.Categories = append(detail.Categories, entry)
	}

	lock, err := s.locks.Status(ctx, worker.ID, itemID)
	if err != nil {
		return nil, err
	}
	detail.Lock = lock

	return detail, nil
}

func (s *Service) summaries(ctx context.Context, worker *store.Worker) ([]*ItemSummary, error) {
	visible, err := s.policy.AvailableItems(ctx, worker.ID)
	if err != nil {
		return nil, services.Wrap(nil, component, "list items", "compute availability", err)
	}
	assigned, err := s.store.AssignedCategoryIDs(ctx, worker.ID)
	if err != nil {
		return nil, services.Wrap(nil, component, "list items", "load assignments", err)
	}
	own, err := s.store.AnnotationsByWorker(ctx, worker.ID)
	if err != nil {
		return nil, services.Wrap(nil, component, "list items", "load annotations", err)
	}
	external, err := s.store.CompletedPairsByOthers(ctx, worker.ID)
	if err != nil {
		return nil, services.Wrap(nil, component, "list items", "load external completions", err)
	}

	ownByItem := make(map[int64]map[int64]*store.Annotation)
	for _, annotation := range own {
		if ownByItem[annotation.ItemID] == nil {
			ownByItem[annotation.ItemID] = make(map[int64]*store.Annotation)
		}
		ownByItem[annotation.ItemID][annotation.CategoryID] = annotation
	}

	summaries := make([]*ItemSummary, 0, len(visible))
	for _, item := range visible {
		summary := &ItemSummary{
			Item:             item,
			CategoryStatuses: make(map[int64]CategoryStatus, len(assigned)),
		}
		done := 0
		touched := false
		for _, categoryID := range assigned {
			status := CategoryPending
			if annotation := ownByItem[item.ID][categoryID]; annotation != nil {
				status = categoryStatus(annotation.Status)
				touched = true
			} else if _, ok := external[item.ID][categoryID]; ok {
				status = CategoryCompletedByOther
			}
			if status == CategoryCompleted || status == CategoryCompletedByOther {
				done++
			}
			summary.CategoryStatuses[categoryID] = status
		}

		switch {
		case len(assigned) > 0 && done == len(assigned):
			summary.Status = ItemCompleted
		case touched || done > 0:
			summary.Status = ItemPartial
		default:
			summary.Status = ItemPending
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func categoryStatus(status store.AnnotationStatus) CategoryStatus {
	switch status {
	case store.StatusCompleted:
		return CategoryCompleted
	case store.StatusInProgress:
		return CategoryInProgress
	case store.StatusSkipped:
		// Skipped shows as pending again so the worker circles back.
		return CategoryPending
	default:
		return CategoryPending
	}
}
