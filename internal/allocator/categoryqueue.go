package allocator

import (
	"context"
	"fmt"

	"petlabel/internal/config"
	"petlabel/internal/store"
)

// CategoryQueue is the legacy category-scoped policy: each (worker, category)
// pair gets its own queue of items not yet completed by anyone for that
// category, plus the worker's own touched items for back-navigation. It does
// not claim items globally, so two workers can hold the same item in
// different categories.
type CategoryQueue struct {
	store *store.Store
}

// NewCategoryQueue builds the category-queue policy over the given store.
func NewCategoryQueue(st *store.Store) *CategoryQueue {
	return &CategoryQueue{store: st}
}

// Name identifies the policy in configuration and logs.
func (p *CategoryQueue) Name() string {
	return config.PolicyCategoryQueue
}

// Queue is one worker's ordered work queue for a single category.
// ResumeIndex points at the first item the worker has not completed, so a
// returning worker lands where they left off.
type Queue struct {
	Items       []*store.Item
	ResumeIndex int
}

// Queue returns the worker's queue for one category: items the worker
// already touched in the category, plus items no one has completed for it.
func (p *CategoryQueue) Queue(ctx context.Context, workerID, categoryID int64) (*Queue, error) {
	items, err := p.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	mine, err := p.store.ItemIDsAnnotatedByForCategory(ctx, workerID, categoryID)
	if err != nil {
		return nil, err
	}
	completed, err := p.store.ItemIDsCompletedForCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	myCompleted, err := p.store.ItemIDsCompletedByForCategory(ctx, workerID, categoryID)
	if err != nil {
		return nil, err
	}

	queue := &Queue{}
	for _, item := range items {
		if _, touched := mine[item.ID]; touched {
			queue.Items = append(queue.Items, item)
			continue
		}
		if _, done := completed[item.ID]; done {
			continue
		}
		if item.Improper {
			continue
		}
		queue.Items = append(queue.Items, item)
	}

	queue.ResumeIndex = len(queue.Items)
	for i, item := range queue.Items {
		if _, done := myCompleted[item.ID]; !done {
			queue.ResumeIndex = i
			break
		}
	}
	// A worker who completed the whole queue resumes on its last item rather
	// than one past the end.
	if queue.ResumeIndex == len(queue.Items) && len(queue.Items) > 0 {
		queue.ResumeIndex = len(queue.Items) - 1
	}
	return queue, nil
}

// AvailableItems unions the worker's per-category queues across assigned
// categories, ordered by item id ascending.
func (p *CategoryQueue) AvailableItems(ctx context.Context, workerID int64) ([]*store.Item, error) {
	categoryIDs, err := p.store.AssignedCategoryIDs(ctx, workerID)
	if err != nil {
		return nil, err
	}

	visible := make(map[int64]struct{})
	for _, categoryID := range categoryIDs {
		queue, err := p.Queue(ctx, workerID, categoryID)
		if err != nil {
			return nil, err
		}
		for _, item := range queue.Items {
			visible[item.ID] = struct{}{}
		}
	}

	items, err := p.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	var result []*store.Item
	for _, item := range items {
		if _, ok := visible[item.ID]; ok {
			result = append(result, item)
		}
	}
	return result, nil
}
