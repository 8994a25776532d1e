package allocator

import (
	"context"
	"fmt"

	"petlabel/internal/config"
	"petlabel/internal/store"
)

// ItemClaim implements first-touch-wins exclusivity at the item level: the
// instant a worker creates any annotation on an item, that item disappears
// from every other worker's view, permanently. There is no claim timeout and
// no release; an item claimed by an inactive worker stays claimed. The
// claiming worker keeps the item visible forever, including for
// back-navigation.
type ItemClaim struct {
	store *store.Store
}

// NewItemClaim builds the item-claim policy over the given store.
func NewItemClaim(st *store.Store) *ItemClaim {
	return &ItemClaim{store: st}
}

// Name identifies the policy in configuration and logs.
func (p *ItemClaim) Name() string {
	return config.PolicyItemClaim
}

// AvailableItems returns the worker's visible items ordered by id ascending:
// everything the worker already touched, plus every item no other worker has
// touched. Improper items drop out of the untouched half but stay visible to
// a worker who already annotated them.
func (p *ItemClaim) AvailableItems(ctx context.Context, workerID int64) ([]*store.Item, error) {
	items, err := p.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	mine, err := p.store.ItemIDsAnnotatedBy(ctx, workerID)
	if err != nil {
		return nil, err
	}
	others, err := p.store.ItemIDsAnnotatedByOthers(ctx, workerID)
	if err != nil {
		return nil, err
	}

	var visible []*store.Item
	for _, item := range items {
		if _, touched := mine[item.ID]; touched {
			visible = append(visible, item)
			continue
		}
		if _, claimed := others[item.ID]; claimed {
			continue
		}
		if item.Improper {
			continue
		}
		visible = append(visible, item)
	}
	return visible, nil
}
