package allocator

import (
	"context"

	"petlabel/internal/config"
	"petlabel/internal/store"
)

// Policy computes the set of items a worker is permitted to act on. The two
// implementations differ on what "remaining work" means: the item-claim
// policy hides an item from everyone once any worker touches it, while the
// legacy category queue only excludes items completed for the category at
// hand. Their visible sets differ, so callers pick one per workflow mode
// rather than merging them.
type Policy interface {
	Name() string
	AvailableItems(ctx context.Context, workerID int64) ([]*store.Item, error)
}

// ForConfig returns the policy selected by configuration. The item-claim
// policy is the canonical one for the image-first workflow and the fallback
// for unknown values.
func ForConfig(cfg *config.Config, st *store.Store) Policy {
	if cfg != nil && cfg.Labeling.AllocationPolicy == config.PolicyCategoryQueue {
		return NewCategoryQueue(st)
	}
	return NewItemClaim(st)
}
