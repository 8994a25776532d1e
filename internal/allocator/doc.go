// Package allocator decides which items a worker may see and act on. It
// ships two interchangeable policies: the canonical item-level exclusive
// claim and the legacy category-scoped remaining-work queue.
package allocator
