// Package store persists the labeling workflow in SQLite: workers and their
// category assignments, the item pool, annotations with their selections,
// edit requests, and notifications. Migrations are embedded and applied on
// open. Lookups return (nil, nil) when no row matches; callers translate that
// into their own not-found errors.
package store
