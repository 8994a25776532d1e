package testsupport

import (
	"context"
	"testing"

	"petlabel/internal/config"
	"petlabel/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewWorker creates a labeling account for tests.
func NewWorker(t testing.TB, st *store.Store, username string) *store.Worker {
	t.Helper()

	worker, err := st.CreateWorker(context.Background(), username, "", store.RoleWorker)
	if err != nil {
		t.Fatalf("store.CreateWorker: %v", err)
	}
	return worker
}

// NewAdmin creates a reviewing account for tests.
func NewAdmin(t testing.TB, st *store.Store, username string) *store.Worker {
	t.Helper()

	admin, err := st.CreateWorker(context.Background(), username, "", store.RoleAdmin)
	if err != nil {
		t.Fatalf("store.CreateWorker: %v", err)
	}
	return admin
}

// NewItem adds an image to the pool for tests.
func NewItem(t testing.TB, st *store.Store, filename string) *store.Item {
	t.Helper()

	item, err := st.AddItem(context.Background(), filename, "https://example.com/"+filename)
	if err != nil {
		t.Fatalf("store.AddItem: %v", err)
	}
	return item
}

// NewCategory creates a category with the given option labels, all atypical
// except the first.
func NewCategory(t testing.TB, st *store.Store, name string, order int, optionLabels ...string) *store.Category {
	t.Helper()

	options := make([]store.Option, len(optionLabels))
	for i, label := range optionLabels {
		options[i] = store.Option{
			Label:        label,
			IsTypical:    i == 0,
			DisplayOrder: i,
		}
	}
	category, err := st.CreateCategory(context.Background(), name, order, options)
	if err != nil {
		t.Fatalf("store.CreateCategory: %v", err)
	}
	return category
}

// Assign replaces a worker's category assignments.
func Assign(t testing.TB, st *store.Store, workerID int64, categoryIDs ...int64) {
	t.Helper()

	if err := st.ReplaceAssignments(context.Background(), workerID, categoryIDs); err != nil {
		t.Fatalf("store.ReplaceAssignments: %v", err)
	}
}
