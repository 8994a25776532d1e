package catalog_test

import (
	"context"
	"testing"

	"petlabel/internal/catalog"
	"petlabel/internal/store"
	"petlabel/internal/testsupport"
)

func TestSeedPopulatesEmptyDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if err := catalog.Seed(ctx, st, "root", nil); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	categories, err := st.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories failed: %v", err)
	}
	if len(categories) != 6 {
		t.Fatalf("expected 6 categories, got %d", len(categories))
	}
	if categories[0].Name != "Lighting Variation" {
		t.Fatalf("unexpected first category: %q", categories[0].Name)
	}

	var typical int
	for _, option := range categories[0].Options {
		if option.IsTypical {
			typical++
		}
	}
	if typical != 1 {
		t.Fatalf("expected exactly one typical lighting option, got %d", typical)
	}

	itemCount, err := st.ItemCount(ctx)
	if err != nil {
		t.Fatalf("ItemCount failed: %v", err)
	}
	if itemCount != 20 {
		t.Fatalf("expected 20 mock images, got %d", itemCount)
	}

	admin, err := st.GetWorkerByUsername(ctx, "root")
	if err != nil {
		t.Fatalf("GetWorkerByUsername failed: %v", err)
	}
	if admin == nil || admin.Role != store.RoleAdmin {
		t.Fatalf("expected seeded admin, got %#v", admin)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if err := catalog.Seed(ctx, st, "root", nil); err != nil {
		t.Fatalf("first Seed failed: %v", err)
	}
	if err := catalog.Seed(ctx, st, "root", nil); err != nil {
		t.Fatalf("second Seed failed: %v", err)
	}

	categories, err := st.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories failed: %v", err)
	}
	if len(categories) != 6 {
		t.Fatalf("expected 6 categories after reseed, got %d", len(categories))
	}
	itemCount, err := st.ItemCount(ctx)
	if err != nil {
		t.Fatalf("ItemCount failed: %v", err)
	}
	if itemCount != 20 {
		t.Fatalf("expected 20 images after reseed, got %d", itemCount)
	}
}
