package workers_test

import (
	"context"
	"errors"
	"testing"

	"petlabel/internal/services"
	"petlabel/internal/store"
	"petlabel/internal/testsupport"
	"petlabel/internal/workers"
)

func TestCreateRequiresAdmin(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	service := workers.NewService(st, nil)

	worker := testsupport.NewWorker(t, st, "alice")
	_, err := service.Create(context.Background(), worker, "bob", "", store.RoleWorker, nil)
	if !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreateRejectsDuplicateUsername(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	service := workers.NewService(st, nil)

	admin := testsupport.NewAdmin(t, st, "root")
	ctx := context.Background()

	if _, err := service.Create(ctx, admin, "alice", "Alice", store.RoleWorker, nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err := service.Create(ctx, admin, "alice", "", store.RoleWorker, nil)
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateWithAssignments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	service := workers.NewService(st, nil)

	admin := testsupport.NewAdmin(t, st, "root")
	lighting := testsupport.NewCategory(t, st, "Lighting", 1, "Typical")
	ctx := context.Background()

	worker, err := service.Create(ctx, admin, "alice", "Alice", store.RoleWorker, []int64{lighting.ID})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	fetched, err := st.GetWorker(ctx, worker.ID)
	if err != nil {
		t.Fatalf("GetWorker failed: %v", err)
	}
	if len(fetched.CategoryIDs) != 1 || fetched.CategoryIDs[0] != lighting.ID {
		t.Fatalf("expected assignment persisted, got %v", fetched.CategoryIDs)
	}

	if err := service.AssignCategories(ctx, admin, worker.ID, []int64{9999}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing category, got %v", err)
	}
}

func TestSetActiveKeepsHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	service := workers.NewService(st, nil)

	admin := testsupport.NewAdmin(t, st, "root")
	worker := testsupport.NewWorker(t, st, "alice")
	ctx := context.Background()

	if err := service.SetActive(ctx, admin, worker.ID, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	fetched, err := st.GetWorker(ctx, worker.ID)
	if err != nil {
		t.Fatalf("GetWorker failed: %v", err)
	}
	if fetched.Active {
		t.Fatal("expected deactivated worker")
	}
	if fetched.Username != "alice" {
		t.Fatalf("expected record preserved, got %#v", fetched)
	}
}

func TestWorkerProgressAndRollup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	service := workers.NewService(st, nil)

	ctx := context.Background()
	worker := testsupport.NewWorker(t, st, "alice")
	lighting := testsupport.NewCategory(t, st, "Lighting", 1, "Typical")
	angle := testsupport.NewCategory(t, st, "Angle", 2, "Typical")

	full := testsupport.NewItem(t, st, "pet_001.jpg")
	partial := testsupport.NewItem(t, st, "pet_002.jpg")
	testsupport.NewItem(t, st, "pet_003.jpg")

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	rows := []*store.Annotation{
		{ItemID: full.ID, WorkerID: worker.ID, CategoryID: lighting.ID, Status: store.StatusCompleted, TimeSpentSeconds: 30},
		{ItemID: full.ID, WorkerID: worker.ID, CategoryID: angle.ID, Status: store.StatusCompleted, TimeSpentSeconds: 20},
		{ItemID: partial.ID, WorkerID: worker.ID, CategoryID: lighting.ID, Status: store.StatusSkipped},
	}
	for _, row := range rows {
		if _, err := tx.InsertAnnotation(ctx, row); err != nil {
			t.Fatalf("InsertAnnotation failed: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	progress, err := service.WorkerProgress(ctx, worker.ID)
	if err != nil {
		t.Fatalf("WorkerProgress failed: %v", err)
	}
	if progress.Completed != 2 || progress.Skipped != 1 || progress.TimeSpentSeconds != 50 {
		t.Fatalf("unexpected progress: %#v", progress)
	}

	rollup, err := service.CompletionRollup(ctx)
	if err != nil {
		t.Fatalf("CompletionRollup failed: %v", err)
	}
	if rollup.TotalItems != 3 || rollup.FullyLabeled != 1 || rollup.PartiallyLabeled != 1 || rollup.Untouched != 1 {
		t.Fatalf("unexpected rollup: %#v", rollup)
	}
}

func TestCategoryProgressCountsPerAssignment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	service := workers.NewService(st, nil)

	ctx := context.Background()
	worker := testsupport.NewWorker(t, st, "alice")
	lighting := testsupport.NewCategory(t, st, "Lighting", 1, "Typical")
	angle := testsupport.NewCategory(t, st, "Angle", 2, "Typical")
	testsupport.Assign(t, st, worker.ID, lighting.ID, angle.ID)

	first := testsupport.NewItem(t, st, "pet_001.jpg")
	second := testsupport.NewItem(t, st, "pet_002.jpg")
	testsupport.NewItem(t, st, "pet_003.jpg")

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	rows := []*store.Annotation{
		{ItemID: first.ID, WorkerID: worker.ID, CategoryID: lighting.ID, Status: store.StatusCompleted},
		{ItemID: second.ID, WorkerID: worker.ID, CategoryID: lighting.ID, Status: store.StatusSkipped},
		{ItemID: first.ID, WorkerID: worker.ID, CategoryID: angle.ID, Status: store.StatusInProgress},
	}
	for _, row := range rows {
		if _, err := tx.InsertAnnotation(ctx, row); err != nil {
			t.Fatalf("InsertAnnotation failed: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	progress, err := service.CategoryProgress(ctx, worker.ID)
	if err != nil {
		t.Fatalf("CategoryProgress failed: %v", err)
	}
	if len(progress) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(progress))
	}
	if progress[0].Category.ID != lighting.ID || progress[0].Completed != 1 || progress[0].Skipped != 1 || progress[0].Pending != 1 {
		t.Fatalf("unexpected lighting progress: %#v", progress[0])
	}
	if progress[1].InProgress != 1 || progress[1].Pending != 2 {
		t.Fatalf("unexpected angle progress: %#v", progress[1])
	}
}

func TestItemCompletionViewPicksBestStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	service := workers.NewService(st, nil)

	ctx := context.Background()
	alice := testsupport.NewWorker(t, st, "alice")
	bob := testsupport.NewWorker(t, st, "bob")
	lighting := testsupport.NewCategory(t, st, "Lighting", 1, "Typical")
	item := testsupport.NewItem(t, st, "pet_001.jpg")

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	rows := []*store.Annotation{
		{ItemID: item.ID, WorkerID: alice.ID, CategoryID: lighting.ID, Status: store.StatusSkipped},
		{ItemID: item.ID, WorkerID: bob.ID, CategoryID: lighting.ID, Status: store.StatusCompleted},
	}
	for _, row := range rows {
		if _, err := tx.InsertAnnotation(ctx, row); err != nil {
			t.Fatalf("InsertAnnotation failed: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	view, err := service.ItemCompletionView(ctx)
	if err != nil {
		t.Fatalf("ItemCompletionView failed: %v", err)
	}
	if len(view) != 1 {
		t.Fatalf("expected 1 item, got %d", len(view))
	}
	if view[0].Statuses[lighting.ID] != store.StatusCompleted {
		t.Fatalf("expected completed to win, got %q", view[0].Statuses[lighting.ID])
	}
	if !view[0].Complete {
		t.Fatal("expected item marked complete")
	}
}
