package store_test

import (
	"context"
	"testing"

	"petlabel/internal/store"
	"petlabel/internal/testsupport"
)

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	worker, err := st.CreateWorker(ctx, "alice", "Alice Liddell", store.RoleWorker)
	if err != nil {
		t.Fatalf("CreateWorker failed: %v", err)
	}
	if worker.ID == 0 {
		t.Fatal("expected worker ID to be assigned")
	}

	fetched, err := st.GetWorkerByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetWorkerByUsername failed: %v", err)
	}
	if fetched == nil || fetched.FullName != "Alice Liddell" {
		t.Fatalf("unexpected fetched worker: %#v", fetched)
	}

	missing, err := st.GetWorker(ctx, 9999)
	if err != nil {
		t.Fatalf("GetWorker failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing worker, got %#v", missing)
	}
}

func TestCreateWorkerRequiresUsername(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if _, err := st.CreateWorker(context.Background(), "  ", "", store.RoleWorker); err == nil {
		t.Fatal("expected error when username missing")
	}
}

func TestReplaceAssignmentsFollowsDisplayOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	second := testsupport.NewCategory(t, st, "Angle", 2, "Typical", "Overhead")
	first := testsupport.NewCategory(t, st, "Lighting", 1, "Typical", "Low light")
	worker := testsupport.NewWorker(t, st, "alice")
	testsupport.Assign(t, st, worker.ID, second.ID, first.ID)

	ids, err := st.AssignedCategoryIDs(context.Background(), worker.ID)
	if err != nil {
		t.Fatalf("AssignedCategoryIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != first.ID || ids[1] != second.ID {
		t.Fatalf("expected display-order ids [%d %d], got %v", first.ID, second.ID, ids)
	}

	testsupport.Assign(t, st, worker.ID, second.ID)
	ids, err = st.AssignedCategoryIDs(context.Background(), worker.ID)
	if err != nil {
		t.Fatalf("AssignedCategoryIDs after replace failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != second.ID {
		t.Fatalf("expected replaced assignment [%d], got %v", second.ID, ids)
	}
}

func TestCategoryOptionsKeepOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	category := testsupport.NewCategory(t, st, "Lighting", 1, "Typical", "Low light", "Overexposed")

	fetched, err := st.GetCategory(context.Background(), category.ID)
	if err != nil {
		t.Fatalf("GetCategory failed: %v", err)
	}
	if len(fetched.Options) != 3 {
		t.Fatalf("expected 3 options, got %d", len(fetched.Options))
	}
	if fetched.Options[0].Label != "Typical" || !fetched.Options[0].IsTypical {
		t.Fatalf("expected typical option first, got %#v", fetched.Options[0])
	}
	if fetched.Options[2].Label != "Overexposed" {
		t.Fatalf("unexpected option order: %#v", fetched.Options)
	}
}

func TestMarkItemImproper(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	worker := testsupport.NewWorker(t, st, "alice")
	item := testsupport.NewItem(t, st, "pet_001.jpg")

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.MarkItemImproper(ctx, item.ID, worker.ID, "not a pet"); err != nil {
		t.Fatalf("MarkItemImproper failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	fetched, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if !fetched.Improper || fetched.ImproperReason != "not a pet" {
		t.Fatalf("expected improper item, got %#v", fetched)
	}
	if fetched.ImproperBy == nil || *fetched.ImproperBy != worker.ID {
		t.Fatalf("expected improper_by %d, got %#v", worker.ID, fetched.ImproperBy)
	}
	if fetched.ImproperAt == nil {
		t.Fatal("expected improper_at timestamp")
	}
}

func TestAnnotationUniquePerTriple(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	worker := testsupport.NewWorker(t, st, "alice")
	category := testsupport.NewCategory(t, st, "Lighting", 1, "Typical")
	item := testsupport.NewItem(t, st, "pet_001.jpg")

	insert := func() error {
		tx, err := st.Begin(ctx)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		defer func() { _ = tx.Rollback() }()
		_, err = tx.InsertAnnotation(ctx, &store.Annotation{
			ItemID:     item.ID,
			WorkerID:   worker.ID,
			CategoryID: category.ID,
			Status:     store.StatusInProgress,
		})
		if err != nil {
			return err
		}
		return tx.Commit()
	}

	if err := insert(); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := insert(); err == nil {
		t.Fatal("expected unique constraint violation on duplicate triple")
	}
}

func TestReplaceSelectionsSwapsAtomically(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	worker := testsupport.NewWorker(t, st, "alice")
	category := testsupport.NewCategory(t, st, "Lighting", 1, "Typical", "Low light", "Overexposed")
	item := testsupport.NewItem(t, st, "pet_001.jpg")

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	id, err := tx.InsertAnnotation(ctx, &store.Annotation{
		ItemID:     item.ID,
		WorkerID:   worker.ID,
		CategoryID: category.ID,
		Status:     store.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("InsertAnnotation failed: %v", err)
	}
	if err := tx.ReplaceSelections(ctx, id, []int64{category.Options[0].ID, category.Options[1].ID}); err != nil {
		t.Fatalf("ReplaceSelections failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	annotation, err := st.GetAnnotation(ctx, item.ID, worker.ID, category.ID)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	if len(annotation.SelectedOptionIDs) != 2 {
		t.Fatalf("expected 2 selections, got %v", annotation.SelectedOptionIDs)
	}

	tx, err = st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.ReplaceSelections(ctx, id, []int64{category.Options[2].ID}); err != nil {
		t.Fatalf("ReplaceSelections swap failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	annotation, err = st.GetAnnotation(ctx, item.ID, worker.ID, category.ID)
	if err != nil {
		t.Fatalf("GetAnnotation after swap failed: %v", err)
	}
	if len(annotation.SelectedOptionIDs) != 1 || annotation.SelectedOptionIDs[0] != category.Options[2].ID {
		t.Fatalf("expected swapped selection, got %v", annotation.SelectedOptionIDs)
	}
}

func TestItemTouchedByOthers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	alice := testsupport.NewWorker(t, st, "alice")
	bob := testsupport.NewWorker(t, st, "bob")
	category := testsupport.NewCategory(t, st, "Lighting", 1, "Typical")
	item := testsupport.NewItem(t, st, "pet_001.jpg")

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := tx.InsertAnnotation(ctx, &store.Annotation{
		ItemID:     item.ID,
		WorkerID:   alice.ID,
		CategoryID: category.ID,
		Status:     store.StatusInProgress,
	}); err != nil {
		t.Fatalf("InsertAnnotation failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	tx, err = st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	touched, err := tx.ItemTouchedByOthers(ctx, item.ID, bob.ID)
	if err != nil {
		t.Fatalf("ItemTouchedByOthers failed: %v", err)
	}
	if !touched {
		t.Fatal("expected item to be touched by another worker")
	}

	touched, err = tx.ItemTouchedByOthers(ctx, item.ID, alice.ID)
	if err != nil {
		t.Fatalf("ItemTouchedByOthers (owner) failed: %v", err)
	}
	if touched {
		t.Fatal("expected item not to count as touched for its owner")
	}
}

func TestEditRequestLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	worker := testsupport.NewWorker(t, st, "alice")
	admin := testsupport.NewAdmin(t, st, "root")
	item := testsupport.NewItem(t, st, "pet_001.jpg")

	request, err := st.CreateEditRequest(ctx, worker.ID, item.ID, "mislabeled lighting")
	if err != nil {
		t.Fatalf("CreateEditRequest failed: %v", err)
	}
	if request.Token == "" || request.Status != store.RequestPending {
		t.Fatalf("unexpected new request: %#v", request)
	}

	pending, err := st.PendingEditRequest(ctx, worker.ID, item.ID)
	if err != nil {
		t.Fatalf("PendingEditRequest failed: %v", err)
	}
	if pending == nil || pending.ID != request.ID {
		t.Fatalf("expected pending request, got %#v", pending)
	}

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.DecideEditRequest(ctx, request.ID, store.RequestApproved, "go ahead", admin.ID); err != nil {
		t.Fatalf("DecideEditRequest failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	approved, err := st.ApprovedEditRequest(ctx, worker.ID, item.ID)
	if err != nil {
		t.Fatalf("ApprovedEditRequest failed: %v", err)
	}
	if approved == nil || approved.ReviewNote != "go ahead" {
		t.Fatalf("expected approved request, got %#v", approved)
	}
	if approved.ReviewedBy == nil || *approved.ReviewedBy != admin.ID {
		t.Fatalf("expected reviewer %d, got %#v", admin.ID, approved.ReviewedBy)
	}

	tx, err = st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.ConsumeEditRequest(ctx, request.ID); err != nil {
		t.Fatalf("ConsumeEditRequest failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	used, err := st.GetEditRequest(ctx, request.Token)
	if err != nil {
		t.Fatalf("GetEditRequest failed: %v", err)
	}
	if used.Status != store.RequestUsed || used.UsedAt == nil {
		t.Fatalf("expected used request with timestamp, got %#v", used)
	}

	if again, err := st.ApprovedEditRequest(ctx, worker.ID, item.ID); err != nil || again != nil {
		t.Fatalf("expected no approved request after use, got %#v err=%v", again, err)
	}
}

func TestPageCompletedItemIDsGroupsByItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	worker := testsupport.NewWorker(t, st, "alice")
	lighting := testsupport.NewCategory(t, st, "Lighting", 1, "Typical")
	angle := testsupport.NewCategory(t, st, "Angle", 2, "Typical")

	for i := 0; i < 3; i++ {
		item := testsupport.NewItem(t, st, "pet.jpg")
		tx, err := st.Begin(ctx)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		for _, category := range []*store.Category{lighting, angle} {
			if _, err := tx.InsertAnnotation(ctx, &store.Annotation{
				ItemID:     item.ID,
				WorkerID:   worker.ID,
				CategoryID: category.ID,
				Status:     store.StatusCompleted,
			}); err != nil {
				t.Fatalf("InsertAnnotation failed: %v", err)
			}
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
	}

	ids, total, err := st.PageCompletedItemIDs(ctx, store.ReviewFilter{}, 2, 0)
	if err != nil {
		t.Fatalf("PageCompletedItemIDs failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 items total, got %d", total)
	}
	if len(ids) != 2 {
		t.Fatalf("expected page of 2 items, got %v", ids)
	}

	grouped, err := st.CompletedForItems(ctx, store.ReviewFilter{}, ids)
	if err != nil {
		t.Fatalf("CompletedForItems failed: %v", err)
	}
	for _, id := range ids {
		if len(grouped[id]) != 2 {
			t.Fatalf("expected both category rows for item %d, got %d", id, len(grouped[id]))
		}
	}
}

func TestReviewCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	worker := testsupport.NewWorker(t, st, "alice")
	admin := testsupport.NewAdmin(t, st, "root")
	category := testsupport.NewCategory(t, st, "Lighting", 1, "Typical")

	states := []store.ReviewStatus{store.ReviewNone, store.ReviewApproved, store.ReviewReworkRequested}
	for _, state := range states {
		item := testsupport.NewItem(t, st, "pet.jpg")
		tx, err := st.Begin(ctx)
		if err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		annotation := &store.Annotation{
			ItemID:       item.ID,
			WorkerID:     worker.ID,
			CategoryID:   category.ID,
			Status:       store.StatusCompleted,
			ReviewStatus: state,
		}
		if state != store.ReviewNone {
			annotation.ReviewedBy = &admin.ID
		}
		if _, err := tx.InsertAnnotation(ctx, annotation); err != nil {
			t.Fatalf("InsertAnnotation failed: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
	}

	stats, err := st.ReviewCounts(ctx)
	if err != nil {
		t.Fatalf("ReviewCounts failed: %v", err)
	}
	if stats.Completed != 3 || stats.Unreviewed != 1 || stats.Approved != 1 || stats.ReworkRequested != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestNotificationsMarkRead(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	worker := testsupport.NewWorker(t, st, "alice")
	item := testsupport.NewItem(t, st, "pet_001.jpg")

	if err := st.AddNotification(ctx, worker.ID, store.NotifyReworkRequested, "rework requested", &item.ID); err != nil {
		t.Fatalf("AddNotification failed: %v", err)
	}
	if err := st.AddNotification(ctx, worker.ID, store.NotifyReviewApproved, "approved", nil); err != nil {
		t.Fatalf("AddNotification failed: %v", err)
	}

	unread, err := st.ListNotifications(ctx, worker.ID, true)
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(unread) != 2 {
		t.Fatalf("expected 2 unread notifications, got %d", len(unread))
	}

	if err := st.MarkNotificationsRead(ctx, worker.ID, nil); err != nil {
		t.Fatalf("MarkNotificationsRead failed: %v", err)
	}
	unread, err = st.ListNotifications(ctx, worker.ID, true)
	if err != nil {
		t.Fatalf("ListNotifications after mark failed: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("expected no unread notifications, got %d", len(unread))
	}

	all, err := st.ListNotifications(ctx, worker.ID, false)
	if err != nil {
		t.Fatalf("ListNotifications all failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 notifications total, got %d", len(all))
	}
}

func TestTransitionTables(t *testing.T) {
	if !store.AnnotationTransitionAllowed(store.StatusSkipped, store.StatusCompleted) {
		t.Fatal("skipped should upgrade to completed")
	}
	if store.AnnotationTransitionAllowed(store.StatusCompleted, store.StatusSkipped) {
		t.Fatal("completed must not downgrade to skipped")
	}
	if !store.ReviewTransitionAllowed(store.ReviewReworkRequested, store.ReviewReworkCompleted) {
		t.Fatal("rework_requested should move to rework_completed")
	}
	if store.ReviewTransitionAllowed(store.ReviewReworkRequested, store.ReviewApproved) {
		t.Fatal("rework_requested must not jump straight to approved")
	}
	if !store.EditRequestTransitionAllowed(store.RequestApproved, store.RequestUsed) {
		t.Fatal("approved request should be consumable")
	}
	if store.EditRequestTransitionAllowed(store.RequestUsed, store.RequestApproved) {
		t.Fatal("used request must stay used")
	}
}
