package annotating_test

import (
	"context"
	"errors"
	"testing"

	"petlabel/internal/annotating"
	"petlabel/internal/config"
	"petlabel/internal/editlock"
	"petlabel/internal/services"
	"petlabel/internal/store"
	"petlabel/internal/testsupport"
)

type fixture struct {
	store    *store.Store
	service  *annotating.Service
	locks    *editlock.Manager
	worker   *store.Worker
	admin    *store.Worker
	lighting *store.Category
	angle    *store.Category
	item     *store.Item
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	locks := editlock.NewManager(st, nil, nil)

	f := &fixture{
		store:    st,
		locks:    locks,
		service:  annotating.NewService(st, locks, cfg, nil),
		worker:   testsupport.NewWorker(t, st, "alice"),
		admin:    testsupport.NewAdmin(t, st, "root"),
		lighting: testsupport.NewCategory(t, st, "Lighting", 1, "Typical", "Low light"),
		angle:    testsupport.NewCategory(t, st, "Angle", 2, "Typical", "Overhead"),
		item:     testsupport.NewItem(t, st, "pet_001.jpg"),
	}
	testsupport.Assign(t, st, f.worker.ID, f.lighting.ID, f.angle.ID)
	return f
}

func (f *fixture) fullSave(elapsed int64) annotating.SaveInput {
	return annotating.SaveInput{
		Categories: map[int64]annotating.CategorySave{
			f.lighting.ID: {SelectedOptionIDs: []int64{f.lighting.Options[0].ID}},
			f.angle.ID:    {SelectedOptionIDs: []int64{f.angle.Options[0].ID}},
		},
		ElapsedSeconds: elapsed,
	}
}

func TestSaveItemCompletesAllCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saved, err := f.service.SaveItem(ctx, f.worker, f.item.ID, f.fullSave(30))
	if err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected 2 saved categories, got %v", saved)
	}

	for _, category := range []*store.Category{f.lighting, f.angle} {
		annotation, err := f.store.GetAnnotation(ctx, f.item.ID, f.worker.ID, category.ID)
		if err != nil {
			t.Fatalf("GetAnnotation failed: %v", err)
		}
		if annotation == nil || annotation.Status != store.StatusCompleted {
			t.Fatalf("expected completed annotation for %s, got %#v", category.Name, annotation)
		}
		if len(annotation.SelectedOptionIDs) != 1 {
			t.Fatalf("expected one selection for %s, got %v", category.Name, annotation.SelectedOptionIDs)
		}
	}
}

func TestSaveItemRejectsMissingSelectionsAtomically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	input := annotating.SaveInput{
		Categories: map[int64]annotating.CategorySave{
			f.lighting.ID: {SelectedOptionIDs: []int64{f.lighting.Options[0].ID}},
			f.angle.ID:    {},
		},
	}
	_, err := f.service.SaveItem(ctx, f.worker, f.item.ID, input)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var missing *services.MissingSelectionsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSelectionsError, got %T", err)
	}
	if len(missing.Categories) != 1 || missing.Categories[0] != "Angle" {
		t.Fatalf("expected missing [Angle], got %v", missing.Categories)
	}

	// Nothing committed, not even the valid category.
	annotation, err := f.store.GetAnnotation(ctx, f.item.ID, f.worker.ID, f.lighting.ID)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	if annotation != nil {
		t.Fatalf("expected no partial commit, found %#v", annotation)
	}
}

func TestSaveItemSkipsCategoriesCompletedByOthers(t *testing.T) {
	f := newFixture(t, testsupport.WithAllocationPolicy(config.PolicyCategoryQueue))
	ctx := context.Background()

	// Bob completed lighting on this item; alice only owes angle.
	bob := testsupport.NewWorker(t, f.store, "bob")
	tx, err := f.store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := tx.InsertAnnotation(ctx, &store.Annotation{
		ItemID:     f.item.ID,
		WorkerID:   bob.ID,
		CategoryID: f.lighting.ID,
		Status:     store.StatusCompleted,
	}); err != nil {
		t.Fatalf("InsertAnnotation failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	input := annotating.SaveInput{
		Categories: map[int64]annotating.CategorySave{
			f.angle.ID: {SelectedOptionIDs: []int64{f.angle.Options[0].ID}},
		},
	}
	saved, err := f.service.SaveItem(ctx, f.worker, f.item.ID, input)
	if err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	if len(saved) != 1 || saved[0] != f.angle.ID {
		t.Fatalf("expected to save angle only, got %v", saved)
	}
}

func TestSaveItemRejectsClaimedItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bob := testsupport.NewWorker(t, f.store, "bob")
	tx, err := f.store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := tx.InsertAnnotation(ctx, &store.Annotation{
		ItemID:     f.item.ID,
		WorkerID:   bob.ID,
		CategoryID: f.lighting.ID,
		Status:     store.StatusInProgress,
	}); err != nil {
		t.Fatalf("InsertAnnotation failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	_, err = f.service.SaveItem(ctx, f.worker, f.item.ID, f.fullSave(10))
	if !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for claimed item, got %v", err)
	}
}

func TestSaveItemClampsElapsedTime(t *testing.T) {
	f := newFixture(t, testsupport.WithTimeCeilings(60, 30))
	ctx := context.Background()

	if _, err := f.service.SaveItem(ctx, f.worker, f.item.ID, f.fullSave(500)); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	annotations, err := f.store.AnnotationsForItemWorker(ctx, f.item.ID, f.worker.ID)
	if err != nil {
		t.Fatalf("AnnotationsForItemWorker failed: %v", err)
	}
	var total int64
	for _, annotation := range annotations {
		total += annotation.TimeSpentSeconds
	}
	if total != 60 {
		t.Fatalf("expected clamped time 60, got %d", total)
	}
}

func TestLockedSaveRequiresApprovalAndConsumesIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.SaveItem(ctx, f.worker, f.item.ID, f.fullSave(10)); err != nil {
		t.Fatalf("initial SaveItem failed: %v", err)
	}

	// Locked now: a second save without approval is rejected.
	_, err := f.service.SaveItem(ctx, f.worker, f.item.ID, f.fullSave(10))
	if !errors.Is(err, services.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	request, err := f.locks.Request(ctx, f.worker, f.item.ID, "picked wrong lighting option")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if _, err := f.locks.Decide(ctx, f.admin, request.Token, true, ""); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	// Approved: the next save succeeds and consumes the grant.
	input := f.fullSave(10)
	input.Categories[f.lighting.ID] = annotating.CategorySave{SelectedOptionIDs: []int64{f.lighting.Options[1].ID}}
	if _, err := f.service.SaveItem(ctx, f.worker, f.item.ID, input); err != nil {
		t.Fatalf("approved SaveItem failed: %v", err)
	}

	used, err := f.store.GetEditRequest(ctx, request.Token)
	if err != nil {
		t.Fatalf("GetEditRequest failed: %v", err)
	}
	if used.Status != store.RequestUsed {
		t.Fatalf("expected consumed request, got %s", used.Status)
	}

	// Single use: a third save is locked again.
	_, err = f.service.SaveItem(ctx, f.worker, f.item.ID, f.fullSave(10))
	if !errors.Is(err, services.ErrLocked) {
		t.Fatalf("expected ErrLocked after consumption, got %v", err)
	}
}

func TestReworkSaveAdvancesReviewStatus(t *testing.T) {
	f := newFixture(t, testsupport.WithTimeCeilings(120, 45))
	ctx := context.Background()

	if _, err := f.service.SaveItem(ctx, f.worker, f.item.ID, f.fullSave(10)); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	// Review pushes lighting back for rework.
	tx, err := f.store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	annotation, err := tx.GetAnnotation(ctx, f.item.ID, f.worker.ID, f.lighting.ID)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	annotation.ReviewStatus = store.ReviewReworkRequested
	annotation.ReviewedBy = &f.admin.ID
	if err := tx.UpdateAnnotation(ctx, annotation); err != nil {
		t.Fatalf("UpdateAnnotation failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	request, err := f.locks.Request(ctx, f.worker, f.item.ID, "rework")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if _, err := f.locks.Decide(ctx, f.admin, request.Token, true, ""); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	input := f.fullSave(100)
	input.IsRework = true
	if _, err := f.service.SaveItem(ctx, f.worker, f.item.ID, input); err != nil {
		t.Fatalf("rework SaveItem failed: %v", err)
	}

	reworked, err := f.store.GetAnnotation(ctx, f.item.ID, f.worker.ID, f.lighting.ID)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	if reworked.ReviewStatus != store.ReviewReworkCompleted {
		t.Fatalf("expected rework_completed, got %q", reworked.ReviewStatus)
	}
	if !reworked.IsRework {
		t.Fatal("expected rework flag set")
	}
	if reworked.ReworkTimeSeconds != 45 {
		t.Fatalf("expected rework time clamped to 45, got %d", reworked.ReworkTimeSeconds)
	}
}

func TestSkipItemNeverDowngradesCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Complete lighting only via a category-scoped save with angle still on file.
	input := annotating.SaveInput{
		Categories: map[int64]annotating.CategorySave{
			f.lighting.ID: {SelectedOptionIDs: []int64{f.lighting.Options[0].ID}},
			f.angle.ID:    {SelectedOptionIDs: []int64{f.angle.Options[0].ID}},
		},
	}
	if _, err := f.service.SaveItem(ctx, f.worker, f.item.ID, input); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	request, err := f.locks.Request(ctx, f.worker, f.item.ID, "skip test")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if _, err := f.locks.Decide(ctx, f.admin, request.Token, true, ""); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	results, err := f.service.SkipItem(ctx, f.worker, f.item.ID)
	if err != nil {
		t.Fatalf("SkipItem failed: %v", err)
	}
	for _, annotation := range results {
		if annotation.Status != store.StatusCompleted {
			t.Fatalf("expected completed annotations untouched, got %s for category %d", annotation.Status, annotation.CategoryID)
		}
	}
}

func TestHeartbeatIgnoresNonPositiveElapsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.service.Heartbeat(ctx, f.worker, f.item.ID, -5); err != nil {
		t.Fatalf("Heartbeat returned error for malformed input: %v", err)
	}
	annotations, err := f.store.AnnotationsForItemWorker(ctx, f.item.ID, f.worker.ID)
	if err != nil {
		t.Fatalf("AnnotationsForItemWorker failed: %v", err)
	}
	if len(annotations) != 0 {
		t.Fatalf("expected no rows from ignored heartbeat, got %d", len(annotations))
	}
}

func TestHeartbeatCreatesPlaceholderAndTracksRunningTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.service.Heartbeat(ctx, f.worker, f.item.ID, 15); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	// A replayed or late beat carrying a smaller total changes nothing.
	if err := f.service.Heartbeat(ctx, f.worker, f.item.ID, 10); err != nil {
		t.Fatalf("second Heartbeat failed: %v", err)
	}

	annotation, err := f.store.GetAnnotation(ctx, f.item.ID, f.worker.ID, f.lighting.ID)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	if annotation == nil || annotation.Status != store.StatusInProgress {
		t.Fatalf("expected in_progress placeholder on first category, got %#v", annotation)
	}
	if annotation.TimeSpentSeconds != 15 {
		t.Fatalf("expected running total 15, got %d", annotation.TimeSpentSeconds)
	}

	if err := f.service.Heartbeat(ctx, f.worker, f.item.ID, 40); err != nil {
		t.Fatalf("third Heartbeat failed: %v", err)
	}
	annotation, err = f.store.GetAnnotation(ctx, f.item.ID, f.worker.ID, f.lighting.ID)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	if annotation.TimeSpentSeconds != 40 {
		t.Fatalf("expected running total 40, got %d", annotation.TimeSpentSeconds)
	}
}

func TestHeartbeatIgnoresItemClaimedByAnotherWorker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bob := testsupport.NewWorker(t, f.store, "bob")
	tx, err := f.store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := tx.InsertAnnotation(ctx, &store.Annotation{
		ItemID:     f.item.ID,
		WorkerID:   bob.ID,
		CategoryID: f.lighting.ID,
		Status:     store.StatusInProgress,
	}); err != nil {
		t.Fatalf("InsertAnnotation failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// Bob holds the item; alice's beat must not plant an annotation on it.
	if err := f.service.Heartbeat(ctx, f.worker, f.item.ID, 15); err != nil {
		t.Fatalf("Heartbeat returned error for claimed item: %v", err)
	}
	annotations, err := f.store.AnnotationsForItemWorker(ctx, f.item.ID, f.worker.ID)
	if err != nil {
		t.Fatalf("AnnotationsForItemWorker failed: %v", err)
	}
	if len(annotations) != 0 {
		t.Fatalf("expected no rows for alice on bob's item, got %d", len(annotations))
	}
}

func TestMarkImproperBlocksFurtherWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.service.MarkImproper(ctx, f.worker, f.item.ID, "not a pet"); err != nil {
		t.Fatalf("MarkImproper failed: %v", err)
	}

	_, err := f.service.SaveItem(ctx, f.worker, f.item.ID, f.fullSave(5))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for improper item, got %v", err)
	}

	// Heartbeat against an improper item is silently ignored.
	if err := f.service.Heartbeat(ctx, f.worker, f.item.ID, 5); err != nil {
		t.Fatalf("Heartbeat returned error for improper item: %v", err)
	}
}

func TestMarkImproperIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.service.MarkImproper(ctx, f.worker, f.item.ID, "not a pet"); err != nil {
		t.Fatalf("MarkImproper failed: %v", err)
	}
	// Re-marking an already flagged item is an ack, not an error.
	if err := f.service.MarkImproper(ctx, f.worker, f.item.ID, "still not a pet"); err != nil {
		t.Fatalf("second MarkImproper failed: %v", err)
	}

	item, err := f.store.GetItem(ctx, f.item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if !item.Improper {
		t.Fatal("expected item to stay improper")
	}
}

func TestResubmissionCompletesReworkWithoutFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.SaveItem(ctx, f.worker, f.item.ID, f.fullSave(10)); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	tx, err := f.store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	annotation, err := tx.GetAnnotation(ctx, f.item.ID, f.worker.ID, f.lighting.ID)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	annotation.ReviewStatus = store.ReviewReworkRequested
	annotation.ReviewedBy = &f.admin.ID
	if err := tx.UpdateAnnotation(ctx, annotation); err != nil {
		t.Fatalf("UpdateAnnotation failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	request, err := f.locks.Request(ctx, f.worker, f.item.ID, "rework")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if _, err := f.locks.Decide(ctx, f.admin, request.Token, true, ""); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	// A plain resubmission, no rework flag from the caller.
	if _, err := f.service.SaveItem(ctx, f.worker, f.item.ID, f.fullSave(10)); err != nil {
		t.Fatalf("resubmission failed: %v", err)
	}

	reworked, err := f.store.GetAnnotation(ctx, f.item.ID, f.worker.ID, f.lighting.ID)
	if err != nil {
		t.Fatalf("GetAnnotation failed: %v", err)
	}
	if reworked.ReviewStatus != store.ReviewReworkCompleted {
		t.Fatalf("expected rework_completed, got %q", reworked.ReviewStatus)
	}
	if !reworked.IsRework {
		t.Fatal("expected rework flag set on resubmission")
	}
}

func TestSaveItemRejectsUnassignedCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := testsupport.NewCategory(t, f.store, "Occlusion", 3, "Typical")
	input := annotating.SaveInput{
		Categories: map[int64]annotating.CategorySave{
			other.ID: {SelectedOptionIDs: []int64{other.Options[0].ID}},
		},
	}
	_, err := f.service.SaveItem(ctx, f.worker, f.item.ID, input)
	if !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for unassigned category, got %v", err)
	}
}
