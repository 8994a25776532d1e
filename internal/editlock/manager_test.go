package editlock_test

import (
	"context"
	"errors"
	"testing"

	"petlabel/internal/editlock"
	"petlabel/internal/services"
	"petlabel/internal/store"
	"petlabel/internal/testsupport"
)

type fixture struct {
	store    *store.Store
	manager  *editlock.Manager
	worker   *store.Worker
	admin    *store.Worker
	category *store.Category
	item     *store.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	f := &fixture{
		store:    st,
		manager:  editlock.NewManager(st, nil, nil),
		worker:   testsupport.NewWorker(t, st, "alice"),
		admin:    testsupport.NewAdmin(t, st, "root"),
		category: testsupport.NewCategory(t, st, "Lighting", 1, "Typical"),
		item:     testsupport.NewItem(t, st, "pet_001.jpg"),
	}
	testsupport.Assign(t, st, f.worker.ID, f.category.ID)
	return f
}

func (f *fixture) complete(t *testing.T) {
	t.Helper()

	ctx := context.Background()
	tx, err := f.store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := tx.InsertAnnotation(ctx, &store.Annotation{
		ItemID:     f.item.ID,
		WorkerID:   f.worker.ID,
		CategoryID: f.category.ID,
		Status:     store.StatusCompleted,
	}); err != nil {
		t.Fatalf("InsertAnnotation failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func TestRequestRequiresLockedItem(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Request(context.Background(), f.worker, f.item.ID, "too early")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for unlocked item, got %v", err)
	}
}

func TestRequestRejectsDuplicatePending(t *testing.T) {
	f := newFixture(t)
	f.complete(t)
	ctx := context.Background()

	if _, err := f.manager.Request(ctx, f.worker, f.item.ID, "first"); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	_, err := f.manager.Request(ctx, f.worker, f.item.ID, "second")
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate pending, got %v", err)
	}
}

func TestRequestRejectsOutstandingGrant(t *testing.T) {
	f := newFixture(t)
	f.complete(t)
	ctx := context.Background()

	request, err := f.manager.Request(ctx, f.worker, f.item.ID, "first")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if _, err := f.manager.Decide(ctx, f.admin, request.Token, true, ""); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	// The grant has not been consumed yet; a second request would mint a
	// second live grant.
	_, err = f.manager.Request(ctx, f.worker, f.item.ID, "second")
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict with grant outstanding, got %v", err)
	}
}

func TestDecideRejectsApprovalOverOutstandingGrant(t *testing.T) {
	f := newFixture(t)
	f.complete(t)
	ctx := context.Background()

	first, err := f.manager.Request(ctx, f.worker, f.item.ID, "first")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	// File a second pending request before the first is approved, then
	// approve the first. Approving the second must now fail.
	second, err := f.store.CreateEditRequest(ctx, f.worker.ID, f.item.ID, "second")
	if err != nil {
		t.Fatalf("CreateEditRequest failed: %v", err)
	}
	if _, err := f.manager.Decide(ctx, f.admin, first.Token, true, ""); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	if _, err := f.manager.Decide(ctx, f.admin, second.Token, true, ""); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict approving over live grant, got %v", err)
	}
	// Denying it is still allowed.
	denied, err := f.manager.Decide(ctx, f.admin, second.Token, false, "grant already out")
	if err != nil {
		t.Fatalf("Decide deny failed: %v", err)
	}
	if denied.Status != store.RequestDenied {
		t.Fatalf("expected denied request, got %s", denied.Status)
	}
}

func TestDecideRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.complete(t)
	ctx := context.Background()

	request, err := f.manager.Request(ctx, f.worker, f.item.ID, "reason")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	_, err = f.manager.Decide(ctx, f.worker, request.Token, true, "")
	if !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestDecideDenyNotifiesWorker(t *testing.T) {
	f := newFixture(t)
	f.complete(t)
	ctx := context.Background()

	request, err := f.manager.Request(ctx, f.worker, f.item.ID, "reason")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	decided, err := f.manager.Decide(ctx, f.admin, request.Token, false, "wrong item")
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if decided.Status != store.RequestDenied || decided.ReviewNote != "wrong item" {
		t.Fatalf("unexpected decided request: %#v", decided)
	}

	// Denied requests stay decided.
	if _, err := f.manager.Decide(ctx, f.admin, request.Token, true, ""); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict re-deciding, got %v", err)
	}

	notes, err := f.store.ListNotifications(ctx, f.worker.ID, true)
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(notes) != 1 || notes[0].Type != store.NotifyEditDenied {
		t.Fatalf("expected denial notification, got %#v", notes)
	}
}

func TestStatusReportsLockAndGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.manager.Status(ctx, f.worker.ID, f.item.ID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Locked || !status.CanEdit {
		t.Fatalf("expected unlocked status, got %#v", status)
	}

	f.complete(t)
	status, err = f.manager.Status(ctx, f.worker.ID, f.item.ID)
	if err != nil {
		t.Fatalf("Status after completion failed: %v", err)
	}
	if !status.Locked || status.CanEdit {
		t.Fatalf("expected locked status, got %#v", status)
	}

	request, err := f.manager.Request(ctx, f.worker, f.item.ID, "fix")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	status, err = f.manager.Status(ctx, f.worker.ID, f.item.ID)
	if err != nil {
		t.Fatalf("Status with pending failed: %v", err)
	}
	if status.PendingToken != request.Token {
		t.Fatalf("expected pending token, got %#v", status)
	}

	if _, err := f.manager.Decide(ctx, f.admin, request.Token, true, ""); err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	status, err = f.manager.Status(ctx, f.worker.ID, f.item.ID)
	if err != nil {
		t.Fatalf("Status with grant failed: %v", err)
	}
	if status.ApprovedToken != request.Token || !status.CanEdit {
		t.Fatalf("expected consumable grant, got %#v", status)
	}

	_, err = f.manager.Status(ctx, f.worker.ID, 9999)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing item, got %v", err)
	}
}
