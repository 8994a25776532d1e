package editlock

import (
	"context"
	"log/slog"
	"strings"

	"petlabel/internal/logging"
	"petlabel/internal/notifications"
	"petlabel/internal/services"
	"petlabel/internal/store"
)

const component = "editlock"

// Manager decides whether a worker may mutate an item whose annotations are
// already completed, and administers the rework-request protocol. An item is
// locked for a worker once that worker holds at least one completed
// annotation on it; only an approved, unconsumed edit request unlocks the
// next write.
type Manager struct {
	store    *store.Store
	notifier notifications.Service
	logger   *slog.Logger
}

// NewManager wires the lock manager to its store and notifier.
func NewManager(st *store.Store, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		store:    st,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, component),
	}
}

// Status describes the lock and edit-request state of (worker, item).
type Status struct {
	Locked        bool
	CanEdit       bool
	PendingToken  string
	ApprovedToken string
}

// Status reports whether the worker may currently write to the item and
// which of their requests, if any, are outstanding.
func (m *Manager) Status(ctx context.Context, workerID, itemID int64) (*Status, error) {
	item, err := m.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, services.Wrap(nil, component, "status", "load item", err)
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, component, "status", "item does not exist", nil)
	}

	locked, err := m.locked(ctx, workerID, itemID)
	if err != nil {
		return nil, err
	}

	status := &Status{Locked: locked, CanEdit: !locked}
	if pending, err := m.store.PendingEditRequest(ctx, workerID, itemID); err != nil {
		return nil, services.Wrap(nil, component, "status", "load pending request", err)
	} else if pending != nil {
		status.PendingToken = pending.Token
	}
	if approved, err := m.store.ApprovedEditRequest(ctx, workerID, itemID); err != nil {
		return nil, services.Wrap(nil, component, "status", "load approved request", err)
	} else if approved != nil {
		status.ApprovedToken = approved.Token
		status.CanEdit = true
	}
	return status, nil
}

// Request files an edit request for a locked item. At most one pending
// request may exist per (worker, item); duplicates are rejected.
func (m *Manager) Request(ctx context.Context, worker *store.Worker, itemID int64, reason string) (*store.EditRequest, error) {
	item, err := m.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, services.Wrap(nil, component, "request", "load item", err)
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, component, "request", "item does not exist", nil)
	}

	locked, err := m.locked(ctx, worker.ID, itemID)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, services.Wrap(services.ErrValidation, component, "request", "item is not locked; edit it directly", nil)
	}

	pending, err := m.store.PendingEditRequest(ctx, worker.ID, itemID)
	if err != nil {
		return nil, services.Wrap(nil, component, "request", "load pending request", err)
	}
	if pending != nil {
		return nil, services.Wrap(services.ErrConflict, component, "request", "a pending edit request already exists for this item", nil)
	}
	approved, err := m.store.ApprovedEditRequest(ctx, worker.ID, itemID)
	if err != nil {
		return nil, services.Wrap(nil, component, "request", "load approved request", err)
	}
	if approved != nil {
		return nil, services.Wrap(services.ErrConflict, component, "request", "an approved edit request is already waiting to be used", nil)
	}

	request, err := m.store.CreateEditRequest(ctx, worker.ID, itemID, strings.TrimSpace(reason))
	if err != nil {
		return nil, services.Wrap(nil, component, "request", "create request", err)
	}

	m.logger.Info("edit request filed",
		logging.String(logging.FieldWorkerID, worker.Username),
		logging.Int64(logging.FieldItemID, itemID),
		logging.String(logging.FieldRequestID, request.Token),
	)
	if m.notifier != nil {
		if err := m.notifier.NotifyEditRequestFiled(ctx, worker.Username, itemID); err != nil {
			m.logger.Warn("edit request push failed", logging.Error(err))
		}
	}
	return request, nil
}

// Decide moves a pending request to approved or denied. Approval does not
// itself unlock the item; it only authorizes the next write, which consumes
// the grant.
func (m *Manager) Decide(ctx context.Context, reviewer *store.Worker, token string, approve bool, note string) (*store.EditRequest, error) {
	if reviewer == nil || reviewer.Role != store.RoleAdmin {
		return nil, services.Wrap(services.ErrForbidden, component, "decide", "admin role required", nil)
	}

	request, err := m.store.GetEditRequest(ctx, token)
	if err != nil {
		return nil, services.Wrap(nil, component, "decide", "load request", err)
	}
	if request == nil {
		return nil, services.Wrap(services.ErrNotFound, component, "decide", "edit request does not exist", nil)
	}

	target := store.RequestDenied
	if approve {
		target = store.RequestApproved
	}
	if !store.EditRequestTransitionAllowed(request.Status, target) {
		return nil, services.Wrap(services.ErrConflict, component, "decide", "request already decided", nil)
	}

	tx, err := m.store.Begin(ctx)
	if err != nil {
		return nil, services.Wrap(nil, component, "decide", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if approve {
		grant, err := tx.ApprovedEditRequest(ctx, request.WorkerID, request.ItemID)
		if err != nil {
			return nil, services.Wrap(nil, component, "decide", "load approved request", err)
		}
		if grant != nil {
			return nil, services.Wrap(services.ErrConflict, component, "decide", "an approved edit request is already waiting to be used", nil)
		}
	}

	if err := tx.DecideEditRequest(ctx, request.ID, target, strings.TrimSpace(note), reviewer.ID); err != nil {
		return nil, services.Wrap(nil, component, "decide", "persist decision", err)
	}

	kind := store.NotifyEditDenied
	message := "Your edit request was denied"
	if approve {
		kind = store.NotifyEditApproved
		message = "Your edit request was approved; your next save will apply"
	}
	if err := tx.AddNotification(ctx, request.WorkerID, kind, message, &request.ItemID); err != nil {
		return nil, services.Wrap(nil, component, "decide", "write notification", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, services.Wrap(nil, component, "decide", "commit decision", err)
	}

	m.logger.Info("edit request decided",
		logging.String(logging.FieldRequestID, request.Token),
		logging.Bool("approved", approve),
	)
	if m.notifier != nil {
		worker, err := m.store.GetWorker(ctx, request.WorkerID)
		username := ""
		if err == nil && worker != nil {
			username = worker.Username
		}
		if err := m.notifier.NotifyEditRequestDecided(ctx, username, request.ItemID, approve); err != nil {
			m.logger.Warn("edit decision push failed", logging.Error(err))
		}
	}

	return m.store.GetEditRequest(ctx, token)
}

// Authorize checks, inside the caller's transaction, whether the worker may
// mutate the item. It returns the approved request the write must consume,
// or nil when the item is not locked for this worker. A locked item without
// a consumable grant yields ErrLocked.
func (m *Manager) Authorize(ctx context.Context, tx *store.Tx, workerID, itemID int64) (*store.EditRequest, error) {
	completed, err := tx.CompletedCount(ctx, workerID, itemID)
	if err != nil {
		return nil, services.Wrap(nil, component, "authorize", "count completed", err)
	}
	if completed == 0 {
		return nil, nil
	}

	grant, err := tx.ApprovedEditRequest(ctx, workerID, itemID)
	if err != nil {
		return nil, services.Wrap(nil, component, "authorize", "load approved request", err)
	}
	if grant == nil {
		return nil, services.Wrap(services.ErrLocked, component, "authorize", "item is locked; request an edit to modify it", nil)
	}
	return grant, nil
}

// ListForWorker returns the worker's edit requests, newest first.
func (m *Manager) ListForWorker(ctx context.Context, workerID int64) ([]*store.EditRequest, error) {
	requests, err := m.store.ListEditRequestsForWorker(ctx, workerID)
	if err != nil {
		return nil, services.Wrap(nil, component, "list", "load requests", err)
	}
	return requests, nil
}

// ListPending returns every pending request, oldest first.
func (m *Manager) ListPending(ctx context.Context) ([]*store.EditRequest, error) {
	requests, err := m.store.ListPendingEditRequests(ctx)
	if err != nil {
		return nil, services.Wrap(nil, component, "list pending", "load requests", err)
	}
	return requests, nil
}

func (m *Manager) locked(ctx context.Context, workerID, itemID int64) (bool, error) {
	completed, err := m.store.CompletedCount(ctx, workerID, itemID)
	if err != nil {
		return false, services.Wrap(nil, component, "locked", "count completed", err)
	}
	return completed > 0, nil
}
