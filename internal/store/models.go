package store

import (
	"strings"
	"time"
)

// Role distinguishes labeling workers from reviewing admins.
type Role string

const (
	RoleWorker Role = "worker"
	RoleAdmin  Role = "admin"
)

// ParseRole converts a string into a known Role.
func ParseRole(value string) (Role, bool) {
	normalized := Role(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case RoleWorker, RoleAdmin:
		return normalized, true
	}
	return "", false
}

// AnnotationStatus represents the lifecycle of a (worker, item, category)
// annotation record.
type AnnotationStatus string

const (
	StatusInProgress AnnotationStatus = "in_progress"
	StatusCompleted  AnnotationStatus = "completed"
	StatusSkipped    AnnotationStatus = "skipped"
)

var annotationStatuses = map[AnnotationStatus]struct{}{
	StatusInProgress: {},
	StatusCompleted:  {},
	StatusSkipped:    {},
}

// ParseAnnotationStatus converts a string into a known AnnotationStatus.
func ParseAnnotationStatus(value string) (AnnotationStatus, bool) {
	normalized := AnnotationStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := annotationStatuses[normalized]
	return normalized, ok
}

// annotationTransitions lists the permitted status moves. Completion is
// monotonic: completed never goes back to skipped, and a save attempting that
// downgrade no-ops rather than failing.
var annotationTransitions = map[AnnotationStatus][]AnnotationStatus{
	StatusInProgress: {StatusInProgress, StatusCompleted, StatusSkipped},
	StatusSkipped:    {StatusSkipped, StatusInProgress, StatusCompleted},
	StatusCompleted:  {StatusCompleted},
}

// AnnotationTransitionAllowed reports whether from may move to to.
func AnnotationTransitionAllowed(from, to AnnotationStatus) bool {
	for _, allowed := range annotationTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ReviewStatus tracks the admin review lifecycle of a completed annotation.
// The empty string means "not yet reviewed".
type ReviewStatus string

const (
	ReviewNone            ReviewStatus = ""
	ReviewApproved        ReviewStatus = "approved"
	ReviewReworkRequested ReviewStatus = "rework_requested"
	ReviewReworkCompleted ReviewStatus = "rework_completed"
)

// ParseReviewStatus converts a string into a known ReviewStatus. The empty
// string parses to ReviewNone.
func ParseReviewStatus(value string) (ReviewStatus, bool) {
	normalized := ReviewStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case ReviewNone, ReviewApproved, ReviewReworkRequested, ReviewReworkCompleted:
		return normalized, true
	}
	return "", false
}

var reviewTransitions = map[ReviewStatus][]ReviewStatus{
	ReviewNone:            {ReviewApproved, ReviewReworkRequested},
	ReviewApproved:        {ReviewApproved, ReviewReworkRequested},
	ReviewReworkRequested: {ReviewReworkCompleted},
	ReviewReworkCompleted: {ReviewApproved, ReviewReworkRequested},
}

// ReviewTransitionAllowed reports whether from may move to to.
func ReviewTransitionAllowed(from, to ReviewStatus) bool {
	for _, allowed := range reviewTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// EditRequestStatus tracks the lock-and-request protocol for revising
// completed work.
type EditRequestStatus string

const (
	RequestPending  EditRequestStatus = "pending"
	RequestApproved EditRequestStatus = "approved"
	RequestDenied   EditRequestStatus = "denied"
	RequestUsed     EditRequestStatus = "used"
)

// ParseEditRequestStatus converts a string into a known EditRequestStatus.
func ParseEditRequestStatus(value string) (EditRequestStatus, bool) {
	normalized := EditRequestStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case RequestPending, RequestApproved, RequestDenied, RequestUsed:
		return normalized, true
	}
	return "", false
}

var editRequestTransitions = map[EditRequestStatus][]EditRequestStatus{
	RequestPending:  {RequestApproved, RequestDenied},
	RequestApproved: {RequestUsed},
}

// EditRequestTransitionAllowed reports whether from may move to to.
func EditRequestTransitionAllowed(from, to EditRequestStatus) bool {
	for _, allowed := range editRequestTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Worker is a labeling account. Workers are deactivated rather than deleted
// so annotation history keeps its author.
type Worker struct {
	ID          int64
	Username    string
	FullName    string
	Role        Role
	Active      bool
	CreatedAt   time.Time
	CategoryIDs []int64
}

// Category is one labeling dimension with its ordered options. The catalog is
// static during a session; only admin tooling mutates it.
type Category struct {
	ID           int64
	Name         string
	DisplayOrder int
	Options      []Option
}

// Option is a selectable answer within a category.
type Option struct {
	ID           int64
	CategoryID   int64
	Label        string
	IsTypical    bool
	DisplayOrder int
}

// Item is an image in the shared pool.
type Item struct {
	ID             int64
	Filename       string
	URL            string
	Improper       bool
	ImproperReason string
	ImproperBy     *int64
	ImproperAt     *time.Time
	CreatedAt      time.Time
}

// Annotation is the unique record for one (item, worker, category) triple.
type Annotation struct {
	ID                int64
	ItemID            int64
	WorkerID          int64
	CategoryID        int64
	Status            AnnotationStatus
	IsDuplicate       *bool
	TimeSpentSeconds  int64
	IsRework          bool
	ReworkTimeSeconds int64
	ReviewStatus      ReviewStatus
	ReviewNote        string
	ReviewedBy        *int64
	ReviewedAt        *time.Time
	SelectedOptionIDs []int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EditRequest asks an admin to unlock a completed item for one more write.
// Token is the identifier surfaced to callers.
type EditRequest struct {
	ID         int64
	Token      string
	WorkerID   int64
	ItemID     int64
	Reason     string
	Status     EditRequestStatus
	ReviewNote string
	ReviewedBy *int64
	ReviewedAt *time.Time
	UsedAt     *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Notification is an event addressed to a worker. The core only writes these;
// delivery belongs to an external collaborator.
type Notification struct {
	ID        int64
	WorkerID  int64
	Type      string
	Message   string
	ItemID    *int64
	Read      bool
	CreatedAt time.Time
}

// Notification types written by the labeling services.
const (
	NotifyEditApproved    = "edit_request_approved"
	NotifyEditDenied      = "edit_request_denied"
	NotifyReworkRequested = "rework_requested"
	NotifyReviewApproved  = "review_approved"
)
