package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound marks lookups for absent items, annotations, or requests.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks operations outside a worker's assignment or queue.
	ErrForbidden = errors.New("forbidden")
	// ErrLocked marks writes against a completed item without a consumable
	// edit approval.
	ErrLocked = errors.New("locked")
	// ErrValidation marks saves rejected by commit-time validation.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks duplicate pending edit requests and similar clashes.
	ErrConflict = errors.New("conflict")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		return fmt.Errorf("%s: %w", detail, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// MissingSelectionsError rejects a multi-category save that left required
// categories without a selection. The whole save is discarded; Categories
// names every unmet category.
type MissingSelectionsError struct {
	Categories []string
}

func (e *MissingSelectionsError) Error() string {
	return fmt.Sprintf("missing selections for: %s", strings.Join(e.Categories, ", "))
}

// Is lets errors.Is(err, ErrValidation) match missing-selection failures.
func (e *MissingSelectionsError) Is(target error) bool {
	return target == ErrValidation
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
