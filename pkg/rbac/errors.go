package rbac

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/access"
)

var (
	// ErrAccessDenied is returned when the actor lacks the requested access type.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// AccessDeniedError describes a denied check. It unwraps to ErrAccessDenied.
type AccessDeniedError struct {
	Op             access.Type
	OrganizationID int64
	ItemtypeID     int64
	ItemID         *int64
}

func (e *AccessDeniedError) Error() string {
	if e.ItemID != nil {
		return fmt.Sprintf("%s: %s on itemtype %d item %d in organization %d",
			ErrAccessDenied, e.Op, e.ItemtypeID, *e.ItemID, e.OrganizationID)
	}
	return fmt.Sprintf("%s: %s on itemtype %d in organization %d",
		ErrAccessDenied, e.Op, e.ItemtypeID, e.OrganizationID)
}

func (e *AccessDeniedError) Unwrap() error {
	return ErrAccessDenied
}

// IsAccessDenied reports whether err is a denial rather than a failure to decide.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// StatusForError maps an evaluator or store error to an HTTP status code
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
