package types

import (
	"errors"
	"fmt"
)

// Error kinds. Callers branch on these with errors.Is; the HTTP layer maps
// each kind to a status code.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidReference  = errors.New("invalid reference")
	ErrInvalidDelta      = errors.New("invalid delta")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflicting update")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnavailable       = errors.New("storage unavailable")
)

var (
	ErrProjectNotFound      = fmt.Errorf("project %w", ErrNotFound)
	ErrNeedNotFound         = fmt.Errorf("need %w", ErrNotFound)
	ErrDonationNotFound     = fmt.Errorf("donation %w", ErrNotFound)
	ErrCategoryNotFound     = fmt.Errorf("category %w", ErrNotFound)
	ErrOrganizationNotFound = fmt.Errorf("organization %w", ErrNotFound)
	ErrDonorNotFound        = fmt.Errorf("donor %w", ErrNotFound)

	ErrInvalidQuantity     = fmt.Errorf("%w: quantity must be a positive integer no larger than %d", ErrValidation, MaxQuantity)
	ErrProjectNotAccepting = fmt.Errorf("%w: project is not accepting donations", ErrValidation)
)

// ValidationError reports a rejected field before any write happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
