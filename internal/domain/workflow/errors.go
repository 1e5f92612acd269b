package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition is returned when the action is not legal from the current status
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a stored status is unknown
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a transition condition fails
	ErrGuardFailed = errors.New("guard condition failed")

	ErrNotAuthenticated          = errors.New("not authenticated")
	ErrNotAuthorized             = errors.New("not authorized")
	ErrValidationFailed          = errors.New("validation failed")
	ErrMotifRequired             = errors.New("motif required")
	ErrConcurrentModification    = errors.New("concurrent modification")
	ErrReferenceAllocationFailed = errors.New("reference allocation failed")
	ErrDownstreamCreationFailed  = errors.New("downstream creation failed")
	ErrPrerequisiteNotMet        = errors.New("prerequisite not met")
	ErrNotFound                  = errors.New("not found")
)

// ValidationError lists the required fields missing on a document
type ValidationError struct {
	Missing []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("Champs obligatoires manquants: %s", strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		return e.Reason
	}
	return ErrValidationFailed.Error()
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// PrerequisiteError is returned when a chain step is entered too early
type PrerequisiteError struct {
	Code    string
	Message string
}

func (e *PrerequisiteError) Error() string {
	return e.Message
}

func (e *PrerequisiteError) Unwrap() error {
	return ErrPrerequisiteNotMet
}
