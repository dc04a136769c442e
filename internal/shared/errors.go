package shared

import "errors"

// Error kinds shared by the review workflow. Domain code wraps them with
// fmt.Errorf("%w: ...") and callers match with errors.Is.
var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition indicates a forbidden state change.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrPreconditionFailed is the close-gate flavour of ErrInvalidTransition.
	ErrPreconditionFailed = wrapKind(ErrInvalidTransition, "precondition failed")
	// ErrConfigurationMissing indicates a period lacks required configuration.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrReviewerConflict indicates an asset group already has another reviewer.
	ErrReviewerConflict = errors.New("reviewer conflict")
	// ErrAlreadyDelegated indicates the item already has an active delegation.
	ErrAlreadyDelegated = errors.New("already delegated")
	// ErrPeriodClosed indicates a mutation against a closed period.
	ErrPeriodClosed = errors.New("period closed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the caller is outside the resource's company scope.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a missing or invalid bearer identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBatchInProgress indicates another mass operation holds the period lock.
	ErrBatchInProgress = errors.New("batch already in progress")
)

type kindError struct {
	parent error
	msg    string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.parent }

func wrapKind(parent error, msg string) error {
	return &kindError{parent: parent, msg: msg}
}
