package review

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

var (
	ErrPeriodNotFound     = fmt.Errorf("%w: review period", shared.ErrNotFound)
	ErrItemNotFound       = fmt.Errorf("%w: review item", shared.ErrNotFound)
	ErrDelegationNotFound = fmt.Errorf("%w: delegation", shared.ErrNotFound)
	ErrCommentNotFound    = fmt.Errorf("%w: comment", shared.ErrNotFound)

	ErrPeriodClosed      = fmt.Errorf("%w: review period is closed", shared.ErrPeriodClosed)
	ErrBaseDateMissing   = fmt.Errorf("%w: period has no new useful-life base date", shared.ErrConfigurationMissing)
	ErrAlreadyDelegated  = fmt.Errorf("%w: item already has an active delegation", shared.ErrAlreadyDelegated)
	ErrReviewerConflict  = fmt.Errorf("%w: asset group is delegated to another reviewer", shared.ErrReviewerConflict)
	ErrActivePeriod      = fmt.Errorf("%w: company already has a review period in progress", shared.ErrValidation)
	ErrPeriodYearTaken   = fmt.Errorf("%w: company already has a review period for this year", shared.ErrValidation)
	ErrJustification     = fmt.Errorf("%w: justification required", shared.ErrValidation)
	ErrOutsideCompany    = fmt.Errorf("%w: review period belongs to another company", shared.ErrForbidden)
	ErrItemLocked        = fmt.Errorf("%w: item already approved", shared.ErrInvalidTransition)
	ErrPeriodNotOpen     = fmt.Errorf("%w: review period is not open", shared.ErrInvalidTransition)
	ErrPeriodAlreadyDone = fmt.Errorf("%w: review period already closed", shared.ErrInvalidTransition)
	ErrConcurrentChange  = fmt.Errorf("%w: concurrent change, retry the request", shared.ErrInvalidTransition)
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{shared.ErrValidation}, args...)...)
}

func transitionf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{shared.ErrInvalidTransition}, args...)...)
}

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{shared.ErrPreconditionFailed}, args...)...)
}
