package lifecycle

import "errors"

var (
	// ErrInvalidTransition is returned when no catalog rule has the (from, to) edge.
	ErrInvalidTransition = errors.New("Invalid transition")

	ErrManualOverrideNotAllowed = errors.New("manual override not allowed for this transition")
	ErrCustomerNotFound         = errors.New("customer not found")
	ErrStaleTag                 = errors.New("current tag changed concurrently")
	ErrUnknownTag               = errors.New("unknown status tag")
	ErrReviewNotFound           = errors.New("review not found")
	ErrReviewResolved           = errors.New("review already resolved")
	ErrNothingToApply           = errors.New("review has no recommended transition")
)
