package service

import (
	"errors"
	"fmt"

	"github.com/creatorops/rotor/internal/models"
)

// Domain error kinds. Handlers map these onto HTTP statuses; everything
// the dashboard sees is flattened to {success:false, error:<message>}.
var (
	ErrDuplicateAccount   = errors.New("account already connected for this platform identity")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountInUse       = errors.New("account has an in-flight upload job")
	ErrInvalidAssignment  = errors.New("invalid rotation assignment")
	ErrDuplicateJob       = errors.New("upload job already exists for this source")
	ErrInvalidTransition  = errors.New("invalid autopilot transition")
	ErrClaimConflict      = errors.New("upload job already claimed")
	ErrQuotaExhausted     = errors.New("daily upload limit reached")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// StepError is a typed pipeline step failure. Reason feeds the retry and
// health bookkeeping; Err carries the underlying cause for logs.
type StepError struct {
	Step   string
	Reason models.FailReason
	Err    error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s step failed (%s): %v", e.Step, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s step failed (%s)", e.Step, e.Reason)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// NewStepError wraps err as a typed failure of the named pipeline step.
func NewStepError(step string, reason models.FailReason, err error) *StepError {
	return &StepError{Step: step, Reason: reason, Err: err}
}

// AsStepError unwraps err into a StepError if one is in the chain.
func AsStepError(err error) (*StepError, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr, true
	}
	return nil, false
}
