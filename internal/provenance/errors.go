package provenance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Hidas2004/duanmoihomnay/internal/ledger"
)

// Domain error taxonomy surfaced to the API layer. Validation failures
// never reach the ledger; the rest re-classify ledger rejections where a
// domain meaning is derivable.
var (
	ErrBatchNotFound      = errors.New("batch not found")
	ErrBatchAlreadyExists = errors.New("batch already exists")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrCommandRejected    = errors.New("command rejected by ledger")
)

// ValidationError names the offending request field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q is required", e.Field)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// classifyRejection maps a ledger revert onto the domain taxonomy using
// the recovered reason. Contract require() messages are free text, so
// matching is substring-based; anything unrecognized stays a generic
// ErrCommandRejected.
func classifyRejection(err error) error {
	var rej *ledger.RejectedError
	if !errors.As(err, &rej) {
		return fmt.Errorf("%w: %v", ErrCommandRejected, err)
	}
	reason := strings.ToLower(rej.Reason)
	switch {
	case strings.Contains(reason, "already exists"):
		return fmt.Errorf("%w: %s", ErrBatchAlreadyExists, rej.Reason)
	case strings.Contains(reason, "does not exist"),
		strings.Contains(reason, "not exist"),
		strings.Contains(reason, "not found"):
		return fmt.Errorf("%w: %s", ErrBatchNotFound, rej.Reason)
	case strings.Contains(reason, "transition"),
		strings.Contains(reason, "invalid status"):
		return fmt.Errorf("%w: %s", ErrInvalidTransition, rej.Reason)
	default:
		return fmt.Errorf("%w: %s", ErrCommandRejected, rej.Reason)
	}
}
