package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Failure taxonomy for ledger interactions. The client classifies raw
// node errors into these; it does not interpret the business meaning of
// a revert (that is the command handlers' job).
var (
	// ErrRejected: the contract refused the state transition (revert).
	ErrRejected = errors.New("ledger rejected transaction")
	// ErrUnavailable: node unreachable, RPC failure, or timeout. For
	// writes this outcome is ambiguous; the transaction may still land.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrGasExceeded: the transaction ran out of gas or broke a gas bound.
	ErrGasExceeded = errors.New("ledger gas exceeded")
	// ErrDecode: a read-only call returned an unexpected shape.
	ErrDecode = errors.New("ledger response decode failed")
	// ErrNonce: the node refused the sequence number (nonce too low or
	// replacement underpriced). The submission queue resyncs on this.
	ErrNonce = errors.New("nonce conflict")
)

// RejectedError carries the revert reason when one could be recovered.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return "ledger rejected transaction"
	}
	return "ledger rejected transaction: " + e.Reason
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

// classifySend maps a raw SendTransaction error onto the taxonomy.
// Node implementations disagree on wording, so this is substring-based.
func classifySend(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "replacement transaction underpriced"),
		strings.Contains(msg, "nonce is too low"):
		return fmt.Errorf("%w: %v", ErrNonce, err)
	case strings.Contains(msg, "revert"):
		return &RejectedError{Reason: extractRevertReason(err.Error())}
	case strings.Contains(msg, "intrinsic gas too low"),
		strings.Contains(msg, "exceeds block gas limit"),
		strings.Contains(msg, "out of gas"),
		strings.Contains(msg, "insufficient funds for gas"):
		return fmt.Errorf("%w: %v", ErrGasExceeded, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// extractRevertReason pulls the human-readable reason out of a node
// error message, e.g. "execution reverted: Batch already exists" or
// ganache's "VM Exception while processing transaction: revert Batch
// already exists".
func extractRevertReason(msg string) string {
	for _, marker := range []string{"execution reverted:", "revert:", "revert "} {
		if i := strings.Index(strings.ToLower(msg), marker); i >= 0 {
			return strings.TrimSpace(msg[i+len(marker):])
		}
	}
	return ""
}
