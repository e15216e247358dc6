// Package dlcerr defines the error taxonomy shared across the DLC engine.
package dlcerr

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Kind enumerates the error categories a caller of the core needs to be able
// to distinguish, per the error handling design.
type Kind uint8

const (
	// InvalidParameters indicates a caller supplied data that violates a
	// documented precondition.
	InvalidParameters Kind = iota

	// InvalidState indicates the requested operation isn't permitted in
	// the contract's current lifecycle state.
	InvalidState

	// CryptoVerification indicates an ECDSA/adaptor/Schnorr signature
	// failed verification.
	CryptoVerification

	// BlockchainError indicates a transport or data error surfaced by the
	// Blockchain collaborator.
	BlockchainError

	// WalletError indicates a UTXO selection or PSBT signing failure
	// surfaced by the Wallet collaborator.
	WalletError

	// StorageError indicates a persistence failure surfaced by the
	// Storage collaborator.
	StorageError

	// OracleError indicates an announcement/attestation fetch or
	// validation failure.
	OracleError

	// NotFound indicates the requested id isn't present in storage.
	NotFound
)

// String returns a human readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case InvalidParameters:
		return "InvalidParameters"
	case InvalidState:
		return "InvalidState"
	case CryptoVerification:
		return "CryptoVerification"
	case BlockchainError:
		return "BlockchainError"
	case WalletError:
		return "WalletError"
	case StorageError:
		return "StorageError"
	case OracleError:
		return "OracleError"
	case NotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every core operation. It
// carries a Kind so callers can branch on category, plus a message and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, enabling
// errors.Is(err, dlcerr.New(dlcerr.InvalidState, "")) style checks.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a new Error of the given kind with a formatted message. The
// underlying go-errors wrap captures a stack trace for unexpected faults
// surfaced via Wrap below; New itself is for expected, documented
// precondition violations and doesn't need one.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an existing error with a Kind and a stack trace, for
// unexpected faults bubbling up from a collaborator call.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	if cause == nil {
		return New(kind, format, args...)
	}
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   goerrors.Wrap(cause, 1),
	}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if de, ok := err.(*Error); ok {
			e = de
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	if e == nil {
		return 0, false
	}
	return e.Kind, true
}
