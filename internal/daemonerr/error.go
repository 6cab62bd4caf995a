// Package daemonerr classifies every error the daemon can produce into the
// kinds enumerated in the error handling design: Config, Node, Durability,
// Reorg, DeepReorg, DecodeReject, WrongNetwork, WalletUninitialized,
// InsufficientFunds, DustChange, StaleCursor and DirLocked. Each operation's
// signature is expected to enumerate the kinds it can raise; recoverable
// kinds are matched at the scanner loop boundary, everything else is fatal.
package daemonerr

import "fmt"

// Kind names one of the error classes from the error handling design.
type Kind string

const (
	Config              Kind = "Config"
	Node                Kind = "Node"
	Durability          Kind = "Durability"
	Reorg               Kind = "Reorg"
	DeepReorg           Kind = "DeepReorg"
	DecodeReject        Kind = "DecodeReject"
	WrongNetwork        Kind = "WrongNetwork"
	WalletUninitialized Kind = "WalletUninitialized"
	InsufficientFunds   Kind = "InsufficientFunds"
	DustChange          Kind = "DustChange"
	StaleCursor         Kind = "StaleCursor"
	DirLocked           Kind = "DirLocked"
)

// Error is the tagged-variant error type every daemon component returns.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a daemonerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if asErr, ok := err.(*Error); ok {
		e = asErr
	} else if ok := errorsAs(err, &e); !ok {
		return false
	}
	return e != nil && e.Kind == kind
}

// errorsAs mirrors errors.As without importing it twice across call sites
// that already alias "errors" to something else.
func errorsAs(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Retryable reports whether the scanner should back off and retry rather
// than crash. Only Node errors are retryable; Reorg is handled in-band by
// the scanner's own rollback logic and is not retried as a generic error.
func Retryable(err error) bool {
	return Is(err, Node)
}

// ExitCode maps an error's Kind to the CLI exit code from the external
// interfaces design: 0 success, 1 config/input, 2 node unreachable,
// 3 wallet uninitialized, 4 decode invariant violation, 5 durability error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if asErr, ok := err.(*Error); ok {
		e = asErr
	} else {
		errorsAs(err, &e)
	}
	if e == nil {
		return 1
	}
	switch e.Kind {
	case Node:
		return 2
	case WalletUninitialized:
		return 3
	case DecodeReject:
		return 4
	case Durability:
		return 5
	case Config, WrongNetwork, InsufficientFunds, DustChange, DirLocked:
		return 1
	default:
		return 1
	}
}
