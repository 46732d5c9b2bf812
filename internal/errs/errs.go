// See the file LICENSE for licensing terms.

// Package errs centralizes the typed error kinds shared by every engine
// package, mirroring the teacher's vmerrs package: exported sentinel values
// wrapped with %w instead of ad hoc error strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an engine-facing error so a caller can switch on it
// without string matching.
type Kind string

const (
	DecodeFailed       Kind = "DecodeFailed"
	TxTooLarge         Kind = "TxTooLarge"
	UnsupportedTxKind  Kind = "UnsupportedTxKind"
	TxAlreadySeen      Kind = "TxAlreadySeen"
	InvalidFee         Kind = "InvalidFee"
	NonceTooLow        Kind = "NonceTooLow"
	NonceGap           Kind = "NonceGap"
	NonceConflict      Kind = "NonceConflict"
	QueueFull          Kind = "QueueFull"
	SenderQueueFull    Kind = "SenderQueueFull"
	PrincipalQueueFull Kind = "PrincipalQueueFull"
	ExecFailed         Kind = "ExecFailed"
	NoExecutableTx     Kind = "NoExecutableTx"
	QueueEmpty         Kind = "QueueEmpty"
	InvalidLimit       Kind = "InvalidLimit"
	InvalidArgument    Kind = "InvalidArgument"
	BlobErrorKind      Kind = "BlobError"
	TrailingBytes      Kind = "TrailingBytes"
	RangeTooLarge      Kind = "RangeTooLarge"
	TooManyResults     Kind = "TooManyResults"
	UnsupportedFilter  Kind = "UnsupportedFilter"
	Pruned             Kind = "Pruned"
	Internal           Kind = "Internal"
)

// ExecReason further classifies ExecFailed.
type ExecReason string

const (
	ReasonRevert            ExecReason = "Revert"
	ReasonOutOfGas          ExecReason = "OutOfGas"
	ReasonInvalidOpcode     ExecReason = "InvalidOpcode"
	ReasonStackOverflow     ExecReason = "StackOverflow"
	ReasonStackUnderflow    ExecReason = "StackUnderflow"
	ReasonInvalidJump       ExecReason = "InvalidJump"
	ReasonStaticStateChange ExecReason = "StaticStateChange"
	ReasonPrecompileError   ExecReason = "PrecompileError"
	ReasonUnknown           ExecReason = "Unknown"
	ReasonTxError           ExecReason = "TxError"
	ReasonInvalidL1SpecId   ExecReason = "InvalidL1SpecId"
	ReasonSystemTxBackoff   ExecReason = "SystemTxBackoff"
)

// Error is the engine's typed error value. Kind is always set; Reason is
// only meaningful when Kind == ExecFailed.
type Error struct {
	Kind   Kind
	Reason ExecReason
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		if e.Msg != "" {
			return fmt.Sprintf("%s(%s): %s", e.Kind, e.Reason, e.Msg)
		}
		return fmt.Sprintf("%s(%s)", e.Kind, e.Reason)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed error with no wrapped cause.
func New(k Kind, msg string) error {
	return &Error{Kind: k, Msg: msg}
}

// Wrap builds a typed error that wraps an underlying cause via %w.
func Wrap(k Kind, msg string, cause error) error {
	return &Error{Kind: k, Msg: msg, Err: fmt.Errorf("%s: %w", msg, cause)}
}

// Exec builds an ExecFailed error with a classified reason.
func Exec(reason ExecReason, msg string) error {
	return &Error{Kind: ExecFailed, Reason: reason, Msg: msg}
}

// As recovers the typed *Error from any error in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, k Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == k
}
