// Package errs defines the documentation pipeline's error taxonomy.
//
// Each sentinel is the Kind of an *Error built by New or Wrap, which adds
// the phase and a message; errors.Is matches an *Error against its Kind.
// IsFatal reports which kinds are fatal and which are recoverable.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the taxonomy. Wrap these, never return them bare,
// so phase/detail context travels with the error.
var (
	// ErrValidationFailure marks bad input: malformed repo URL, empty
	// corpus, over-budget request. Never retried.
	ErrValidationFailure = errors.New("validation failure")
	// ErrNotFound marks a missing index, checkpoint, or repository.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks a timeout, 5xx, or connection drop eligible for
	// retry inside the owning subsystem.
	ErrTransient = errors.New("transient error")
	// ErrUpstreamUnavailable marks a reachable-but-unusable endpoint
	// (model not loaded, 400 on chat). Not retried.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrPartialFailure marks a recoverable degradation: a skipped file, a
	// chapter stub, an absent PDF. Never promoted to fatal by a caller.
	ErrPartialFailure = errors.New("partial failure")
	// ErrInternal marks an invariant violation: dimension mismatch,
	// metadata/index length mismatch. Fails the job fast.
	ErrInternal = errors.New("internal error")
)

// Error carries taxonomy classification plus the phase it occurred in.
type Error struct {
	Kind  error
	Phase string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Phase, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// New constructs a taxonomy error for the given kind/phase/message.
func New(kind error, phase, msg string) *Error {
	return &Error{Kind: kind, Phase: phase, Msg: msg}
}

// Wrap constructs a taxonomy error wrapping an underlying cause.
func Wrap(kind error, phase, msg string, cause error) *Error {
	return &Error{Kind: kind, Phase: phase, Msg: msg, Err: cause}
}

// IsFatal reports whether err should promote a job to failed per §7: every
// kind except PartialFailure is fatal when it escapes its subsystem.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrPartialFailure)
}
