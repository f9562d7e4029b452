// Package cerr provides the coordinator's error taxonomy: a small, closed
// set of kinds that the admission pipeline classifies every failure into,
// plus the wrapping and predicate helpers needed to dispatch cleanup and
// HTTP-like status mapping from a single switch rather than scattered type
// assertions.
package cerr

import (
	"errors"
	"fmt"
)

// Kind is one row of the error taxonomy. There are exactly five; adding a
// sixth is a pipeline design change, not a call-site decision.
type Kind int

const (
	// KindConflict: job id already exists in the store. No cleanup needed,
	// since nothing else was written before the conflict was detected.
	KindConflict Kind = iota
	// KindPrecondition: memory exceeds the per-job cap, or the resolver
	// could not satisfy the request.
	KindPrecondition
	// KindUserLimitExceeded: the submitting user is already at their
	// active-job cap.
	KindUserLimitExceeded
	// KindServerUnavailable: the node-memory admission check denied the
	// request; the node is full.
	KindServerUnavailable
	// KindServerError: an unclassified failure or a broken catalog
	// invariant (a resolved id with no backing entity).
	KindServerError
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "Conflict"
	case KindPrecondition:
		return "Precondition"
	case KindUserLimitExceeded:
		return "UserLimitExceeded"
	case KindServerUnavailable:
		return "ServerUnavailable"
	case KindServerError:
		return "ServerError"
	default:
		return "Unknown"
	}
}

// HTTPStatus returns the HTTP-like status associated with the kind, as
// tabulated in the error handling design.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindConflict:
		return 409
	case KindPrecondition:
		return 412
	case KindUserLimitExceeded:
		return 429
	case KindServerUnavailable:
		return 503
	default:
		return 500
	}
}

// CoordinatorError is the single wrapped-error type the pipeline raises.
// Every failure surfaced by submit is one of these.
type CoordinatorError struct {
	Kind    Kind
	JobID   string
	Stage   string
	Message string
	Err     error
}

func (e *CoordinatorError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("job %s: %s: %s: %v", e.JobID, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *CoordinatorError) Unwrap() error {
	return e.Err
}

// New wraps err (which may be nil) into a classified CoordinatorError.
func New(kind Kind, jobID, stage, message string, err error) *CoordinatorError {
	return &CoordinatorError{Kind: kind, JobID: jobID, Stage: stage, Message: message, Err: err}
}

// Conflict builds a KindConflict error for stage 2's uniqueness check.
func Conflict(jobID string, err error) *CoordinatorError {
	return New(KindConflict, jobID, "persist-init", "job id already exists", err)
}

// Precondition builds a KindPrecondition error. Used both for memory
// overshoot (stage 6) and resolution failure (stage 4).
func Precondition(jobID, stage, message string, err error) *CoordinatorError {
	return New(KindPrecondition, jobID, stage, message, err)
}

// UserLimitExceeded builds a KindUserLimitExceeded error for stage 8.
func UserLimitExceeded(jobID, user string, limit int) *CoordinatorError {
	return New(KindUserLimitExceeded, jobID, "user-quota",
		fmt.Sprintf("user %s has reached the active job limit of %d", user, limit), nil)
}

// ServerUnavailable builds a KindServerUnavailable error for stage 9's
// node-full rejection.
func ServerUnavailable(jobID string) *CoordinatorError {
	return New(KindServerUnavailable, jobID, "node-admission", "node is full", nil)
}

// ServerErrorf builds a KindServerError error for an unclassified failure
// or a broken catalog invariant.
func ServerErrorf(jobID, stage string, err error) *CoordinatorError {
	return New(KindServerError, jobID, stage, "unclassified failure", err)
}

// Is reports whether err is a CoordinatorError of the given kind.
func Is(err error, kind Kind) bool {
	var ce *CoordinatorError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindServerError for any
// error that did not originate from this package — a raw, unclassified
// error reaching the universal cleanup routine is itself a programming
// error, and is treated as the most conservative kind.
func KindOf(err error) Kind {
	var ce *CoordinatorError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindServerError
}

// JobIDOf extracts the job id attached to err, if any.
func JobIDOf(err error) string {
	var ce *CoordinatorError
	if errors.As(err, &ce) {
		return ce.JobID
	}
	return ""
}

// MessageOf extracts the human-readable message attached to err, falling
// back to err.Error() for anything that did not originate from this
// package. The universal cleanup routine uses this as the status message
// it writes back to the Catalog Store.
func MessageOf(err error) string {
	var ce *CoordinatorError
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
