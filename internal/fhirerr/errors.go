// Package fhirerr defines the engine's error taxonomy and its
// OperationOutcome-shaped surface, used by every component instead of
// ad-hoc error strings.
package fhirerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds named in the propagation policy.
type Kind string

const (
	KindMalformedRequest    Kind = "malformed-request"
	KindUnsupported         Kind = "unsupported"
	KindNotFound            Kind = "not-found"
	KindGone                Kind = "gone"
	KindConflict            Kind = "conflict"
	KindPreconditionFailed  Kind = "precondition-failed"
	KindValidation          Kind = "validation"
	KindTransient           Kind = "transient"
	KindInternal            Kind = "internal"
	KindUnauthenticated     Kind = "unauthenticated"
)

// Severity mirrors OperationOutcome.issue.severity.
type Severity string

const (
	SeverityFatal       Severity = "fatal"
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
)

// Issue is one OperationOutcome.issue entry.
type Issue struct {
	Severity    Severity `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	Expression  []string `json:"expression,omitempty"`
	Location    []string `json:"location,omitempty"`
}

// Error is the engine's standard error type. It always carries a Kind so
// callers can classify it with errors.Is against the Kind sentinels below,
// and a set of Issues describing an OperationOutcome-shaped payload for the
// transport layer to render.
type Error struct {
	Kind       Kind
	Issues     []Issue
	RetryAfter int // seconds; only meaningful when Kind == KindTransient
	cause      error
}

func (e *Error) Error() string {
	if len(e.Issues) == 0 {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Issues[0].Diagnostics)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, fhirerr.NotFound) match on the error's Kind via
// the package's Kind sentinels while keeping the richer Issues/RetryAfter payload available to
// callers that type-assert to *Error.
func (e *Error) Is(target error) bool {
	if k, ok := target.(kindSentinel); ok {
		return e.Kind == Kind(k)
	}
	return false
}

// kindSentinel lets Kind values themselves be used as errors.Is targets.
type kindSentinel Kind

func (k kindSentinel) Error() string { return string(k) }

// sentinel returns an error value usable with errors.Is(err, fhirerr.NotFound).
func sentinel(k Kind) error { return kindSentinel(k) }

var (
	NotFound            = sentinel(KindNotFound)
	Gone                = sentinel(KindGone)
	Conflict            = sentinel(KindConflict)
	Validation          = sentinel(KindValidation)
	Unsupported         = sentinel(KindUnsupported)
	MalformedRequest    = sentinel(KindMalformedRequest)
	PreconditionFailed  = sentinel(KindPreconditionFailed)
	Transient           = sentinel(KindTransient)
	Internal            = sentinel(KindInternal)
	Unauthenticated     = sentinel(KindUnauthenticated)
)

// New builds a single-issue Error.
func New(kind Kind, code, diagnostics string) *Error {
	return &Error{
		Kind: kind,
		Issues: []Issue{{
			Severity:    SeverityError,
			Code:        code,
			Diagnostics: diagnostics,
		}},
	}
}

// Wrap builds a single-issue Error that also wraps an underlying cause for
// errors.Unwrap chains.
func Wrap(kind Kind, code, diagnostics string, cause error) *Error {
	e := New(kind, code, diagnostics)
	e.cause = cause
	return e
}

// NotFoundf builds a not-found error for a given resource reference.
func NotFoundf(resourceType, id string) *Error {
	return New(KindNotFound, "not-found", fmt.Sprintf("%s/%s not found", resourceType, id))
}

// Gonef builds a gone error for a soft-deleted resource.
func Gonef(resourceType, id string) *Error {
	return New(KindGone, "deleted", fmt.Sprintf("%s/%s has been deleted", resourceType, id))
}

// MultipleMatches builds the conditional-update/create/delete "ambiguous
// match" conflict error.
func MultipleMatches(resourceType, query string) *Error {
	return New(KindConflict, "multiple-matches",
		fmt.Sprintf("conditional operation on %s?%s matched more than one resource", resourceType, query))
}

// VersionConflict builds the If-Match version-mismatch conflict error.
func VersionConflict(resourceType, id string, have, want int64) *Error {
	return New(KindConflict, "version-conflict",
		fmt.Sprintf("%s/%s is at version %d, If-Match required %d", resourceType, id, have, want))
}

// As is a thin re-export of errors.As for callers that don't want to import
// both "errors" and "fhirerr".
func As(err error, target any) bool { return errors.As(err, target) }
