// ABOUTME: Error taxonomy for the update pipeline
// ABOUTME: Carries a kind plus operation context so callers can render guidance
package models

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	// KindUpstreamMalformed means the LLM or page read returned an unusable shape.
	KindUpstreamMalformed ErrorKind = "upstream_malformed"
	// KindUpstreamUnavailable means a collaborator call itself failed.
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindValidationFailed    ErrorKind = "validation_failed"
	KindWriteFailed         ErrorKind = "write_failed"
	KindInconsistent        ErrorKind = "inconsistent"
	KindNotFound            ErrorKind = "not_found"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
