// Package worlderr defines the error kinds returned by the world engine.
//
// Errors are built with samber/oops: the kind travels as the oops code and
// the offending IDs, attribute names and times travel as context, so callers
// can show the message verbatim or inspect the structured fields.
package worlderr

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Kind classifies an engine failure.
type Kind string

const (
	KindNotFound                 Kind = "not_found"
	KindReferenceNotFound        Kind = "reference_not_found"
	KindReferenceDeleted         Kind = "reference_deleted"
	KindForbiddenSystemAttribute Kind = "forbidden_system_attribute"
	KindEntityAlreadyEnded       Kind = "entity_already_ended"
	KindAlreadyEnded             Kind = "already_ended"
	KindNotEnded                 Kind = "not_ended"
	KindInvalidLifecycleOrdering Kind = "invalid_lifecycle_ordering"
	KindProtectedSystemEvent     Kind = "protected_system_event"
	KindCyclicOrInvalidReference Kind = "cyclic_or_invalid_reference"
	KindPartialWriteFailure      Kind = "partial_write_failure"
	KindInvalidInput             Kind = "invalid_input"
)

const domain = "world"

// New starts an error of the given kind. Add context with With and finish
// with Errorf or Wrapf.
func New(kind Kind) oops.OopsErrorBuilder {
	return oops.Code(string(kind)).In(domain)
}

// Errorf is shorthand for New(kind).Errorf.
func Errorf(kind Kind, format string, args ...any) error {
	return New(kind).Errorf(format, args...)
}

// KindOf returns the kind carried by err, or "" if err was not built here.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	oe, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	return Kind(fmt.Sprint(oe.Code()))
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Context returns the structured context attached to err.
func Context(err error) map[string]any {
	var oe oops.OopsError
	if !errors.As(err, &oe) {
		return nil
	}
	return oe.Context()
}
