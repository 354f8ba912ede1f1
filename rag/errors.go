package rag

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuestion       = errors.New("question cannot be empty")
	ErrRoutingUnavailable  = errors.New("routing unavailable")
	ErrTranslationDeclined = errors.New("translation declined")
	ErrRetrievalFailure    = errors.New("retrieval failure")
	ErrCapabilityFailure   = errors.New("capability failure")
)

// RoutingError reports a classifier that was unreachable or produced a label
// outside the known routes.
type RoutingError struct {
	Label string
	Err   error
}

func (e *RoutingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("routing unavailable: %v", e.Err)
	}
	return fmt.Sprintf("routing unavailable: invalid route label %q", e.Label)
}

func (e *RoutingError) Is(target error) bool {
	return target == ErrRoutingUnavailable
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

// RetrievalError wraps a transport or backend failure of an evidence source.
type RetrievalError struct {
	Source string
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("%s retrieval failed: %v", e.Source, e.Err)
}

func (e *RetrievalError) Is(target error) bool {
	return target == ErrRetrievalFailure
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// CapabilityError wraps a failure of a grader, generator, transformer or reviewer.
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Is(target error) bool {
	return target == ErrCapabilityFailure
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}
