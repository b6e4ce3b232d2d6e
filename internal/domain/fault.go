package domain

import (
	"errors"
	"fmt"
)

// FaultKind is the closed classification every failure in the pipeline is
// reduced to. Providers classify their raw errors exactly once at the
// boundary; everything downstream branches on the kind, never on
// provider-specific shapes.
type FaultKind string

const (
	// FaultValidation marks bad caller input rejected before any work runs.
	FaultValidation FaultKind = "validation"
	// FaultSafetyBlock marks a content-policy rejection from the synthesis
	// provider, distinct from transient or technical failures.
	FaultSafetyBlock FaultKind = "safety_block"
	// FaultTransientNotReady marks the narrow publish-time signal meaning the
	// remote container is not externally visible yet despite finished
	// processing. It is the only publish failure eligible for retry.
	FaultTransientNotReady FaultKind = "transient_not_ready"
	// FaultTimeout marks an exhausted poll budget while still in progress.
	FaultTimeout FaultKind = "timeout"
	// FaultFatal is every other provider or I/O failure.
	FaultFatal FaultKind = "fatal"
)

// Fault is the error type carried across component boundaries. Message is
// caller-facing; Err retains the raw provider error for logs.
type Fault struct {
	Kind    FaultKind
	Message string
	Err     error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// NewFault wraps err with a classification and a caller-facing message.
func NewFault(kind FaultKind, message string, err error) *Fault {
	return &Fault{Kind: kind, Message: message, Err: err}
}

// Classify returns the FaultKind of err, or FaultFatal when err carries no
// classification.
func Classify(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return FaultFatal
}

// FaultMessage returns the caller-facing message of err, falling back to the
// raw error text for unclassified errors.
func FaultMessage(err error) string {
	var f *Fault
	if errors.As(err, &f) && f.Message != "" {
		return f.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// IsSafetyBlock reports whether err is a content-policy rejection.
func IsSafetyBlock(err error) bool {
	return Classify(err) == FaultSafetyBlock
}

// IsTransientNotReady reports whether err is the retryable publish signal.
func IsTransientNotReady(err error) bool {
	return Classify(err) == FaultTransientNotReady
}
