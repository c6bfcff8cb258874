package optimization

import (
	"errors"
	"fmt"
)

// Kind classifies optimization errors so callers can tell a bad configuration
// apart from a failing objective function.
type Kind int

const (
	// KindInternal is the zero value: an unexpected failure inside the
	// optimizer itself.
	KindInternal Kind = iota

	// KindConfig marks invalid construction parameters. These are always
	// raised at construction time, never mid-run.
	KindConfig

	// KindObjective marks a failure returned by the user-supplied objective
	// function. The optimizer state is not usable after one of these.
	KindObjective
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindObjective:
		return "objective"
	default:
		return "internal"
	}
}

// Error is the error type returned by the optimizers in this module.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigError reports invalid construction parameters.
func NewConfigError(op, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindConfig,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapObjectiveError wraps a failure from the user-supplied objective
// function. Returns nil if err is nil.
func WrapObjectiveError(op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    KindObjective,
		Op:      op,
		Message: "objective function failed",
		Err:     err,
	}
}

// IsConfigError reports whether err is (or wraps) a configuration error.
func IsConfigError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindConfig
}

// IsObjectiveError reports whether err is (or wraps) an objective failure.
func IsObjectiveError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindObjective
}
