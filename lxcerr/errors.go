// Package lxcerr defines the error kinds the container driver core
// distinguishes, per the error handling design of the lifecycle engine.
package lxcerr

import (
	"errors"
	"fmt"
)

/**
 * Kind classifies the nature of a driver error.
 */
type Kind int

const (
	// CapabilityMissing: kernel or userland lacks needed namespace support.
	CapabilityMissing Kind = iota

	// NoDomain: lookup failed.
	NoDomain

	// InvalidDomain: operation requires a running (or stopped) domain
	// and the state is wrong.
	InvalidDomain

	// NoMemory: allocation failure.
	NoMemory

	// NoSupport: an operation not implemented by this driver.
	NoSupport

	// Internal: any syscall or collaborator failure, carrying the
	// underlying error description.
	Internal
)

/**
 * @return a string representation of the error kind.
 */
func (k Kind) String() string {
	switch k {
	case CapabilityMissing:
		return "capability-missing"
	case NoDomain:
		return "no-domain"
	case InvalidDomain:
		return "invalid-domain"
	case NoMemory:
		return "no-memory"
	case NoSupport:
		return "no-support"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

/**
 * Error is a typed driver error carrying a Kind and an optional
 * wrapped cause.
 */
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

/**
 * New creates a new typed error with the given kind and message.
 * @param kind the error kind
 * @param msg the error message
 * @return the new error
 */
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

/**
 * Newf creates a new typed error with a formatted message.
 */
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

/**
 * Wrap attaches a kind to an underlying error.
 * @param kind the error kind
 * @param err the underlying error
 * @return the wrapped error, or nil if err is nil
 */
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: err.Error(), Err: err}
}

/**
 * Wrapf attaches a kind and a formatted message to an underlying error.
 */
func Wrapf(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

/**
 * Is reports whether err carries the given kind.
 * @param err the error to inspect
 * @param kind the kind to test for
 * @return true if err (or a wrapped cause) has the given kind
 */
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

/**
 * KindOf returns the kind carried by err, or Internal if err isn't
 * a typed driver error.
 */
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
