// Package apperr defines the error kinds shared by ingestion, storage,
// caching and repair.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindStorage    Kind = "storage"
	KindCache      Kind = "cache"
	KindSchema     Kind = "schema"
	// KindConflict is a concurrent "already exists" while creating a table
	// or partition. The schema manager absorbs it; callers never see it.
	KindConflict Kind = "partition_conflict"
)

type Error struct {
	Kind   Kind
	Op     string
	Symbol string
	Err    error

	// Transient marks storage errors caused by the connection rather than
	// the statement (dropped socket, timeout, admin shutdown).
	Transient bool
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Symbol != "" {
		msg += " [" + e.Symbol + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the same call may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindCache, KindConflict:
		return true
	case KindStorage:
		return e.Transient
	default:
		return false
	}
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

func Storage(op, symbol string, err error, transient bool) *Error {
	return &Error{Kind: KindStorage, Op: op, Symbol: symbol, Err: err, Transient: transient}
}

func Cache(op string, err error) *Error {
	return &Error{Kind: KindCache, Op: op, Err: err}
}

func Schema(op, symbol string, err error) *Error {
	return &Error{Kind: KindSchema, Op: op, Symbol: symbol, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
