package pipeline

import (
	"errors"
	"fmt"

	"catalogsync/internal/catalog"
)

// Kind classifies failures. Only Fatal ever leaves a run; item kinds are
// recorded against the item and counted.
type Kind string

const (
	Fatal            Kind = "fatal"
	ItemInvalid      Kind = "item_invalid"
	ItemRetryable    Kind = "item_retryable"
	ItemNonRetryable Kind = "item_non_retryable"
	ItemError        Kind = "item_error"
	AuthExpired      Kind = "auth_expired"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

func fatal(op string, err error) *Error {
	return &Error{Kind: Fatal, Op: op, Err: err}
}

func As(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func IsFatal(err error) bool {
	pe, ok := As(err)
	return ok && pe.Kind == Fatal
}

// KindOf maps the last remote outcome of a failed item to its kind.
func KindOf(class catalog.Class) Kind {
	switch class {
	case catalog.Retryable:
		return ItemRetryable
	case catalog.AuthExpired:
		return AuthExpired
	case catalog.NonRetryable:
		return ItemNonRetryable
	default:
		return ItemError
	}
}
