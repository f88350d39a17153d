package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a business error so the controller layer can map it to an
// HTTP status without inspecting message strings.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindItemNotFound
	KindInsufficientStock
	KindInvalidQuantity
	KindInvalidTransition
	KindAlreadyPaid
	KindNotCancellable
	KindNotRefundable
	KindConcurrencyConflict
	KindValidation
	KindUnauthorized
	KindConflict
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two *Error values by kind, so callers can compare
// against a sentinel like apperr.New(KindNotFound, "") without caring about
// the message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal
// if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// HTTPStatus maps an error to the status code the REST surface should reply
// with. Unknown errors are treated as server faults.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound, KindItemNotFound:
		return http.StatusNotFound
	case KindInsufficientStock, KindInvalidQuantity, KindInvalidTransition,
		KindAlreadyPaid, KindNotCancellable, KindNotRefundable, KindValidation:
		return http.StatusBadRequest
	case KindConcurrencyConflict, KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Message returns a user-safe message for err. Internal errors are masked so
// infrastructure details never leak into the response body.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}
