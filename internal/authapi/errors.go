// ABOUTME: Typed error kinds for remote API failures
// ABOUTME: Replaces message sniffing with a machine-readable Kind mapped from HTTP status

package authapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a remote failure.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindDuplicateAccount   Kind = "duplicate_account"
	KindUnauthorized       Kind = "unauthorized"
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation"
	KindTransient          Kind = "transient"
)

// Error is a remote API failure with a machine-readable kind. Callers branch
// on Kind, never on message content.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// validKind reports whether the server-provided kind string is one we know.
func validKind(k string) bool {
	switch Kind(k) {
	case KindInvalidCredentials, KindDuplicateAccount, KindUnauthorized,
		KindNotFound, KindValidation, KindTransient:
		return true
	}
	return false
}

// kindFromStatus maps an HTTP status code to a Kind. Used when the response
// body carries no kind of its own.
func kindFromStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusConflict:
		return KindDuplicateAccount
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	default:
		return KindTransient
	}
}
