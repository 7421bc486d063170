package rbac

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for callers and transports
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindConfiguration  Kind = "configuration"
	KindInfrastructure Kind = "infrastructure"
)

// Error is a classified service failure
type Error struct {
	Kind    Kind
	Message string
	// Allowed lists the roles the caller may assign. Only set on role-assignment denials.
	Allowed []Role
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status code the kind maps to
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindConfiguration:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to expose to clients
func (e *Error) PublicMessage() string {
	if e.Kind == KindInfrastructure {
		return "internal server error"
	}
	return e.Message
}

// KindOf extracts the kind of err, or KindInfrastructure for unclassified errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// AsError returns err as an *Error, classifying unknown errors as infrastructure
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Infrastructure("internal error", err)
}

// Authentication reports a missing, invalid or expired credential
func Authentication(msg string) *Error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

// Authorization reports a caller whose role does not permit the operation
func Authorization(msg string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

// AssignmentDenied is an authorization failure listing the roles the caller may assign
func AssignmentDenied(msg string, allowed []Role) *Error {
	if allowed == nil {
		allowed = []Role{}
	}
	return &Error{Kind: KindAuthorization, Message: msg, Allowed: allowed}
}

// NotFound reports a referenced organization, team or user that does not exist
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Validation reports malformed or unacceptable input
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Configuration reports a caller whose account setup prevents the operation,
// such as having no organization
func Configuration(msg string) *Error {
	return &Error{Kind: KindConfiguration, Message: msg}
}

// Infrastructure wraps a store or identity provider failure. Only msg is
// shown to clients.
func Infrastructure(msg string, err error) *Error {
	return &Error{Kind: KindInfrastructure, Message: msg, Err: err}
}
