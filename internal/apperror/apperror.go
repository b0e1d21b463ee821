// Package apperror defines the error kinds surfaced by snap use cases.
//
// Every error a use case returns to the HTTP boundary either is, or wraps, an
// *Error. The boundary maps Kind to a transport status and shows Detail to the
// caller; Code is stable and machine-readable.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for boundary mapping.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindNotFound            Kind = "not_found"
	KindBlocked             Kind = "blocked"
	KindForbidden           Kind = "forbidden"
	KindAlreadyInState      Kind = "already_in_state"
	KindUnauthorized        Kind = "unauthorized"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindInternal            Kind = "internal"
)

// Error is a classified application error.
type Error struct {
	kind   Kind
	code   string
	detail string
	cause  error
}

// New constructs an Error without a cause.
func New(kind Kind, code, detail string) *Error {
	return &Error{kind: kind, code: code, detail: detail}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.code, e.detail)
	}
	return fmt.Sprintf("%s: %s: %v", e.code, e.detail, e.cause)
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches errors carrying the same code, so that an Error re-created with a
// different detail still satisfies errors.Is against the exported value.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil {
		return false
	}
	return other.code == e.code
}

// Kind returns the error classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code returns the stable machine-readable code.
func (e *Error) Code() string {
	return e.code
}

// Detail returns the human-readable description.
func (e *Error) Detail() string {
	return e.detail
}

// WithDetail returns a copy of e carrying a more specific detail message.
func (e *Error) WithDetail(format string, args ...any) *Error {
	return &Error{kind: e.kind, code: e.code, detail: fmt.Sprintf(format, args...), cause: e.cause}
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	return &Error{kind: e.kind, code: e.code, detail: e.detail, cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindInternal
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

var (
	ErrMessageTooLong   = New(KindValidation, "message_too_long", "Message exceeds 280 characters.")
	ErrInvalidSnapID    = New(KindValidation, "invalid_snap_id", "Snap id is required.")
	ErrInvalidHashtag   = New(KindValidation, "invalid_hashtag", "Hashtag is required.")
	ErrInvalidRequest   = New(KindValidation, "invalid_request", "Request body is invalid.")
	ErrSnapNotFound     = New(KindNotFound, "snap_not_found", "Snap not found.")
	ErrProfileNotFound  = New(KindNotFound, "profile_not_found", "Profile not found.")
	ErrSnapBlocked      = New(KindBlocked, "snap_blocked", "Snap is blocked.")
	ErrNotOwner         = New(KindForbidden, "not_owner", "Not authorized to modify this snap.")
	ErrNotModerator     = New(KindForbidden, "not_moderator", "Moderator privileges required.")
	ErrAlreadyLiked     = New(KindAlreadyInState, "already_liked", "Snap already liked.")
	ErrNotLiked         = New(KindAlreadyInState, "not_liked", "Snap is not liked.")
	ErrAlreadyFavourite = New(KindAlreadyInState, "already_favourited", "Snap already in favourites.")
	ErrNotFavourite     = New(KindAlreadyInState, "not_favourited", "Snap is not in favourites.")
	ErrAlreadyBlocked   = New(KindAlreadyInState, "already_blocked", "Snap is already blocked.")
	ErrAlreadyUnblocked = New(KindAlreadyInState, "already_unblocked", "Snap is not blocked.")
	ErrUnauthorized     = New(KindUnauthorized, "unauthorized", "Invalid token.")
	ErrUpstream         = New(KindUpstreamUnavailable, "upstream_unavailable", "Upstream service unavailable.")
)
