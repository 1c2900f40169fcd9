// Package accounterr is the error taxonomy returned by registration,
// sync and session resolution. Collaborator errors (Mongo, SQLite, the
// identity provider) are wrapped so they reach the logs, but callers only
// ever branch on Kind.
package accounterr

import (
	"errors"
	"net/http"
	"strings"
)

// Kind classifies a failure for the UI layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindDuplicateIdentity
	KindWeakCredential
	KindReferenceNotFound
	KindRemoteWrite
	KindPostSyncRead
	KindProfileNotFound
	KindSyncPartialFailure
	KindInvalidCredentials
	KindInvalidInput
	KindRemoteRead
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindDuplicateIdentity:  "duplicate_identity",
	KindWeakCredential:     "weak_credential",
	KindReferenceNotFound:  "reference_not_found",
	KindRemoteWrite:        "remote_write",
	KindPostSyncRead:       "post_sync_read",
	KindProfileNotFound:    "profile_not_found",
	KindSyncPartialFailure: "sync_partial_failure",
	KindInvalidCredentials: "invalid_credentials",
	KindInvalidInput:       "invalid_input",
	KindRemoteRead:         "remote_read",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// MessageKey is the localization key the UI renders for this kind.
func (k Kind) MessageKey() string {
	return "error." + k.String()
}

// Remedy tells the UI what the user can do about it.
type Remedy string

const (
	RemedyFixInput   Remedy = "fix_input"
	RemedyRetrySync  Remedy = "retry_sync"
	RemedyRegister   Remedy = "register"
	RemedyRetryLater Remedy = "retry_later"
)

// Remedy returns the recommended follow-up for this kind.
func (k Kind) Remedy() Remedy {
	switch k {
	case KindDuplicateIdentity, KindWeakCredential, KindReferenceNotFound,
		KindInvalidCredentials, KindInvalidInput:
		return RemedyFixInput
	case KindPostSyncRead, KindSyncPartialFailure:
		return RemedyRetrySync
	case KindProfileNotFound:
		return RemedyRegister
	default:
		return RemedyRetryLater
	}
}

// HTTPStatus maps a kind onto a response status for the JSON API.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindDuplicateIdentity:
		return http.StatusConflict
	case KindWeakCredential, KindInvalidInput:
		return http.StatusUnprocessableEntity
	case KindReferenceNotFound, KindProfileNotFound:
		return http.StatusNotFound
	case KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindRemoteWrite:
		return http.StatusBadGateway
	case KindPostSyncRead, KindSyncPartialFailure, KindRemoteRead:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the only error type that leaves the accounts core.
type Error struct {
	Kind    Kind
	Op      string   // step or operation that failed, e.g. "write_profile"
	Err     error    // collaborator cause; logged, never shown to users
	Missing []string // PostSyncRead: absent records; SyncPartialFailure: failed categories
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" (")
		b.WriteString(e.Op)
		b.WriteString(")")
	}
	if len(e.Missing) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same Kind, so errors.Is(err,
// accounterr.ProfileNotFound) works without comparing causes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	DuplicateIdentity  = &Error{Kind: KindDuplicateIdentity}
	WeakCredential     = &Error{Kind: KindWeakCredential}
	ReferenceNotFound  = &Error{Kind: KindReferenceNotFound}
	RemoteWrite        = &Error{Kind: KindRemoteWrite}
	PostSyncRead       = &Error{Kind: KindPostSyncRead}
	ProfileNotFound    = &Error{Kind: KindProfileNotFound}
	SyncPartialFailure = &Error{Kind: KindSyncPartialFailure}
	InvalidCredentials = &Error{Kind: KindInvalidCredentials}
	InvalidInput       = &Error{Kind: KindInvalidInput}
	RemoteRead         = &Error{Kind: KindRemoteRead}
)

// New builds an *Error of the given kind.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Invalid reports a form problem caught before any remote call.
func Invalid(field, reason string) *Error {
	return &Error{Kind: KindInvalidInput, Op: field, Err: errors.New(reason)}
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

