package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind buckets an error into one of the failure classes the API exposes.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindCollaborator Kind = "collaborator"
	KindInternal     Kind = "internal"
)

// Stable machine-readable codes. Clients switch on these, not on messages.
const (
	CodeInvalidContent     = "INVALID_CONTENT"
	CodeInvalidMood        = "INVALID_MOOD"
	CodeInvalidTimezone    = "INVALID_TIMEZONE"
	CodeEntryNotFound      = "ENTRY_NOT_FOUND"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeAlreadyMinted      = "ALREADY_MINTED"
	CodeMintInProgress     = "MINT_IN_PROGRESS"
	CodeSyncInProgress     = "SYNC_IN_PROGRESS"
	CodeWalletNotConnected = "WALLET_NOT_CONNECTED"
	CodeAirdropUnavailable = "AIRDROP_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// Error is the single categorized error type used across services.
// Collaborator and SideEffect are only meaningful for KindCollaborator:
// Collaborator names which external dependency failed (wallet, chain,
// metadata, mirror) and SideEffect reports whether the failed call may have
// left state behind on the collaborator's side.
type Error struct {
	Kind         Kind
	Code         string
	Message      string
	Collaborator string
	SideEffect   bool
	Cause        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindCollaborator && e.Cause != nil:
		return fmt.Sprintf("%s: %s (%s: %v)", e.Code, e.Message, e.Collaborator, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on kind+code sentinels created by the constructors.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func Validationf(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(code, resource, id string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

// Collaborator wraps a failure from an external dependency. sideEffect must
// be true whenever the call may have taken effect remotely before failing
// (e.g. a chain submission that timed out waiting for confirmation).
func Collaborator(name string, sideEffect bool, cause error) *Error {
	return &Error{
		Kind:         KindCollaborator,
		Code:         "COLLABORATOR_" + upper(name),
		Message:      fmt.Sprintf("%s collaborator failed", name),
		Collaborator: name,
		SideEffect:   sideEffect,
		Cause:        cause,
	}
}

func Internal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: msg, Cause: cause}
}

// From returns err as *Error, wrapping unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("unexpected error", err)
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// HTTPStatus maps an error to the status the response envelope should carry.
func HTTPStatus(err error) int {
	switch From(err).Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindCollaborator:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func upper(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}
