package authstate

import (
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// ErrInvalidCredentials is surfaced verbatim to the caller so forms can
// display it inline.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(goerrors.CodeUnauthorized)

// ErrRecordNotFound is the distinguished not-found for user records. It is the
// only store error the bootstrap logic acts on.
var ErrRecordNotFound = goerrors.New("user record not found", goerrors.CategoryNotFound).
	WithTextCode("USER_RECORD_NOT_FOUND").
	WithCode(goerrors.CodeNotFound)

// ErrSessionFetch marks a transient failure reading the current session from
// the platform. Callers treat it as "no session" (fail closed).
var ErrSessionFetch = goerrors.New("unable to read current session", goerrors.CategoryOperation).
	WithTextCode("SESSION_FETCH_FAILED")

// ErrRoleFetch marks a transient failure reading role assignments. It is
// logged and absorbed; the identity keeps an empty role set.
var ErrRoleFetch = goerrors.New("unable to read role assignments", goerrors.CategoryOperation).
	WithTextCode("ROLE_FETCH_FAILED")

// ErrBootstrap marks a failure during the first-sign-in record creation. It
// never aborts the sign-in itself.
var ErrBootstrap = goerrors.New("unable to bootstrap user record", goerrors.CategoryOperation).
	WithTextCode("USER_BOOTSTRAP_FAILED")

// ErrManagerClosed is returned by operations invoked after Close.
var ErrManagerClosed = goerrors.New("authstate manager is closed", goerrors.CategoryOperation).
	WithTextCode("MANAGER_CLOSED")

// IsRecordNotFound reports whether err is the distinguished not-found, either
// ours or the repository layer's.
func IsRecordNotFound(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrRecordNotFound) {
		return true
	}
	if repository.IsRecordNotFound(err) {
		return true
	}
	return goerrors.IsNotFound(err)
}
