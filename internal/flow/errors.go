package flow

import (
	"time"
)

// Code is the stable, machine-readable failure code carried by AuthError.
// Messages stay generic so no code path leaks identity existence.
type Code string

const (
	CodeRateLimited         Code = "rate_limited"
	CodeInvalidCredentials  Code = "invalid_credentials"
	CodeNotActivated        Code = "account_not_activated"
	CodeTokenInvalid        Code = "token_invalid"
	CodeSubjectUnresolvable Code = "token_subject_unresolvable"
	CodeInternal            Code = "internal"
)

// AuthError is the user-facing failure of a flow operation. The message is
// intentionally generic; callers branch on Code. RetryAfter is set only for
// CodeRateLimited.
type AuthError struct {
	Code       Code
	RetryAfter time.Duration
}

func (e *AuthError) Error() string {
	switch e.Code {
	case CodeRateLimited:
		return "too many attempts, try again later"
	case CodeNotActivated:
		return "account is not activated"
	case CodeTokenInvalid, CodeSubjectUnresolvable:
		return "authentication required"
	case CodeInternal:
		return "internal error"
	default:
		return "invalid credentials"
	}
}

// Is matches any AuthError with the same code, so callers can use errors.Is
// against the package sentinels below.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is checks. RateLimited failures returned by the flow
// carry a concrete RetryAfter; use errors.As to read it.
var (
	ErrRateLimited         = &AuthError{Code: CodeRateLimited}
	ErrInvalidCredentials  = &AuthError{Code: CodeInvalidCredentials}
	ErrNotActivated        = &AuthError{Code: CodeNotActivated}
	ErrTokenInvalid        = &AuthError{Code: CodeTokenInvalid}
	ErrSubjectUnresolvable = &AuthError{Code: CodeSubjectUnresolvable}
	ErrInternal            = &AuthError{Code: CodeInternal}
)

func rateLimited(retryAfter time.Duration) *AuthError {
	return &AuthError{Code: CodeRateLimited, RetryAfter: retryAfter}
}
