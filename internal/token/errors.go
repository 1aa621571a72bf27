package token

import "errors"

var (
	// ErrTokenInvalid is returned for malformed, expired, badly signed, or
	// wrong-kind tokens. Resolution never panics or distinguishes further.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrSubjectUnresolvable is returned when a verified token carries a
	// subject no resolution strategy can map to a user.
	ErrSubjectUnresolvable = errors.New("token subject unresolvable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid token config")
)
