// Package notify delivers outbound notifications with at-most-one-concurrent
// retry semantics built on the claim coordinator.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Notification kinds. The kind doubles as the claim-unit kind, so one
// recipient gets at most one concurrent delivery attempt per kind.
const (
	KindWelcome       = "welcome"
	KindPasswordReset = "password_reset"
)

// Message is one outbound notification.
type Message struct {
	Kind      string
	Recipient string
	Payload   map[string]string
}

// Sender delivers a message and returns the provider's message id.
// Transient failures should be wrapped in TransientError so the retry worker
// keeps the unit eligible.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// TransientError marks a delivery failure worth retrying (timeouts, provider
// throttling). Anything else is treated as permanent for this attempt but
// still consumes retry budget.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// NoopSender pretends every delivery succeeded. Used when no provider is
// configured.
type NoopSender struct{}

func (NoopSender) Send(_ context.Context, msg Message) (string, error) {
	return "noop-" + msg.Kind + "-" + msg.Recipient, nil
}
