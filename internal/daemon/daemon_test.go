package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"authcore/internal/app"
	"authcore/internal/flow"
	"authcore/internal/session"
)

func testConfig() app.Config {
	return app.Config{
		LogLevel:      "error",
		MetricsAddr:   "127.0.0.1:0",
		RetryInterval: time.Minute,
	}
}

// With no database or cache configured the daemon wires the in-memory
// stores and still exposes a working auth service.
func TestNew_MemoryMode(t *testing.T) {
	t.Setenv("AUTHCORE_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	ctx := context.Background()
	d, err := New(ctx, testConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.close()

	svc := d.Auth()
	if svc == nil {
		t.Fatal("Auth returned nil service")
	}

	// Nothing is seeded, so any login must fail closed with the
	// indistinguishable credential error.
	_, err = svc.Login(ctx, "nobody@example.com", "hunter2", session.ClientMeta{})
	var ae *flow.AuthError
	if !errors.As(err, &ae) || ae.Code != flow.CodeInvalidCredentials {
		t.Fatalf("login against empty store = %v, want invalid_credentials", err)
	}

	if _, err := svc.Authenticate(ctx, "not-a-token"); err == nil {
		t.Fatal("Authenticate accepted garbage token")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Setenv("AUTHCORE_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	d, err := New(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}
