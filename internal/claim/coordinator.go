package claim

import (
	"context"
	"log/slog"
)

// Coordinator binds a Store to the retry budget and exposes the protocol a
// delivery worker follows: Claim, then exactly one of Done or Release.
type Coordinator struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

func NewCoordinator(store Store, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig().StaleAfter
	}
	return &Coordinator{store: store, cfg: cfg, logger: logger}
}

// Claim attempts to win the unit. Exactly one of N concurrent callers for
// the same unit succeeds.
func (c *Coordinator) Claim(ctx context.Context, kind, subject string) (bool, error) {
	won, err := c.store.TryClaim(ctx, kind, subject, c.cfg.MaxAttempts, c.cfg.StaleAfter)
	if err != nil {
		return false, err
	}
	if won {
		c.logger.DebugContext(ctx, "claimed delivery unit", "kind", kind, "subject", subject)
	}
	return won, nil
}

// Done marks a won unit as delivered.
func (c *Coordinator) Done(ctx context.Context, kind, subject string) error {
	return c.store.MarkDone(ctx, kind, subject)
}

// Release returns a won unit to the retry pool, recording why it failed.
func (c *Coordinator) Release(ctx context.Context, kind, subject string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	c.logger.WarnContext(ctx, "released delivery unit", "kind", kind, "subject", subject, "cause", msg)
	return c.store.Release(ctx, kind, subject, msg)
}

// Candidates lists units a retry pass should attempt.
func (c *Coordinator) Candidates(ctx context.Context, limit int32) ([]Unit, error) {
	return c.store.Candidates(ctx, c.cfg.MaxAttempts, c.cfg.StaleAfter, limit)
}
