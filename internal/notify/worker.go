package notify

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"authcore/internal/app"
	"authcore/internal/claim"
	"authcore/internal/identity"
)

// RetryWorker drains eligible delivery units in batches. Each unit follows
// the claim protocol: win it, send, then mark done or release. Multiple
// workers may run against the same store; the coordinator guarantees a unit
// has at most one concurrent owner.
type RetryWorker struct {
	coord   *claim.Coordinator
	sender  Sender
	users   identity.Store
	metrics *app.Metrics
	log     *slog.Logger

	// BatchSize bounds one pass. Zero means 100.
	BatchSize int32
}

func NewRetryWorker(coord *claim.Coordinator, sender Sender, users identity.Store, metrics *app.Metrics, log *slog.Logger) *RetryWorker {
	if log == nil {
		log = slog.Default()
	}
	if sender == nil {
		sender = NoopSender{}
	}
	return &RetryWorker{coord: coord, sender: sender, users: users, metrics: metrics, log: log}
}

// Deliver runs the claim protocol once for a single unit, typically right
// after the event that warrants the notification. Losing the claim is not an
// error: another worker owns the unit.
func (w *RetryWorker) Deliver(ctx context.Context, kind string, userID int64) error {
	subject := strconv.FormatInt(userID, 10)
	won, err := w.coord.Claim(ctx, kind, subject)
	if err != nil {
		return err
	}
	if !won {
		w.countClaim("lost")
		return nil
	}
	w.countClaim("won")
	return w.attempt(ctx, kind, subject, userID)
}

// ProcessOnce runs one retry pass and reports how many units it attempted.
func (w *RetryWorker) ProcessOnce(ctx context.Context) (int, error) {
	limit := w.BatchSize
	if limit <= 0 {
		limit = 100
	}

	units, err := w.coord.Candidates(ctx, limit)
	if err != nil {
		return 0, err
	}

	attempted := 0
	for _, u := range units {
		won, err := w.coord.Claim(ctx, u.Kind, u.Subject)
		if err != nil {
			w.log.Error("notify.retry.claim", "unit", u.Key(), "err", err)
			continue
		}
		if !won {
			w.countClaim("lost")
			continue
		}
		w.countClaim("won")
		attempted++

		userID, perr := strconv.ParseInt(u.Subject, 10, 64)
		if perr != nil {
			w.release(ctx, u.Kind, u.Subject, perr)
			continue
		}
		if err := w.attempt(ctx, u.Kind, u.Subject, userID); err != nil {
			w.log.Warn("notify.retry.attempt", "unit", u.Key(), "err", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return attempted, nil
}

// Run loops ProcessOnce until ctx is done.
func (w *RetryWorker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.ProcessOnce(ctx)
			if err != nil {
				w.log.Error("notify.retry.pass", "err", err)
				continue
			}
			if n > 0 {
				w.log.Info("notify.retry.pass", "attempted", n)
			}
		}
	}
}

// attempt sends the already-claimed unit and settles the claim.
func (w *RetryWorker) attempt(ctx context.Context, kind, subject string, userID int64) error {
	u, err := w.users.GetByID(ctx, userID)
	if errors.Is(err, identity.ErrUserNotFound) {
		// The recipient is gone; settle the unit so it stops retrying.
		w.countClaim("done")
		return w.coord.Done(ctx, kind, subject)
	}
	if err != nil {
		w.release(ctx, kind, subject, err)
		return err
	}

	msg := Message{
		Kind:      kind,
		Recipient: u.Email,
		Payload:   map[string]string{"full_name": u.FullName},
	}
	msgID, err := w.sender.Send(ctx, msg)
	if err != nil {
		w.release(ctx, kind, subject, err)
		return err
	}

	w.countClaim("done")
	w.log.Info("notify.sent", "unit", kind+":"+subject, "message_id", msgID)
	return w.coord.Done(ctx, kind, subject)
}

func (w *RetryWorker) release(ctx context.Context, kind, subject string, cause error) {
	w.countClaim("released")
	if err := w.coord.Release(ctx, kind, subject, cause); err != nil {
		w.log.Error("notify.release.fail", "unit", kind+":"+subject, "err", err)
	}
}

func (w *RetryWorker) countClaim(outcome string) {
	if w.metrics != nil {
		w.metrics.Claims.WithLabelValues(outcome).Inc()
	}
}
