// Package daemon wires the auth core into a runnable service: config,
// stores, the flow orchestrator, the notification retry worker, and the
// operational HTTP surface (metrics, health). The platform embeds a Daemon
// and calls Auth() for the login/refresh/logout/authenticate API; cmd/authd
// runs one standalone.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"authcore/internal/app"
	"authcore/internal/authcache"
	"authcore/internal/backoff"
	"authcore/internal/claim"
	"authcore/internal/flow"
	"authcore/internal/identity"
	"authcore/internal/notify"
	"authcore/internal/ratelimit"
	"authcore/internal/security/password"
	sectoken "authcore/internal/security/token"
	"authcore/internal/session"
	"authcore/internal/token"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Daemon owns the wired auth core and its background surfaces.
type Daemon struct {
	cfg app.Config
	log *slog.Logger

	pool *pgxpool.Pool // nil in memory mode
	rdb  *redis.Client // nil when no shared cache is configured

	registry *prometheus.Registry
	svc      *flow.Service
	worker   *notify.RetryWorker
}

// New constructs a fully wired Daemon. An empty DatabaseURL selects the
// in-memory stores, which is a development mode: state does not survive the
// process.
func New(ctx context.Context, cfg app.Config, log *slog.Logger) (*Daemon, error) {
	if log == nil {
		log = app.NewLogger(cfg.LogLevel)
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		p, err := app.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := app.PingDB(ctx, p, 5*time.Second); err != nil {
			p.Close()
			return nil, err
		}
		pool = p
	} else {
		log.Info("db.disabled.inmemory_store")
	}

	rdb, err := app.NewRedis(ctx, cfg)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := app.NewMetrics(registry)

	d, err := build(cfg, log, pool, rdb, metrics)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}
	d.registry = registry
	return d, nil
}

func build(cfg app.Config, log *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client, metrics *app.Metrics) (*Daemon, error) {
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	tokCfg, err := token.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewManager(tokCfg)
	if err != nil {
		return nil, err
	}

	var users identity.Store
	var sessStore session.Store
	var claimStore claim.Store
	var audit flow.AuditSink = flow.NoopAudit{}
	if pool != nil {
		pgUsers, err := identity.NewPostgresStore(pool)
		if err != nil {
			return nil, err
		}
		pgSessions, err := session.NewPostgresStore(pool, log, cfg.DBStatementTimeout)
		if err != nil {
			return nil, err
		}
		users = pgUsers
		sessStore = pgSessions
		claimStore = claim.NewPostgresStore(pool)
		audit = flow.NewPostgresAudit(pool, log)
	} else {
		users = identity.NewMemoryStore()
		sessStore = session.NewMemoryStore()
		claimStore = claim.NewMemoryStore()
	}

	resolver, err := token.NewResolver(tokens, users, log)
	if err != nil {
		return nil, err
	}

	var counters ratelimit.CounterStore = ratelimit.NewMemoryStore()
	if rdb != nil {
		counters, err = ratelimit.NewRedisStore(rdb)
		if err != nil {
			return nil, err
		}
	}
	limiter, err := ratelimit.New(ratelimit.DefaultConfig(), counters)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewService(session.DefaultConfig(), sessStore, log)
	if err != nil {
		return nil, err
	}

	hmacKey, _ := sectoken.HMACKeyFromEnv(16)
	svc, err := flow.NewService(flow.Deps{
		Users:      users,
		Passwords:  pwCfg,
		Limiter:    limiter,
		Backoff:    backoff.DefaultConfig(),
		Sessions:   sessions,
		Tokens:     tokens,
		Resolver:   resolver,
		LoginCache: authcache.NewLoginUserCache(rdb, 2*time.Minute, hmacKey),
		CtxCache:   authcache.NewAuthContextCache(rdb, time.Minute),
		Audit:      audit,
		Metrics:    metrics,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	coord := claim.NewCoordinator(claimStore, claim.DefaultConfig(), log)
	worker := notify.NewRetryWorker(coord, notify.NoopSender{}, users, metrics, log)

	return &Daemon{
		cfg:    cfg,
		log:    log,
		pool:   pool,
		rdb:    rdb,
		svc:    svc,
		worker: worker,
	}, nil
}

// Auth returns the flow service the platform embeds for login, refresh,
// logout, and authenticate.
func (d *Daemon) Auth() *flow.Service { return d.svc }

// Run serves the operational endpoints and drives the retry worker until ctx
// is canceled or the server fails.
func (d *Daemon) Run(ctx context.Context) error {
	go d.worker.Run(ctx, d.cfg.RetryInterval)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.pool != nil {
			if err := app.PingDB(r.Context(), d.pool, 2*time.Second); err != nil {
				http.Error(w, "db unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              d.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	d.log.Info("authd.start",
		"metrics_addr", d.cfg.MetricsAddr,
		"db_enabled", d.pool != nil,
		"redis_enabled", d.rdb != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		d.log.Info("authd.stop", "reason", "context_done")
	case err := <-errCh:
		d.log.Error("authd.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		d.log.Error("authd.shutdown.fail", "err", err)
		return err
	}

	d.close()
	d.log.Info("authd.stopped")
	return nil
}

func (d *Daemon) close() {
	if d.pool != nil {
		d.pool.Close()
	}
	if d.rdb != nil {
		_ = d.rdb.Close()
	}
}
