// Package flow composes the auth core into the end-to-end login, refresh,
// logout, and authenticate protocols.
//
// Login is a fixed pipeline: rate check, identity lookup, backoff,
// credential check, activation check, session create, token issue. No step
// is skipped, and the unknown-identity and wrong-secret paths are kept
// indistinguishable in timing, auditing, and response.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"authcore/internal/app"
	"authcore/internal/authcache"
	"authcore/internal/backoff"
	"authcore/internal/identity"
	"authcore/internal/ratelimit"
	"authcore/internal/security/password"
	"authcore/internal/session"
	"authcore/internal/token"

	"github.com/google/uuid"
)

const endpointLogin = "login"

// UserSummary is the hash-free user projection returned to clients.
type UserSummary struct {
	ID        int64
	AuthID    uuid.UUID
	Email     string
	FullName  string
	Role      string
	Activated bool
}

func summarize(u identity.User) UserSummary {
	return UserSummary{
		ID:        u.ID,
		AuthID:    u.AuthID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		Activated: u.Activated,
	}
}

// LoginResult is the successful outcome of Login.
type LoginResult struct {
	Tokens token.Pair
	User   UserSummary

	// SessionRecorded reports whether the session row was written. A
	// failed write does not fail the login; the tokens remain valid.
	SessionRecorded session.BestEffort
}

// Service orchestrates the auth flows.
type Service struct {
	users     identity.Store
	passwords password.Config
	limiter   *ratelimit.Limiter
	backoff   backoff.Config
	sessions  *session.Service
	tokens    *token.Manager
	resolver  *token.Resolver

	loginCache *authcache.LoginUserCache
	ctxCache   *authcache.AuthContextCache

	audit   AuditSink
	metrics *app.Metrics
	log     *slog.Logger

	// dummyHash is verified against when no identity matches, so the
	// missing-user path costs the same as a wrong secret.
	dummyHash string
}

// Deps carries the collaborators a Service composes.
type Deps struct {
	Users      identity.Store
	Passwords  password.Config
	Limiter    *ratelimit.Limiter
	Backoff    backoff.Config
	Sessions   *session.Service
	Tokens     *token.Manager
	Resolver   *token.Resolver
	LoginCache *authcache.LoginUserCache
	CtxCache   *authcache.AuthContextCache
	Audit      AuditSink
	Metrics    *app.Metrics
	Logger     *slog.Logger
}

// NewService wires the orchestrator. Users, Limiter, Sessions, Tokens, and
// Resolver are required; caches may be nil (permanent miss) and a nil Audit
// falls back to NoopAudit.
func NewService(d Deps) (*Service, error) {
	if d.Users == nil || d.Limiter == nil || d.Sessions == nil || d.Tokens == nil || d.Resolver == nil {
		return nil, errors.New("flow: missing required dependency")
	}
	if d.Audit == nil {
		d.Audit = NoopAudit{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.LoginCache == nil {
		d.LoginCache = authcache.NewLoginUserCache(nil, 0, nil)
	}
	if d.CtxCache == nil {
		d.CtxCache = authcache.NewAuthContextCache(nil, 0)
	}

	dummy, err := d.Passwords.DummyHash()
	if err != nil {
		return nil, err
	}

	return &Service{
		users:      d.Users,
		passwords:  d.Passwords,
		limiter:    d.Limiter,
		backoff:    d.Backoff,
		sessions:   d.Sessions,
		tokens:     d.Tokens,
		resolver:   d.Resolver,
		loginCache: d.LoginCache,
		ctxCache:   d.CtxCache,
		audit:      d.Audit,
		metrics:    d.Metrics,
		log:        d.Logger,
		dummyHash:  dummy,
	}, nil
}

// Login runs the full login pipeline for an email and secret.
func (s *Service) Login(ctx context.Context, email, secret string, meta session.ClientMeta) (LoginResult, error) {
	email = identity.NormalizeEmail(email)
	ipKey := ""
	if meta.IP != nil {
		ipKey = meta.IP.String()
	}

	// Rate check: both keyings consume an attempt, so neither rotating
	// addresses nor rotating identities resets the other counter.
	if dec, blockedBy := s.rateCheck(ctx, ipKey, email); !dec.Allowed {
		s.audit.Emit(ctx, AuditEvent{Kind: AuditLoginBlocked, IP: meta.IP, UserAgent: meta.UserAgent, Detail: string(blockedBy)})
		s.countLogin("rate_limited")
		if s.metrics != nil {
			s.metrics.LimiterBlocks.WithLabelValues(endpointLogin, string(blockedBy)).Inc()
		}
		return LoginResult{}, rateLimited(dec.RetryAfter)
	}

	// Identity lookup through the login-user cache. The cached projection
	// never includes the credential digest, so a hit is followed by a
	// primary-key read.
	u, found, err := s.lookupForLogin(ctx, email)
	if err != nil {
		s.countLogin("error")
		return LoginResult{}, ErrInternal
	}

	// Backoff scaled to recent failures for either keying. It runs before
	// credential comparison on every path, found or not.
	failures := s.recentFailures(ctx, ipKey, email)
	if err := s.backoff.Sleep(ctx, failures); err != nil {
		s.countLogin("error")
		return LoginResult{}, ErrInternal
	}

	// Credential check. The missing-identity path verifies against a dummy
	// digest so its cost matches the wrong-secret path.
	hash := s.dummyHash
	if found {
		hash = u.PasswordHash
	}
	ok, verr := s.passwords.Verify(hash, secret)
	if verr != nil || !ok || !found {
		s.audit.Emit(ctx, AuditEvent{Kind: AuditLoginFailed, IP: meta.IP, UserAgent: meta.UserAgent})
		s.countLogin("invalid_credentials")
		return LoginResult{}, ErrInvalidCredentials
	}

	// Activation check, audited identically to a credential failure.
	if !u.IsActive() {
		s.audit.Emit(ctx, AuditEvent{Kind: AuditLoginFailed, UserID: u.ID, IP: meta.IP, UserAgent: meta.UserAgent})
		s.countLogin("not_activated")
		return LoginResult{}, ErrNotActivated
	}

	pair, err := s.issueAndRecord(ctx, &u, meta)
	if err != nil {
		s.countLogin("error")
		return LoginResult{}, ErrInternal
	}

	// Success: clear both counters and warm the caches, all best-effort.
	s.limiter.Reset(ctx, endpointLogin, ratelimit.KeyIP, ipKey)
	s.limiter.Reset(ctx, endpointLogin, ratelimit.KeyIdentifier, email)
	s.warmCaches(ctx, email, u)
	s.audit.Emit(ctx, AuditEvent{Kind: AuditLoginSuccess, UserID: u.ID, IP: meta.IP, UserAgent: meta.UserAgent})
	s.countLogin("success")

	return LoginResult{
		Tokens:          pair.Pair,
		User:            summarize(u),
		SessionRecorded: pair.Recorded,
	}, nil
}

// Refresh rotates the token pair. The new session row replaces the previous
// one through the same exclusive-create protocol as login.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta session.ClientMeta) (LoginResult, error) {
	u, err := s.resolver.Resolve(ctx, refreshToken, token.KindRefresh)
	if err != nil {
		s.countRefresh("invalid")
		return LoginResult{}, tokenError(err)
	}
	if !u.IsActive() {
		s.countRefresh("invalid")
		return LoginResult{}, ErrNotActivated
	}

	pair, err := s.issueAndRecord(ctx, &u, meta)
	if err != nil {
		s.countRefresh("error")
		return LoginResult{}, ErrInternal
	}

	s.audit.Emit(ctx, AuditEvent{Kind: AuditRefresh, UserID: u.ID, IP: meta.IP, UserAgent: meta.UserAgent})
	s.countRefresh("success")

	return LoginResult{
		Tokens:          pair.Pair,
		User:            summarize(u),
		SessionRecorded: pair.Recorded,
	}, nil
}

// Logout revokes the session holding the refresh token's digest and returns
// how many rows were revoked (0 or 1). It is idempotent and succeeds even
// for tokens that never had a session row.
func (s *Service) Logout(ctx context.Context, refreshToken string) (int64, error) {
	revoked, err := s.sessions.RevokeByToken(ctx, refreshToken)
	if err != nil {
		return 0, ErrInternal
	}
	if revoked > 0 {
		s.audit.Emit(ctx, AuditEvent{Kind: AuditLogout})
	}
	return revoked, nil
}

// Authenticate verifies an access token and returns the caller's user
// projection, consulting the auth-context cache before the user store. A
// cache outage degrades to the store lookup with identical results.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (identity.User, error) {
	subject, err := s.tokens.Verify(accessToken, token.KindAccess)
	if err != nil {
		return identity.User{}, ErrTokenInvalid
	}

	if authID, perr := uuid.Parse(subject); perr == nil {
		if entry, res := s.ctxCache.Get(ctx, authID); res.Hit {
			s.countCache("auth_ctx", "hit")
			u := entry.User()
			if !u.IsActive() {
				return identity.User{}, ErrNotActivated
			}
			return u, nil
		} else if res.Err != nil {
			s.countCache("auth_ctx", "error")
		} else {
			s.countCache("auth_ctx", "miss")
		}
	}

	u, err := s.resolver.Resolve(ctx, accessToken, token.KindAccess)
	if err != nil {
		return identity.User{}, tokenError(err)
	}
	if !u.IsActive() {
		return identity.User{}, ErrNotActivated
	}

	var entry authcache.AuthContextEntry
	entry.FromUser(u)
	s.ctxCache.Set(ctx, entry)

	u.PasswordHash = ""
	return u, nil
}

type issued struct {
	Pair     token.Pair
	Recorded session.BestEffort
}

func (s *Service) issueAndRecord(ctx context.Context, u *identity.User, meta session.ClientMeta) (issued, error) {
	pair, err := s.tokens.IssuePair(s.ensureSubject(ctx, u))
	if err != nil {
		return issued{}, err
	}

	// The session row tracks the refresh token: logout revokes by its
	// digest, and each refresh replaces the row under the same protocol.
	rec := s.sessions.Record(ctx, u.ID, pair.RefreshToken, pair.RefreshExp, meta)
	if !rec.OK {
		s.log.Error("login.session.unrecorded", "user_id", u.ID, "err", rec.Err)
	}
	return issued{Pair: pair, Recorded: rec}, nil
}

// ensureSubject returns the canonical UUID subject, assigning one first for
// legacy records that never got the backfill. A token minted on the nil UUID
// would verify but match no user, so when the backfill write fails the token
// falls back to the legacy numeric subject, which the resolver still accepts.
func (s *Service) ensureSubject(ctx context.Context, u *identity.User) string {
	if u.AuthID != uuid.Nil {
		return u.AuthID.String()
	}

	fresh := uuid.New()
	if err := s.users.BackfillAuthID(ctx, u.ID, fresh); err != nil {
		s.log.Warn("login.subject.backfill.fail", "user_id", u.ID, "err", err)
		return strconv.FormatInt(u.ID, 10)
	}
	u.AuthID = fresh
	s.log.Info("login.subject.backfill", "user_id", u.ID)
	return fresh.String()
}

func (s *Service) rateCheck(ctx context.Context, ipKey, email string) (ratelimit.Decision, ratelimit.KeyType) {
	worst := ratelimit.Decision{Allowed: true}
	blockedBy := ratelimit.KeyIP

	for _, k := range []struct {
		kt  ratelimit.KeyType
		val string
	}{
		{ratelimit.KeyIP, ipKey},
		{ratelimit.KeyIdentifier, email},
	} {
		if k.val == "" {
			continue
		}
		dec, err := s.limiter.CheckAndConsume(ctx, endpointLogin, k.kt, k.val)
		if err != nil {
			// Fail open, but keep the decision the limiter reached.
			s.log.Warn("login.ratelimit.store", "key_type", k.kt, "err", err)
		}
		if !dec.Allowed && (worst.Allowed || dec.RetryAfter > worst.RetryAfter) {
			worst = dec
			blockedBy = k.kt
		}
	}
	return worst, blockedBy
}

func (s *Service) recentFailures(ctx context.Context, ipKey, email string) int {
	max := 0
	for _, k := range []struct {
		kt  ratelimit.KeyType
		val string
	}{
		{ratelimit.KeyIP, ipKey},
		{ratelimit.KeyIdentifier, email},
	} {
		if k.val == "" {
			continue
		}
		if n, err := s.limiter.Failures(ctx, endpointLogin, k.kt, k.val); err == nil && n > max {
			max = n
		}
	}
	return max
}

// lookupForLogin resolves the login identity through the cache. found=false
// with a nil error means no such user; the caller continues down the same
// path regardless.
func (s *Service) lookupForLogin(ctx context.Context, email string) (identity.User, bool, error) {
	if entry, res := s.loginCache.Get(ctx, email); res.Hit {
		s.countCache("login_user", "hit")
		u, err := s.users.GetByID(ctx, entry.UserID)
		if errors.Is(err, identity.ErrUserNotFound) {
			s.loginCache.Invalidate(ctx, email)
			return identity.User{}, false, nil
		}
		if err != nil {
			return identity.User{}, false, err
		}
		return u, true, nil
	} else if res.Err != nil {
		s.countCache("login_user", "error")
	} else {
		s.countCache("login_user", "miss")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, identity.ErrUserNotFound) {
		return identity.User{}, false, nil
	}
	if err != nil {
		return identity.User{}, false, err
	}
	return u, true, nil
}

func (s *Service) warmCaches(ctx context.Context, email string, u identity.User) {
	var le authcache.LoginUserEntry
	le.FromUser(u)
	s.loginCache.Set(ctx, email, le)

	var ce authcache.AuthContextEntry
	ce.FromUser(u)
	s.ctxCache.Set(ctx, ce)
}

func (s *Service) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.Logins.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countRefresh(outcome string) {
	if s.metrics != nil {
		s.metrics.TokenRefresh.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countCache(cache, result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(cache, result).Inc()
	}
}

func tokenError(err error) *AuthError {
	if errors.Is(err, token.ErrSubjectUnresolvable) {
		return ErrSubjectUnresolvable
	}
	if errors.Is(err, token.ErrTokenInvalid) {
		return ErrTokenInvalid
	}
	return ErrInternal
}
