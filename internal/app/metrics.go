package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ambient counters for the auth core.
//
// These are operational counters only; alerting and aggregation live outside
// this module.
type Metrics struct {
	Logins        *prometheus.CounterVec // outcome: success, invalid_credentials, rate_limited, not_activated, error
	TokenRefresh  *prometheus.CounterVec // outcome: success, invalid, error
	LimiterBlocks *prometheus.CounterVec // endpoint, key_type
	CacheLookups  *prometheus.CounterVec // cache, result: hit, miss, error
	Claims        *prometheus.CounterVec // outcome: won, lost, done, released
}

// NewMetrics registers the auth counters on reg (or the default registerer
// when reg is nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		TokenRefresh: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_token_refresh_total",
			Help: "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
		LimiterBlocks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_limiter_blocks_total",
			Help: "Requests denied by the rate limiter.",
		}, []string{"endpoint", "key_type"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_cache_lookups_total",
			Help: "Read-through cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		Claims: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_claims_total",
			Help: "Unit-of-work claim transitions.",
		}, []string{"outcome"}),
	}
}
