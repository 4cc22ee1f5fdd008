package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MiningSyncTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mining_session_syncs_total",
			Help: "Total session snapshot flushes attempted",
		},
	)
	MiningSyncFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mining_session_sync_failures_total",
			Help: "Session snapshot flushes that failed and will be retried",
		},
	)
	MiningClaims = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mining_claims_total",
			Help: "Total successful balance claims",
		},
	)
	MiningPurchases = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mining_tier_purchases_total",
			Help: "Total paid tier purchases and renewals",
		},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mining_active_sessions",
			Help: "Reconcilers currently ticking",
		},
	)
)

func init() {
	prometheus.MustRegister(MiningSyncTotal)
	prometheus.MustRegister(MiningSyncFailures)
	prometheus.MustRegister(MiningClaims)
	prometheus.MustRegister(MiningPurchases)
	prometheus.MustRegister(ActiveSessions)
}
