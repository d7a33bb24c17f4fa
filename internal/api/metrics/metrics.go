// Package metrics defines and registers all custom Prometheus metrics for the
// fintrack identity service. It is the single source of truth for metric
// names, labels, and help strings.
//
// Call sites use the package-level collectors directly; promauto registers
// them with the default registry at init time.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fintrack"

// ── Authentication metrics ────────────────────────────────────────────────────

// LoginsTotal counts authentication attempts.
// Label:
//   - result: "ok", "invalid", "locked"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of authentication attempts, by result.",
	},
	[]string{"result"},
)

// RegistrationsTotal counts registration attempts.
// Label:
//   - result: "ok", "rejected", "provisioning_failed"
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of registrations, by result.",
	},
	[]string{"result"},
)

// TokenRefreshTotal counts refresh rotations.
// Label:
//   - result: "ok" or "invalid"
var TokenRefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refresh_total",
		Help:      "Total number of refresh token rotations, by result.",
	},
	[]string{"result"},
)

// ── Tenant metrics ────────────────────────────────────────────────────────────

// TenantsProvisionedTotal counts tenant resources created.
var TenantsProvisionedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenants_provisioned_total",
		Help:      "Total number of tenant resources provisioned.",
	},
)

// SessionsSweptTotal counts ledger rows removed by the expiry sweep.
var SessionsSweptTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_swept_total",
		Help:      "Total number of expired session rows deleted by the sweeper.",
	},
)
