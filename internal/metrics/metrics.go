package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	provisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenancy",
		Name:      "provision_total",
		Help:      "Provisioning attempts by outcome.",
	}, []string{"outcome"})

	sessionSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenancy",
		Name:      "session_sync_total",
		Help:      "Session synchronizer events by kind.",
	}, []string{"event"})

	availabilityTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenancy",
		Name:      "availability_checks_total",
		Help:      "Subdomain availability checks by result.",
	}, []string{"result"})
)

// ProvisionOutcome records one provisioning attempt.
func ProvisionOutcome(outcome string) {
	provisionTotal.WithLabelValues(outcome).Inc()
}

// SessionSyncEvent records one synchronizer event (broadcast, adopt, ignore, signout).
func SessionSyncEvent(event string) {
	sessionSyncTotal.WithLabelValues(event).Inc()
}

// AvailabilityResult records one availability check result.
func AvailabilityResult(result string) {
	availabilityTotal.WithLabelValues(result).Inc()
}
