package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// spkGenerated counts issued numbers by path (atomic, degraded, replay).
	spkGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spk_generated_total",
			Help: "Total number of SPK numbers issued.",
		},
		[]string{"mode"},
	)

	// spkGenerationFailures counts generate calls that returned an error.
	spkGenerationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spk_generation_failures_total",
			Help: "Total number of failed SPK generation attempts by reason.",
		},
		[]string{"reason"},
	)

	// spkClaimCollisions counts claims lost to a live reservation or an existing order.
	spkClaimCollisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spk_claim_collisions_total",
			Help: "Total number of reservation claims that did not succeed.",
		},
		[]string{"cause"},
	)

	// spkVerifications counts verify outcomes.
	spkVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spk_verifications_total",
			Help: "Total number of SPK verifications by result.",
		},
		[]string{"result"},
	)

	// spkSwept counts reservations removed by the expiry sweep.
	spkSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spk_reservations_swept_total",
			Help: "Total number of expired reservations removed.",
		},
	)
)

func init() {
	prometheus.MustRegister(spkGenerated, spkGenerationFailures, spkClaimCollisions, spkVerifications, spkSwept)
}
