package workflow

import "github.com/prometheus/client_golang/prometheus"

var (
	// synthAttempts counts calls to the synthesis backend by outcome.
	synthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synth_requests_total",
			Help: "Total calls to the synthesis backend, including retries.",
		},
		[]string{"outcome"},
	)

	// jobsFinished counts terminal job transitions by result. The "reason"
	// label stays coarse (completed, generation_failed, insufficient_credits,
	// persistence_failed) to keep cardinality bounded.
	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_finished_total",
			Help: "Generation jobs that reached a terminal state.",
		},
		[]string{"result"},
	)

	// jobDuration observes wall time from claim to terminal state.
	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "generation_job_duration_seconds",
			Help:    "Duration of generation jobs from claim to terminal state.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

func init() {
	prometheus.MustRegister(synthAttempts, jobsFinished, jobDuration)
}
