package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// completionSegments counts provider segments attached to a response.
	completionSegments = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "completion_segments_total",
		Help: "Total number of LLM response segments streamed.",
	})

	// completionContinuations counts segments requested because the previous
	// one was truncated.
	completionContinuations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "completion_continuations_total",
		Help: "Total number of continuation segments requested after truncation.",
	})

	// completionFailures counts responses that ended with an error, by reason.
	completionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_failures_total",
			Help: "Total number of streamed responses that failed.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(completionSegments, completionContinuations, completionFailures)
}
