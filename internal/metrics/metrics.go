// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CandidatesGenerated counts successfully emitted candidates.
	CandidatesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postty_candidates_generated_total",
		Help: "Candidates generated and emitted to callers.",
	})

	// CandidatesFailed counts candidates that terminated a batch.
	CandidatesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postty_candidates_failed_total",
		Help: "Candidate attempts that failed terminally.",
	})

	// SafetyRewrites counts safety-block rewrite retries.
	SafetyRewrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postty_safety_rewrites_total",
		Help: "Prompt rewrites triggered by content-policy rejections.",
	})

	// EnrichmentFallbacks counts candidates that degraded to the unenriched prompt.
	EnrichmentFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postty_enrichment_fallbacks_total",
		Help: "Candidates that fell back to the unenriched prompt.",
	})

	// PublishAttempts counts calls to the platform publish endpoint.
	PublishAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postty_publish_attempts_total",
		Help: "Publish calls issued against the platform.",
	})

	// PublishRetries counts transient-not-ready publish retries.
	PublishRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postty_publish_retries_total",
		Help: "Publish retries caused by the transient not-ready signal.",
	})

	// PublishOutcomes counts terminal publish results by outcome.
	PublishOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postty_publish_outcomes_total",
		Help: "Terminal publish outcomes.",
	}, []string{"outcome"})
)
