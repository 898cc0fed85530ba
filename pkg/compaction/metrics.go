package compaction

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Attempt outcomes, used as metric labels and in events.
const (
	OutcomeSuccess            = "success"
	OutcomeEmpty              = "empty"
	OutcomeNothingToSummarize = "nothing_to_summarize"
	OutcomeRenderError        = "render_error"
	OutcomeModelError         = "model_error"
	OutcomeCancelled          = "cancelled"
	OutcomeError              = "error"
)

// Commit results.
const (
	CommitCommitted         = "committed"
	CommitAlreadySummarized = "already_summarized"
	CommitRejected          = "rejected"
)

var (
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roundup",
			Subsystem: "compaction",
			Name:      "attempts_total",
			Help:      "Total number of compaction attempts by outcome",
		},
		[]string{"outcome"},
	)

	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roundup",
			Subsystem: "compaction",
			Name:      "attempt_duration_seconds",
			Help:      "Compaction attempt duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	PromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roundup",
			Subsystem: "compaction",
			Name:      "prompt_tokens",
			Help:      "Rendered summarization prompt size in tokens",
			Buckets:   []float64{500, 1000, 2000, 5000, 10000, 20000, 50000, 100000, 200000},
		},
		[]string{"model"},
	)

	CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roundup",
			Subsystem: "compaction",
			Name:      "commits_total",
			Help:      "Total number of summary commits by result",
		},
		[]string{"result"},
	)
)

func observeAttempt(outcome string, d time.Duration) {
	AttemptsTotal.WithLabelValues(outcome).Inc()
	AttemptDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
