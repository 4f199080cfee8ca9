package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		chatRequests,
		chatStreamSeconds,
		keywordsEmitted,
		sessionsCreated,
	)
}

// Chat request outcomes.
const (
	StatusOK         = "ok"
	StatusBadRequest = "bad_request"
	StatusLLMError   = "llm_error"
	StatusStoreError = "store_error"
	StatusAborted    = "aborted"
)

var (
	chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elf_chat_requests_total",
			Help: "Chat requests by provider and outcome.",
		},
		[]string{"provider", "status"},
	)

	chatStreamSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "elf_chat_stream_seconds",
			Help:    "Time from chat request to the end of the streamed reply.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 90},
		},
		[]string{"provider", "status"},
	)

	keywordsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elf_keywords_emitted_total",
			Help: "Control keywords reported to the widget.",
		},
		[]string{"keyword"},
	)

	sessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "elf_sessions_created_total",
			Help: "Sessions started by new visitors.",
		},
	)
)

// ObserveChat records the outcome of one chat request.
func ObserveChat(provider, status string, elapsed time.Duration) {
	chatRequests.WithLabelValues(norm(provider), status).Inc()
	chatStreamSeconds.WithLabelValues(norm(provider), status).Observe(elapsed.Seconds())
}

// KeywordEmitted counts one keyword sent in a reply trailer.
func KeywordEmitted(keyword string) {
	keywordsEmitted.WithLabelValues(keyword).Inc()
}

// SessionCreated counts a new session.
func SessionCreated() {
	sessionsCreated.Inc()
}

func norm(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "unknown"
	}
	return s
}
