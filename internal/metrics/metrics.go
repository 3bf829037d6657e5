package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal        *prometheus.CounterVec
	eventsPublishedTotal     *prometheus.CounterVec
	eventsConsumedTotal      *prometheus.CounterVec
	publishFailuresTotal     prometheus.Counter
	relayDecodeFailuresTotal prometheus.Counter
	broadcastsTotal          *prometheus.CounterVec
	registerOnce             sync.Once
)

// Register initializes Prometheus metrics on the default registry.
func Register() {
	registerOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "votecast",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed by the polling API.",
		}, []string{"method", "path", "status"})
		eventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "votecast",
			Name:      "events_published_total",
			Help:      "Domain events appended to the vote topic.",
		}, []string{"type"})
		eventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "votecast",
			Name:      "events_consumed_total",
			Help:      "Topic messages processed by the relay.",
		}, []string{"type"})
		publishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "votecast",
			Name:      "publish_failures_total",
			Help:      "Committed writes whose live notification was lost.",
		})
		relayDecodeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "votecast",
			Name:      "relay_decode_failures_total",
			Help:      "Topic messages skipped as malformed.",
		})
		broadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "votecast",
			Name:      "broadcasts_total",
			Help:      "Events fanned out to live clients, by scope.",
		}, []string{"scope"})
	})
}

// IncRequest increments the http_requests_total counter with the given labels.
func IncRequest(method, path string, status int) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

func IncEventPublished(eventType string) {
	if eventsPublishedTotal == nil {
		return
	}
	eventsPublishedTotal.WithLabelValues(eventType).Inc()
}

func IncEventConsumed(eventType string) {
	if eventsConsumedTotal == nil {
		return
	}
	eventsConsumedTotal.WithLabelValues(eventType).Inc()
}

func IncPublishFailure() {
	if publishFailuresTotal == nil {
		return
	}
	publishFailuresTotal.Inc()
}

func IncRelayDecodeFailure() {
	if relayDecodeFailuresTotal == nil {
		return
	}
	relayDecodeFailuresTotal.Inc()
}

func IncBroadcast(scope string) {
	if broadcastsTotal == nil {
		return
	}
	broadcastsTotal.WithLabelValues(scope).Inc()
}
