// Package metrics exposes Prometheus instrumentation for the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts REST calls through the pipeline by method and
	// final status class.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trovia_rest_requests_total",
		Help: "REST requests issued through the authenticated pipeline.",
	}, []string{"method", "outcome"})

	// RetriesTotal counts requests replayed after a token refresh.
	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trovia_rest_retries_total",
		Help: "Requests replayed with a fresh access token.",
	})

	// RefreshesTotal counts token refresh attempts by outcome
	// (success, expired, failed).
	RefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trovia_token_refreshes_total",
		Help: "Token refresh attempts.",
	}, []string{"outcome"})

	// QueuedDuringRefresh counts requests parked while a refresh was in flight.
	QueuedDuringRefresh = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trovia_rest_queued_during_refresh_total",
		Help: "Requests queued behind an in-flight token refresh.",
	})

	// RecomputesTotal counts conversation summary recomputations.
	RecomputesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trovia_chat_recomputes_total",
		Help: "Conversation summary recomputations.",
	})

	// RealtimeEvents counts change events received per collection.
	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trovia_realtime_events_total",
		Help: "Realtime document change events received.",
	}, []string{"collection", "type"})
)
