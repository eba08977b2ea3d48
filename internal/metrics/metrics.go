package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairstream_ticks_ingested_total", Help: "Normalized ticks accepted from the feed"},
		[]string{"symbol"},
	)
	TicksDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairstream_ticks_dropped_total", Help: "Ticks dropped before persistence or delivery"},
		[]string{"symbol", "reason"},
	)
	FeedReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairstream_feed_reconnects_total", Help: "WebSocket reconnect attempts per symbol"},
		[]string{"symbol"},
	)
	PersistFlushes = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pairstream_persist_flushes_total", Help: "Completed persistence batch flushes"},
	)
	PersistFlushErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pairstream_persist_flush_errors_total", Help: "Persistence batch flushes that failed and were discarded"},
	)
	AlertEvents = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pairstream_alert_events_total", Help: "Alert rules triggered"},
	)
)

// Drop reasons used with TicksDropped.
const (
	ReasonParse          = "parse"
	ReasonQueueFull      = "queue_full"
	ReasonSlowSubscriber = "slow_subscriber"
)

func init() {
	prometheus.MustRegister(
		TicksIngested,
		TicksDropped,
		FeedReconnects,
		PersistFlushes,
		PersistFlushErrors,
		AlertEvents,
	)
}

// Serve exposes /metrics on the given address. The returned server can be
// shut down by the caller.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
