package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Save outcomes recorded by ObserveSave.
const (
	OutcomeDirect     = "direct"
	OutcomeSuggestion = "suggestion"
	OutcomeNoop       = "noop"
	OutcomeFailed     = "failed"
)

// Collector owns a private registry so tests can create as many as they like.
type Collector struct {
	registry           *prometheus.Registry
	handler            http.Handler
	saves              *prometheus.CounterVec
	suggestionsCreated prometheus.Counter
	requestDuration    *prometheus.HistogramVec
}

func New() *Collector {
	registry := prometheus.NewRegistry()

	saves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_saves_total",
		Help: "Entry save requests by outcome",
	}, []string{"outcome"})

	suggestionsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wiki_suggestions_created_total",
		Help: "Suggestions recorded instead of direct edits",
	})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	registry.MustRegister(
		saves,
		suggestionsCreated,
		requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		saves:              saves,
		suggestionsCreated: suggestionsCreated,
		requestDuration:    requestDuration,
	}
}

func (c *Collector) Handler() http.Handler {
	return c.handler
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveSave(outcome string) {
	c.saves.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuggestion {
		c.suggestionsCreated.Inc()
	}
}

func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
