// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

import (
	"context"
	"net/http"

	"github.com/danribes/pfm-solana-rust-sub010/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pfm"

// Metrics holds the collectors exported on /metrics
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	LedgerEvents    *prometheus.CounterVec
	LedgerRejects   *prometheus.CounterVec
	AuthAttempts    *prometheus.CounterVec
	QuestionsClosed prometheus.Counter
	StreamClients   prometheus.Gauge
}

// New registers every collector on a fresh registry, so tests can build several
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route pattern and status code",
			},
			[]string{"route", "code"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by route pattern",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		LedgerEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "events_total",
				Help:      "Committed ledger events by kind",
			},
			[]string{"kind"},
		),
		LedgerRejects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "rejections_total",
				Help:      "Operations refused by a ledger rule, by error code",
			},
			[]string{"code"},
		),
		AuthAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "attempts_total",
				Help:      "Wallet authentication attempts by step and outcome",
			},
			[]string{"step", "outcome"},
		),
		QuestionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "questions_closed_total",
			Help:      "Expired questions closed by the sweeper",
		}),
		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected event stream clients",
		}),
	}
}

// Registry exposes the underlying registry for gathering in tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Publish counts committed ledger events, so Metrics can sit in an event fanout
func (m *Metrics) Publish(_ context.Context, ev models.Event) error {
	m.LedgerEvents.WithLabelValues(ev.Kind).Inc()
	return nil
}

// Reject counts a refused operation; a nil Metrics ignores it
func (m *Metrics) Reject(code string) {
	if m == nil {
		return
	}
	m.LedgerRejects.WithLabelValues(code).Inc()
}

// Auth counts one step of the wallet login flow
func (m *Metrics) Auth(step string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.AuthAttempts.WithLabelValues(step, outcome).Inc()
}
