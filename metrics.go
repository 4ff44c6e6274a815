/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"time"

	"github.com/Seednode/clicker/internal/scores"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry *prometheus.Registry

	clicks        *prometheus.CounterVec
	transactions  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	sessions      prometheus.Gauge
}

var _ scores.Observer = (*metrics)(nil)

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		clicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clicker",
			Name:      "clicks_total",
			Help:      "Clicks submitted from browser sessions, by result.",
		}, []string{"result"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clicker",
			Name:      "ledger_transactions_total",
			Help:      "Ledger transactions submitted, by instruction and result.",
		}, []string{"instruction", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clicker",
			Name:      "ledger_fetch_duration_seconds",
			Help:      "Time taken to list every game account, by result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clicker",
			Name:      "sessions_active",
			Help:      "Connected browser sessions.",
		}),
	}

	m.registry.MustRegister(
		m.clicks,
		m.transactions,
		m.fetchDuration,
		m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *metrics) ObserveFetch(d time.Duration, err error) {
	m.fetchDuration.WithLabelValues(result(err)).Observe(d.Seconds())
}

func (m *metrics) ObserveTransaction(instruction string, err error) {
	m.transactions.WithLabelValues(instruction, result(err)).Inc()
}

func (m *metrics) observeClick(err error) {
	m.clicks.WithLabelValues(result(err)).Inc()
}

func registerMetrics(cfg *Config, m *metrics, mux *httprouter.Router) {
	mux.Handler(http.MethodGet, cfg.prefix+"/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
