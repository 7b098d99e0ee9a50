// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jeranaias/vpexport/internal/model"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// kindNone labels successful runs.
const kindNone = "none"

// Metrics holds the export collectors. A nil *Metrics records nothing.
type Metrics struct {
	exports  *prometheus.CounterVec
	stages   *prometheus.HistogramVec
	inFlight prometheus.Gauge
	bytes    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vpexport_exports_total",
			Help: "Export runs by outcome and error kind.",
		}, []string{"outcome", "kind"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vpexport_stage_duration_seconds",
			Help:    "Time spent in each export stage.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"stage"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vpexport_exports_in_flight",
			Help: "Export runs currently in progress.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vpexport_delivered_bytes_total",
			Help: "Bytes of archives delivered.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.exports, m.stages, m.inFlight, m.bytes)
	}
	return m
}

// Started marks a run as in flight. Call the returned func when it ends.
func (m *Metrics) Started() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordExport counts a finished run. A nil err is a success.
func (m *Metrics) RecordExport(err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.exports.WithLabelValues(OutcomeSuccess, kindNone).Inc()
		return
	}
	m.exports.WithLabelValues(OutcomeFailure, model.KindOf(err).String()).Inc()
}

// RecordDelivered adds a delivered archive's size.
func (m *Metrics) RecordDelivered(size int) {
	if m == nil {
		return
	}
	m.bytes.Add(float64(size))
}

// WriteTextfile writes everything g gathers to path in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	return prometheus.WriteToTextfile(path, g)
}
