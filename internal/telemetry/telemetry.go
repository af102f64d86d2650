// SPDX-License-Identifier: MIT

// Package telemetry holds the prometheus collectors and the OpenTelemetry
// tracer used by the scheduler and the evidence aggregator.
//
// Collectors are registered once per Registerer; Default registers on the
// prometheus default registry the first time it is called.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span.
const TracerName = "scalebp"

// Sweep outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// Metrics bundles the engine collectors.
type Metrics struct {
	SweepsTotal    *prometheus.CounterVec
	MessagesTotal  *prometheus.CounterVec
	SweepDuration  *prometheus.HistogramVec
	CutDiscrepancy prometheus.Histogram
}

// NewMetrics creates and registers the collectors on reg.
// It panics if they are already registered there (promauto semantics).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		SweepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scalebp_sweeps_total",
			Help: "Message-passing sweeps by direction and outcome",
		}, []string{"direction", "outcome"}),
		MessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scalebp_messages_total",
			Help: "Edge messages computed by direction",
		}, []string{"direction"}),
		SweepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scalebp_sweep_duration_seconds",
			Help:    "Wall time of one sweep",
			Buckets: []float64{1e-5, 1e-4, 1e-3, 0.01, 0.1, 1, 10},
		}, []string{"direction"}),
		CutDiscrepancy: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scalebp_cut_discrepancy",
			Help:    "Largest difference of the log-evidence read at different variables",
			Buckets: []float64{1e-14, 1e-12, 1e-10, 1e-8, 1e-6, 1e-4},
		}),
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the collectors registered on prometheus.DefaultRegisterer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})

	return defaultMetrics
}

// ObserveSweep records one finished sweep. A nil receiver is a no-op.
func (m *Metrics) ObserveSweep(direction, outcome string, messages int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SweepsTotal.WithLabelValues(direction, outcome).Inc()
	m.MessagesTotal.WithLabelValues(direction).Add(float64(messages))
	m.SweepDuration.WithLabelValues(direction).Observe(elapsed.Seconds())
}

// ObserveDiscrepancy records the cut discrepancy of an evidence report.
func (m *Metrics) ObserveDiscrepancy(d float64) {
	if m == nil {
		return
	}
	m.CutDiscrepancy.Observe(d)
}

var (
	tracerOnce sync.Once
	tracer     trace.Tracer
)

// Tracer returns the package tracer, created from the global provider on
// first use so that a provider installed at startup is picked up.
func Tracer() trace.Tracer {
	tracerOnce.Do(func() {
		tracer = otel.Tracer(TracerName)
	})

	return tracer
}

// StartSpan starts a span on tr (the package tracer when tr is nil).
func StartSpan(ctx context.Context, tr trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tr == nil {
		tr = Tracer()
	}

	return tr.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
