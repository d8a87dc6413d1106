package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	authclient "github.com/givebase/authclient"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// latencyBucketSuffix labels the histogram bucket gauges, ordered to match
// the snapshot's bucket layout.
var latencyBucketSuffix = [8]string{
	"25ms", "50ms", "100ms", "250ms", "500ms", "1s", "2500ms", "inf",
}

type metricsSource interface {
	MetricsSnapshot() authclient.MetricsSnapshot
	AuditDropped() uint64
}

type observedCounter struct {
	id         authclient.MetricID
	instrument metric.Int64ObservableCounter
}

// Exporter bridges the client's in-process counters onto an OTel Meter.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	latency      [8]metric.Int64ObservableGauge
	latencyCount metric.Int64ObservableGauge
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers instruments for client on meter.
func NewExporter(meter metric.Meter, client *authclient.Client) (*Exporter, error) {
	return NewExporterFromSource(meter, client)
}

// NewExporterFromSource is NewExporter for any snapshot source, used by tests
// and by callers that wrap the client.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	ids := authclient.CounterIDs()
	exporter := &Exporter{
		source:   source,
		counters: make([]observedCounter, 0, len(ids)),
	}

	observables := make([]metric.Observable, 0, len(ids)+len(latencyBucketSuffix)+2)

	for _, id := range ids {
		name := authclient.MetricName(id)
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription("authclient counter."))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: id, instrument: ins})
		observables = append(observables, ins)
	}

	latencyName := authclient.MetricName(authclient.MetricRequestLatency)
	for i, suffix := range latencyBucketSuffix {
		name := latencyName + "_bucket_le_" + suffix
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
		}
		exporter.latency[i] = ins
		observables = append(observables, ins)
	}
	latencyCount, err := meter.Int64ObservableGauge(latencyName+"_count", metric.WithDescription("Histogram total sample count."))
	if err != nil {
		return nil, fmt.Errorf("create histogram count gauge: %w", err)
	}
	exporter.latencyCount = latencyCount
	observables = append(observables, latencyCount)

	auditDropped, err := meter.Int64ObservableCounter(
		"authclient_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		cumulative := cumulativeBuckets(snapshot.Histograms[authclient.MetricRequestLatency])
		for i := range exporter.latency {
			observer.ObserveInt64(exporter.latency[i], int64(cumulative[i]))
		}
		observer.ObserveInt64(exporter.latencyCount, int64(cumulative[len(cumulative)-1]))
		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

// cumulativeBuckets converts per-bucket counts into cumulative le counts.
// A missing or short histogram reads as all zeros.
func cumulativeBuckets(buckets []uint64) [8]uint64 {
	var out [8]uint64
	var sum uint64
	for i := range out {
		if i < len(buckets) {
			sum += buckets[i]
		}
		out[i] = sum
	}
	return out
}
