// Package otel provides OpenTelemetry metric exporter bindings for authclient
// counters and the request-latency histogram.
//
// [NewExporter] registers an Int64ObservableCounter per authclient counter and
// an Int64ObservableGauge per latency bucket. A single callback reads
// [authclient.Client.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider — callers supply the Meter.
//   - Mutate client state.
package otel
