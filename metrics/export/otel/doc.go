// Package otel publishes goTrust engine metrics through an OpenTelemetry
// Meter.
//
// [New] registers one Int64ObservableCounter per engine counter and, per
// latency histogram, a cumulative bucket counter carrying an "le" attribute
// plus a sample count. A single callback reads the engine snapshot on each
// collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
