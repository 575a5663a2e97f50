// Package internaldefs holds the metric names and bucket bounds shared by the
// exporters.
//
// The Prometheus, OTel and InfluxDB exporters all read these definitions, so
// a renamed metric changes in every backend at once.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
