// Package influx pushes goTrust engine metrics to InfluxDB v2.
//
// Each [Exporter.Push] writes one point to the "gotrust" measurement with a
// field per counter and per cumulative histogram bucket. [Exporter.Run]
// pushes on an interval until its context ends.
//
// # What this package must NOT do
//
//   - Buffer points across pushes; a failed push is reported, not retried.
//   - Mutate engine state.
package influx
