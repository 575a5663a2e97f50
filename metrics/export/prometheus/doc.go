// Package prometheus renders goTrust engine metrics in the Prometheus text
// exposition format.
//
// [New] accepts any [Source] (a *goTrust.Engine satisfies it) and exposes an
// [http.Handler] for the scrape endpoint. Counter names are gotrust_*_total;
// the latency histograms are gotrust_authenticate_latency_seconds and
// gotrust_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
