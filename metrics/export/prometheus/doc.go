// Package prometheus renders goGuard metrics in Prometheus text exposition
// format.
//
// Counter names are prefixed goguard_*_total; the single histogram is
// goguard_evaluate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
