// Package monitoring provides Prometheus metrics for the worker
// runtime: worker lifecycle counts, message throughput per direction,
// error counts, and HTTP surface metrics. Each Metrics value carries
// its own registry, exposed via Handler().
package monitoring
