// Package metrics records the proxy's routing decisions.
//
// A channel-based collector counts, per reverse proxy rule:
//   - Rewrites by direct path match and by tracking cookie
//   - Upstream connections that failed
//   - Response times with percentile calculations (P50, P95, P99)
//   - HTTP status code distribution
//
// plus the requests refused in reverse-only mode and those handed to the
// forward proxy. Events are sent without blocking the request path and are
// dropped when the buffer is full.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type: metrics.EventRewritten,
//		Rule: "/app",
//	})
//
//	snapshot := collector.Snapshot()
//
// Snapshots are served as JSON by Collector.Handler and as Prometheus
// series through PrometheusCollector.
package metrics
