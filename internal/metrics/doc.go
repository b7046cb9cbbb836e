/*
Package metrics collects Prometheus metrics for served namespaces.

# Overview

A Collector owns a private Prometheus registry. The VFS records every
filesystem operation through it, the repository cache records hits and
misses, and the S3 backend records object requests.

	┌─────────────┐
	│  Collector  │
	└──────┬──────┘
	       │
	   ┌───┴────────────────────────┐
	   │                            │
	┌──▼───────────┐     ┌──────────▼────────┐
	│  Registry    │     │  HTTP endpoints   │
	│ - Counters   │     │  /metrics         │
	│ - Histograms │     │  /debug/operations│
	│ - Gauges     │     └───────────────────┘
	└──────────────┘

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Address:   ":9090",
		Path:      "/metrics",
		Namespace: "snapfs",
	})
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(context.Background())

Start is a no-op without an address; the collector still records and its
Handler can be mounted on another mux.

# Exported Metrics

	snapfs_operations_total{operation,status}
	snapfs_operation_duration_seconds{operation}
	snapfs_read_bytes_total
	snapfs_cache_requests_total{type,source}
	snapfs_cache_size_bytes
	snapfs_errors_total{operation,code}

Cache keys have the form "<class>:<id>" and the class becomes the source
label, so tree and data hits are reported separately. Errors are labelled
with their lowercased error code; errors without one count as
internal_error.

# Debugging

/debug/operations returns the per-operation counters kept in memory as
JSON. ResetMetrics clears them without touching the Prometheus series.
*/
package metrics
