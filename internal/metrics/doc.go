// Package metrics exposes the service's Prometheus instrumentation.
package metrics
