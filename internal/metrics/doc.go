// Package metrics exposes GPIOLive's Prometheus collectors.
//
// Collectors are registered on a caller-supplied registerer so that tests
// and embedding applications can keep them off the global registry. The
// HTTP handler returned by [Handler] is served on its own listener and is
// never part of the telemetry route table.
package metrics
