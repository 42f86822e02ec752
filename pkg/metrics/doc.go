// Package metrics declares volguard's Prometheus metric families and
// serves them on a dedicated HTTP handler, separate from the status
// endpoint's custom line protocol. All metrics are registered at package
// init so they are visible the moment the process starts, even before the
// first scan tick.
package metrics
