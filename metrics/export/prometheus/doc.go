// Package prometheus exposes engine metrics as a client_golang Collector and
// an HTTP handler for the /metrics route.
package prometheus
