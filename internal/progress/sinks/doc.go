// Package sinks hosts progress.Sink implementations: structured debug logs,
// Prometheus collectors, and a terminal progress bar.
package sinks
