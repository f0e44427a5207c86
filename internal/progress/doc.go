// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that workers use to report run progress. Events are batched on a
// background goroutine and fanned out to pluggable sinks such as log lines,
// Prometheus collectors or a terminal progress bar.
package progress
