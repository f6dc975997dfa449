// Package broadcast fans progress events out to subscribers keyed by
// operation ID. Fire-and-forget: no history is buffered, and sinks that
// fail a send are evicted.
package broadcast
