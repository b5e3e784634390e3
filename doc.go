// Package whalesignal wires the whale accumulation-signal pipeline: hourly
// balance snapshots, a data-quality circuit breaker, and the accumulation
// score calculator that turns them into a tagged market signal.
package whalesignal
