/*
Package observability provides the telemetry side of the loop controller.

Events are best effort: every emission goes through an Emitter, which recovers
panics and logs errors instead of propagating them. Sinks include a structured
log sink, an in-memory recorder, a fan-out combinator and Prometheus metrics.
*/
package observability
