/*
Package observability provides the plumbing for watching the sluice engine.

Signal is the typed publish/subscribe registry used between connections,
workers, the graph and the scheduler; every subscription returns a handle that
its owner closes on teardown. Bus fans node events out to monitoring clients
(SSE, CLI) and Metrics turns the same events into Prometheus series.
*/
package observability
