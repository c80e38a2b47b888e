// Package incident drives the per-check incident state machine.
//
// Each tick Lifecycle.Process evaluates one check against the metric snapshot
// and reconciles the result with the check's stored incident:
//
//	no incident, status OK        -> nothing
//	no incident, status not OK    -> Create (opens the incident)
//	incident, status OK           -> Delete (recovery)
//	incident, same status         -> nothing, once the incident has notified
//	incident, status changed      -> Update
//
// Every write is a compare-and-swap against the value read at the start of
// the attempt. A lost race or a store error restarts the attempt from a fresh
// read, up to MaxAttempts times; after that the check is skipped for the tick.
//
// A new incident notifies only once it has failed AlertAfter consecutive
// evaluations. Until then each failing tick bumps ConsecutiveFailures. A
// recovery is notified only when the incident had notified. Whether it has is
// recorded on the incident itself (NotifiedAt), so changing AlertAfter on a
// reload only moves the gate for incidents that have not alerted yet.
package incident
