// Package api implements the admin HTTP API of the sentinel agent.
//
// New(opts) returns an http.Handler that serves:
//
//	GET    /api/v1/health                   liveness, application and counts (no auth)
//	GET    /api/v1/incidents                all open incidents, ordered by check id
//	GET    /api/v1/incidents/{checkID}      one incident; 404 if none is open
//	PUT    /api/v1/incidents/{checkID}      acknowledge: replace the description
//	DELETE /api/v1/incidents/{checkID}      drop an incident (?version=N)
//	GET    /api/v1/alerters                 available and registered alerters
//	GET    /api/v1/checks                   the checks currently scheduled
//	GET    /ws/incidents                    incident stream, when configured
//
// Writes are compare-and-swap on the incident version; a stale version
// returns 409. With auth mode "apikey" every route except health requires
// the configured header.
package api
