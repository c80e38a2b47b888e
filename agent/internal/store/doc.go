// Package store keeps the active incidents, one per check ID, behind a
// compare-and-swap contract.
//
// Every mutation is conditioned on the caller's last read:
//
//	Create(inc)        inserts only if no incident exists for inc.CheckID
//	Update(inc, prev)  replaces only if the stored version equals prev.Version
//	Delete(inc, prev)  removes only if the stored version equals prev.Version
//
// A false result with a nil error means the caller lost a race and must read
// again before retrying. A non-nil error means the backend itself failed.
// Stores assign Version 1 on Create and prev.Version+1 on Update; the version
// passed in inc is ignored.
//
// Implementations: Memory (in-process, default), Postgres (pgx, row version
// column) and Redis (go-redis, Lua compare-and-set on a hash).
package store
