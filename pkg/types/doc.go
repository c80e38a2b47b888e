// Package types defines the shared Go types used across the alerting engine,
// the admin API and the notification channels. These are the canonical
// in-memory representations of incident state, separate from any storage or
// wire format an individual store or alerter chooses.
package types
