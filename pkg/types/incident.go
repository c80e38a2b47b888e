package types

import (
	"fmt"
	"time"
)

// CheckResult is the outcome of evaluating one check against one metric series.
type CheckResult struct {
	Metric string  `json:"metric"`
	Status Status  `json:"status"`
	Value  float64 `json:"value"`
}

// Incident is the persisted record of a check's current abnormal state, or of
// the transition back to OK that is handed to the alerters on recovery.
//
// At most one Incident exists per CheckID. Version is the optimistic
// concurrency token: stores assign 1 on create and increment it on every
// successful update, and reject writes whose expected version is stale.
type Incident struct {
	CheckID     string `json:"check_id"`
	CheckName   string `json:"check_name"`
	Application string `json:"application"`

	// Time is when this state was produced.
	Time time.Time `json:"time"`

	// FirstFailureAt is when the check first left OK for this incident.
	FirstFailureAt time.Time `json:"first_failure_at"`

	// ResolvedAt is set only on the recovery event.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	// NotifiedAt is set by the write that first hands the incident to the
	// alerters. It stays set for the life of the incident.
	NotifiedAt *time.Time `json:"notified_at,omitempty"`

	OldStatus    Status  `json:"old_status"`
	NewStatus    Status  `json:"new_status"`
	CurrentValue float64 `json:"current_value"`
	Description  string  `json:"description"`

	// ConsecutiveFailures counts the non-OK evaluations since the incident
	// opened. It stops counting once the incident has notified.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// Results holds the non-OK per-series results of the latest evaluation.
	Results []CheckResult `json:"results,omitempty"`

	Version uint64 `json:"version"`
}

// Recovered reports whether the incident describes a transition back to OK.
func (i Incident) Recovered() bool {
	return i.NewStatus == StatusOK && i.OldStatus != StatusOK
}

// Notified reports whether the incident has been handed to the alerters.
func (i Incident) Notified() bool {
	return i.NotifiedAt != nil
}

// StatusChanged reports whether the incident changed severity.
func (i Incident) StatusChanged() bool {
	return i.OldStatus != i.NewStatus
}

// Summary returns a one-line human readable description of the transition.
func (i Incident) Summary() string {
	if i.Recovered() {
		return fmt.Sprintf("[%s] %s is back to OK (was %s)", i.Application, i.CheckName, i.OldStatus)
	}
	return fmt.Sprintf("[%s] %s changed %s -> %s, value %.2f",
		i.Application, i.CheckName, i.OldStatus, i.NewStatus, i.CurrentValue)
}
