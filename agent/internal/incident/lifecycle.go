package incident

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/obsidianstack/sentinel/agent/internal/check"
	"github.com/obsidianstack/sentinel/agent/internal/metrics"
	"github.com/obsidianstack/sentinel/agent/internal/store"
	"github.com/obsidianstack/sentinel/pkg/types"
)

// MaxAttempts bounds the compare-and-swap retries per check per tick.
const MaxAttempts = 10

var errConflict = errors.New("incident: version conflict")

// Lifecycle applies evaluation results to the incident store.
//
// Lifecycle holds no per-check state and is safe for concurrent use.
type Lifecycle struct {
	store store.Store
	now   func() time.Time
}

// New returns a Lifecycle writing to st.
func New(st store.Store) *Lifecycle {
	return &Lifecycle{store: st, now: time.Now}
}

type op int

const (
	opNone op = iota
	opCreate
	opUpdate
	opDelete
)

// transition is the write decided for one attempt.
type transition struct {
	op     op
	inc    types.Incident
	notify bool
}

// Process evaluates c against snap and persists the resulting incident state.
// It returns the incident to dispatch and true when the committed write must
// be notified. It returns false when nothing changed, when the write must stay
// silent, or when every attempt failed.
func (l *Lifecycle) Process(ctx context.Context, c check.Check, snap *metrics.Snapshot) (types.Incident, bool) {
	results := check.Evaluate(c, snap)
	worst := check.Aggregate(results)
	failing := check.Failing(results)
	now := l.now()

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			slog.Warn("incident: tick cancelled", "check", c.ID, "err", err)
			return types.Incident{}, false
		}

		prev, found, err := l.store.Get(ctx, c.ID)
		if err != nil {
			slog.Warn("incident: read failed", "check", c.ID, "attempt", attempt, "err", err)
			lastErr = err
			continue
		}

		tr := decide(c, worst, failing, prev, found, now)

		var ok bool
		switch tr.op {
		case opNone:
			return types.Incident{}, false
		case opCreate:
			ok, err = l.store.Create(ctx, tr.inc)
			tr.inc.Version = 1
		case opUpdate:
			ok, err = l.store.Update(ctx, tr.inc, prev)
			tr.inc.Version = prev.Version + 1
		case opDelete:
			ok, err = l.store.Delete(ctx, tr.inc, prev)
		}
		if err != nil {
			slog.Warn("incident: write failed", "check", c.ID, "attempt", attempt, "err", err)
			lastErr = err
			continue
		}
		if !ok {
			slog.Debug("incident: write conflict, retrying", "check", c.ID, "attempt", attempt)
			lastErr = errConflict
			continue
		}

		logCommitted(tr)
		if !tr.notify {
			return types.Incident{}, false
		}
		return tr.inc, true
	}

	slog.Error("incident: giving up after repeated conflicts",
		"check", c.ID,
		"attempts", MaxAttempts,
		"last_err", lastErr,
	)
	return types.Incident{}, false
}

// Retire deletes the stored incidents of app whose check is not in keep, which
// happens when a reload removes or deactivates a check. It returns the
// recovered incidents that must be notified: only those that had notified.
// A lost race leaves the incident for the next call.
func (l *Lifecycle) Retire(ctx context.Context, app string, keep map[string]bool) []types.Incident {
	list, err := l.store.List(ctx)
	if err != nil {
		slog.Warn("incident: list for retire failed", "err", err)
		return nil
	}

	var out []types.Incident
	for _, prev := range list {
		if prev.Application != app || keep[prev.CheckID] || ctx.Err() != nil {
			continue
		}
		now := l.now()
		inc := prev
		inc.Time = now
		inc.OldStatus = prev.NewStatus
		inc.NewStatus = types.StatusOK
		inc.Description = fmt.Sprintf("%s is no longer checked", prev.CheckName)
		inc.Results = nil
		inc.ResolvedAt = &now

		ok, err := l.store.Delete(ctx, inc, prev)
		if err != nil {
			slog.Warn("incident: retire failed", "check", prev.CheckID, "err", err)
			continue
		}
		if !ok {
			slog.Debug("incident: retire conflict, retrying next tick", "check", prev.CheckID)
			continue
		}
		slog.Info("incident: retired", "check", prev.CheckID, "status", prev.NewStatus, "notify", prev.Notified())
		if prev.Notified() {
			out = append(out, inc)
		}
	}
	return out
}

// decide computes the write for one attempt from the stored state.
func decide(c check.Check, worst types.CheckResult, failing []types.CheckResult, prev types.Incident, found bool, now time.Time) transition {
	threshold := c.AlertThreshold()
	status := worst.Status

	if !found {
		if status == types.StatusOK {
			return transition{op: opNone}
		}
		inc := types.Incident{
			CheckID:             c.ID,
			CheckName:           c.Name,
			Application:         c.Application,
			Time:                now,
			FirstFailureAt:      now,
			OldStatus:           types.StatusOK,
			NewStatus:           status,
			CurrentValue:        worst.Value,
			Description:         describe(c, worst),
			ConsecutiveFailures: 1,
			Results:             failing,
		}
		notify := threshold <= 1
		if notify {
			inc.NotifiedAt = &now
		}
		return transition{op: opCreate, inc: inc, notify: notify}
	}

	// The gate is read from the stored incident, not from the check, so a
	// reload that changes AlertAfter neither repeats nor loses the opening alert.
	notified := prev.Notified()

	if status == types.StatusOK {
		inc := prev
		inc.Time = now
		inc.OldStatus = prev.NewStatus
		inc.NewStatus = types.StatusOK
		inc.CurrentValue = worst.Value
		inc.Description = fmt.Sprintf("%s is back to normal", c.Name)
		inc.Results = nil
		resolved := now
		inc.ResolvedAt = &resolved
		return transition{op: opDelete, inc: inc, notify: notified}
	}

	inc := prev
	inc.CheckName = c.Name
	inc.Time = now
	inc.NewStatus = status
	inc.CurrentValue = worst.Value
	inc.Description = describe(c, worst)
	inc.Results = failing

	if !notified {
		// The incident has not alerted yet, so OldStatus stays OK and the
		// first notification reports the opening transition.
		inc.ConsecutiveFailures = prev.ConsecutiveFailures + 1
		notify := inc.ConsecutiveFailures >= threshold
		if notify {
			inc.NotifiedAt = &now
		}
		return transition{op: opUpdate, inc: inc, notify: notify}
	}

	if status == prev.NewStatus {
		return transition{op: opNone}
	}
	inc.OldStatus = prev.NewStatus
	return transition{op: opUpdate, inc: inc, notify: true}
}

// describe renders "cpu p99 is ERROR: cpu_p99 field p99 = 250 (> 200)".
func describe(c check.Check, worst types.CheckResult) string {
	bucket := c.Bucket(worst.Status)
	conds := make([]string, len(bucket))
	for i, t := range bucket {
		conds[i] = t.String()
	}
	return fmt.Sprintf("%s is %s: %s field %s = %g (%s)",
		c.Name, worst.Status, worst.Metric, c.Field, worst.Value, strings.Join(conds, " and "))
}

func logCommitted(tr transition) {
	inc := tr.inc
	switch tr.op {
	case opCreate:
		slog.Info("incident: opened",
			"check", inc.CheckID,
			"status", inc.NewStatus,
			"value", inc.CurrentValue,
			"notify", tr.notify,
		)
	case opUpdate:
		slog.Info("incident: updated",
			"check", inc.CheckID,
			"old_status", inc.OldStatus,
			"new_status", inc.NewStatus,
			"failures", inc.ConsecutiveFailures,
			"notify", tr.notify,
		)
	case opDelete:
		slog.Info("incident: resolved",
			"check", inc.CheckID,
			"was", inc.OldStatus,
			"notify", tr.notify,
		)
	}
}
