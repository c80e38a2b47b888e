package check

import (
	"github.com/obsidianstack/sentinel/agent/internal/metrics"
	"github.com/obsidianstack/sentinel/pkg/types"
)

// severityOrder is the order in which buckets are tested; the first bucket
// that is exceeded wins.
var severityOrder = []types.Status{types.StatusCritical, types.StatusError, types.StatusWarn}

// Evaluate returns one result per series of snap that the check targets.
// Series lacking the configured field are skipped.
func Evaluate(c Check, snap *metrics.Snapshot) []types.CheckResult {
	if c.Target == nil {
		return nil
	}
	var out []types.CheckResult
	for _, name := range snap.Names(c.Category) {
		if !c.Target.MatchString(name) {
			continue
		}
		v, ok := snap.Value(c.Category, name, c.Field)
		if !ok {
			continue
		}
		out = append(out, types.CheckResult{
			Metric: name,
			Status: StatusOf(c, v),
			Value:  v,
		})
	}
	return out
}

// StatusOf classifies a single value against the check's buckets.
func StatusOf(c Check, v float64) types.Status {
	for _, s := range severityOrder {
		if IsAllExceeded(c.Bucket(s), v) {
			return s
		}
	}
	return types.StatusOK
}

// Aggregate reduces results to the most severe one. Among equally severe
// results the first one wins. With no results the aggregate is OK.
func Aggregate(results []types.CheckResult) types.CheckResult {
	worst := types.CheckResult{Status: types.StatusOK}
	found := false
	for _, r := range results {
		if !found || r.Status.MoreSevereThan(worst.Status) {
			worst = r
			found = true
		}
	}
	return worst
}

// Failing returns the results that are not OK.
func Failing(results []types.CheckResult) []types.CheckResult {
	var out []types.CheckResult
	for _, r := range results {
		if r.Status != types.StatusOK {
			out = append(out, r)
		}
	}
	return out
}
