// Package check implements threshold checks and their evaluation against a
// metric snapshot.
//
// A Threshold is one comparison (operator + expected value). A Check binds a
// series-name pattern, a metric category and field, and three threshold
// buckets (WARN, ERROR, CRITICAL) to an application.
//
// Evaluate is pure: for every series of the check's category whose name fully
// matches the pattern it reads the configured field and tests the buckets in
// the order CRITICAL, ERROR, WARN. The first bucket whose thresholds are all
// exceeded decides the status; otherwise the series is OK. Aggregate reduces
// the per-series results to the check's status for the tick.
//
// An empty bucket never triggers.
package check
