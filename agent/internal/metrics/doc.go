// Package metrics holds the point-in-time metric snapshot the alerting engine
// evaluates checks against.
//
// A Snapshot groups series by Category (gauge, counter, histogram, meter,
// timer), keys them by series name, and exposes named numeric fields such as
// "value", "count", "p99" or "m1_rate". Snapshots are built by the scraper and
// are read-only once handed to the scheduler.
//
// MeterTracker derives meter series (count, mean_rate, m1/m5/m15 EWMA rates)
// from monotonic counters by remembering the previous observation of every
// series between scrapes. Process accepts the scrape time explicitly so tests
// are deterministic.
package metrics
