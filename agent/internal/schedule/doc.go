// Package schedule runs the periodic evaluation tick.
//
// A Schedule is either a fixed interval ("60s") or a standard five-field cron
// expression. Scheduler.Run waits on a single timer; each tick captures the
// current Runtime (checks, application, alert policy), takes one metric
// snapshot, processes every eligible check through the incident lifecycle and
// routes the transitions that must be notified. A panic while processing one
// check is recovered and logged; the remaining checks still run.
//
// Apply swaps the Runtime atomically and SetSchedule resets the timer; both
// take effect without restarting the loop.
package schedule
