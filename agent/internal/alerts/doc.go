// Package alerts routes incident notifications to pluggable channels.
//
// An Alerter is one delivery channel (log, e-mail, Slack, Teams, generic HTTP
// webhook, Elasticsearch, Pushbullet) identified by a stable type key.
// Alerters are collected in a Registry by explicit registration at startup;
// an alerter whose configuration is incomplete stays registered but reports
// IsAvailable() == false and is skipped.
//
// Router.SendAlerts fans one incident out. Unless the policy is muted it
// writes the incident to the built-in log sink and then, for every
// subscription that opted into the incident's new status, hands the delivery
// to the Dispatcher. The Dispatcher runs deliveries on a bounded worker pool
// with a per-delivery timeout; when its queue is full the delivery is dropped
// with a warning. A failing or panicking alerter never affects the others or
// the caller.
package alerts
