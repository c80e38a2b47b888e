// Package scraper turns Prometheus text expositions into the metric snapshot
// the alerting engine evaluates.
//
// Scraper.Snapshot polls every configured source concurrently, parses the
// exposition with expfmt and maps each series into a metrics category:
// gauges and untyped samples become gauges, counters become counters and
// (from the second scrape on) meters with EWMA rates, histograms get
// interpolated percentiles and summaries become timers. Series names carry
// their labels, sorted, in exposition form: name{a="x",b="y"}.
//
// Every scrape also records self-monitoring gauges per source
// (sentinel_scrape_up, sentinel_scrape_uptime_pct over the last 20 scrapes,
// sentinel_scrape_duration_seconds, sentinel_scrape_series) and, when enabled,
// sentinel_cert_days_left for https endpoints.
//
// Authentication (mTLS, API key, bearer token, basic) is handled by the shared
// authRoundTripper in base.go.
package scraper
