package scraper

import (
	"sync"
	"time"

	"github.com/obsidianstack/sentinel/agent/internal/metrics"
)

// uptimeWindow is the number of recent scrape outcomes tracked for uptime %.
const uptimeWindow = 20

// Self-monitoring gauge series, labelled with the source id.
const (
	seriesUp        = "sentinel_scrape_up"
	seriesUptimePct = "sentinel_scrape_uptime_pct"
	seriesDuration  = "sentinel_scrape_duration_seconds"
	seriesSamples   = "sentinel_scrape_series"
	seriesCertDays  = "sentinel_cert_days_left"
)

// healthTracker keeps the recent scrape outcomes of every source.
//
// All methods are safe for concurrent use.
type healthTracker struct {
	mu      sync.Mutex
	history map[string][]bool
}

func newHealthTracker() *healthTracker {
	return &healthTracker{history: make(map[string][]bool)}
}

// record appends one outcome for source and returns its uptime percentage
// over the window.
func (h *healthTracker) record(source string, success bool) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	hist := h.history[source]
	if len(hist) >= uptimeWindow {
		hist = hist[1:]
	}
	hist = append(hist, success)
	h.history[source] = hist

	var ok int
	for _, s := range hist {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(hist)) * 100
}

// putHealth writes the self-monitoring gauges of one scrape into snap.
func putHealth(snap *metrics.Snapshot, source string, up bool, uptimePct float64, took time.Duration, series int) {
	upValue := 0.0
	if up {
		upValue = 1
	}
	label := `{source="` + source + `"}`
	snap.Put(metrics.Gauge, seriesUp+label, metrics.Fields{"value": upValue})
	snap.Put(metrics.Gauge, seriesUptimePct+label, metrics.Fields{"value": uptimePct})
	snap.Put(metrics.Gauge, seriesDuration+label, metrics.Fields{"value": took.Seconds()})
	snap.Put(metrics.Gauge, seriesSamples+label, metrics.Fields{"value": float64(series)})
}
