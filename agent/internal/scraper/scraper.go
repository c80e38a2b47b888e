package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/obsidianstack/sentinel/agent/internal/config"
	"github.com/obsidianstack/sentinel/agent/internal/metrics"
	"github.com/obsidianstack/sentinel/agent/internal/security"
)

type target struct {
	src    config.Source
	client *http.Client
}

// Scraper builds one metrics.Snapshot per call from every configured source.
//
// Scraper is safe for concurrent use, although the scheduler calls it from a
// single goroutine.
type Scraper struct {
	mu      sync.RWMutex
	targets []target
	meters  *metrics.MeterTracker
	health  *healthTracker
	now     func() time.Time
}

// New returns a Scraper for sources. It builds each HTTP client once and
// reuses it across scrapes.
func New(sources []config.Source, timeout time.Duration) (*Scraper, error) {
	s := &Scraper{
		meters: metrics.NewMeterTracker(),
		health: newHealthTracker(),
		now:    time.Now,
	}
	if err := s.SetSources(sources, timeout); err != nil {
		return nil, err
	}
	return s, nil
}

// SetSources replaces the scraped sources. Meter and uptime state of sources
// that keep their ID is preserved. On error the previous sources stay.
func (s *Scraper) SetSources(sources []config.Source, timeout time.Duration) error {
	targets := make([]target, 0, len(sources))
	for _, src := range sources {
		client, err := buildHTTPClient(src, timeout)
		if err != nil {
			return fmt.Errorf("scraper %q: build http client: %w", src.ID, err)
		}
		targets = append(targets, target{src: src, client: client})
	}
	s.mu.Lock()
	s.targets = targets
	s.mu.Unlock()
	return nil
}

type scrapeResult struct {
	src  config.Source
	mfs  map[string]*dto.MetricFamily
	err  error
	took time.Duration
	cert *security.CertStatus
}

// Snapshot scrapes every source concurrently and merges the results. A failed
// source contributes only its health gauges (sentinel_scrape_up = 0); the
// snapshot itself fails only when ctx is done.
func (s *Scraper) Snapshot(ctx context.Context) (*metrics.Snapshot, error) {
	now := s.now()
	s.mu.RLock()
	targets := s.targets
	s.mu.RUnlock()
	results := make([]scrapeResult, len(targets))

	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()
			results[i] = s.scrape(ctx, t, now)
		}(i, t)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := metrics.NewSnapshot(now)
	allUp := true
	for _, r := range results {
		up := r.err == nil
		uptime := s.health.record(r.src.ID, up)
		n := 0
		if up {
			n = putFamilies(snap, r.mfs, r.src.Prefix, s.meters, now)
		} else {
			allUp = false
			slog.Warn("scraper: fetch failed", "source", r.src.ID, "err", r.err)
		}
		putHealth(snap, r.src.ID, up, uptime, r.took, n)
		if r.cert != nil {
			snap.Put(metrics.Gauge, seriesCertDays+`{source="`+r.src.ID+`"}`, metrics.Fields{"value": r.cert.DaysLeft})
		}
	}
	// Series of a failed source keep their meter state until it recovers.
	if allUp {
		keep := make(map[string]bool)
		for _, name := range snap.Names(metrics.Counter) {
			keep[name] = true
		}
		s.meters.Forget(keep)
	}
	return snap, nil
}

func (s *Scraper) scrape(ctx context.Context, t target, now time.Time) scrapeResult {
	start := time.Now()
	mfs, err := fetchMetrics(ctx, t.client, t.src.Endpoint)
	res := scrapeResult{src: t.src, mfs: mfs, err: err, took: time.Since(start)}

	if t.src.TLS.CheckCert {
		cs, err := security.Check(ctx, t.src.Endpoint, t.src.TLS.InsecureSkipVerify, now)
		switch {
		case err == nil:
			res.cert = &cs
		case errors.Is(err, security.ErrNotTLS):
		default:
			slog.Warn("scraper: certificate check failed", "source", t.src.ID, "err", err)
		}
	}
	return res
}
