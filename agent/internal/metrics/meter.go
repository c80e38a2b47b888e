package metrics

import (
	"math"
	"sync"
	"time"
)

// EWMA windows used for the m1/m5/m15 meter rates.
var meterWindows = []struct {
	field  string
	window time.Duration
}{
	{"m1_rate", time.Minute},
	{"m5_rate", 5 * time.Minute},
	{"m15_rate", 15 * time.Minute},
}

// MeterTracker turns monotonic counter observations into meter fields.
//
// All exported methods are safe for concurrent use.
type MeterTracker struct {
	mu     sync.Mutex
	series map[string]*meterState
}

type meterState struct {
	firstCount float64
	firstSeen  time.Time
	prevCount  float64
	prevTime   time.Time
	rates      map[string]float64
}

// NewMeterTracker returns a ready-to-use MeterTracker.
func NewMeterTracker() *MeterTracker {
	return &MeterTracker{series: make(map[string]*meterState)}
}

// Process records the counter value of series name at now and returns the
// derived meter fields. The first observation of a series only records the
// baseline and returns ok == false, since no rate can be computed yet.
func (t *MeterTracker) Process(name string, count float64, now time.Time) (Fields, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.series[name]
	if !ok {
		t.series[name] = &meterState{
			firstCount: count,
			firstSeen:  now,
			prevCount:  count,
			prevTime:   now,
			rates:      make(map[string]float64, len(meterWindows)),
		}
		return nil, false
	}

	if count < st.prevCount {
		// Counter reset after a restart of the instrumented application.
		st.firstCount = count
		st.firstSeen = now
		st.prevCount = count
		st.prevTime = now
		st.rates = make(map[string]float64, len(meterWindows))
		return nil, false
	}

	elapsed := now.Sub(st.prevTime)
	if elapsed <= 0 {
		elapsed = time.Second
	}
	instant := deltaOf(count, st.prevCount) / elapsed.Seconds()

	out := Fields{"count": count}
	for _, w := range meterWindows {
		alpha := 1 - math.Exp(-elapsed.Seconds()/w.window.Seconds())
		prev, seeded := st.rates[w.field]
		if !seeded {
			prev = instant
		}
		rate := prev + alpha*(instant-prev)
		st.rates[w.field] = rate
		out[w.field] = rate
	}

	if total := now.Sub(st.firstSeen).Seconds(); total > 0 {
		out["mean_rate"] = deltaOf(count, st.firstCount) / total
	}

	st.prevCount = count
	st.prevTime = now
	return out, true
}

// Forget drops the state of series not present in keep. Call after every
// scrape so series that disappeared do not accumulate.
func (t *MeterTracker) Forget(keep map[string]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name := range t.series {
		if !keep[name] {
			delete(t.series, name)
		}
	}
}

// deltaOf returns the positive counter delta between current and previous.
// If current < previous (counter reset after restart), returns 0.
func deltaOf(current, previous float64) float64 {
	d := current - previous
	if d < 0 {
		return 0
	}
	return d
}
