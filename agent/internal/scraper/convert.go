package scraper

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/obsidianstack/sentinel/agent/internal/metrics"
)

// histogramQuantiles are the percentile fields derived from histogram buckets.
var histogramQuantiles = []float64{0.5, 0.75, 0.95, 0.98, 0.99, 0.999}

// putFamilies adds every series of mfs to snap. Counters also feed meters,
// whose state lives in the tracker across scrapes. Returns the number of
// series added.
//
// Mapping:
//
//	gauge, untyped -> gauge     {value}
//	counter        -> counter   {count}, meter {count, mean_rate, m1_rate, m5_rate, m15_rate}
//	histogram      -> histogram {count, sum, mean, p50 ... p999}
//	summary        -> timer     {count, sum, mean, one pNN per quantile}
func putFamilies(snap *metrics.Snapshot, mfs map[string]*dto.MetricFamily, prefix string, meters *metrics.MeterTracker, now time.Time) int {
	n := 0
	for name, mf := range mfs {
		for _, m := range mf.GetMetric() {
			series := seriesName(prefix+name, m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_GAUGE:
				snap.Put(metrics.Gauge, series, metrics.Fields{"value": m.GetGauge().GetValue()})
			case dto.MetricType_UNTYPED:
				snap.Put(metrics.Gauge, series, metrics.Fields{"value": m.GetUntyped().GetValue()})
			case dto.MetricType_COUNTER:
				v := m.GetCounter().GetValue()
				snap.Put(metrics.Counter, series, metrics.Fields{"count": v})
				if fields, ok := meters.Process(series, v, now); ok {
					snap.Put(metrics.Meter, series, fields)
				}
			case dto.MetricType_HISTOGRAM:
				snap.Put(metrics.Histogram, series, histogramFields(m.GetHistogram()))
			case dto.MetricType_SUMMARY:
				snap.Put(metrics.Timer, series, summaryFields(m.GetSummary()))
			default:
				continue
			}
			n++
		}
	}
	return n
}

// seriesName renders name{a="x",b="y"} with labels sorted by name, or the
// bare name when there are no labels.
func seriesName(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	pairs := make([]string, 0, len(labels))
	for _, l := range labels {
		pairs = append(pairs, l.GetName()+"="+strconv.Quote(l.GetValue()))
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}

func histogramFields(h *dto.Histogram) metrics.Fields {
	count := float64(h.GetSampleCount())
	f := metrics.Fields{"count": count, "sum": h.GetSampleSum()}
	if count == 0 {
		return f
	}
	f["mean"] = h.GetSampleSum() / count

	buckets := append([]*dto.Bucket(nil), h.GetBucket()...)
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].GetUpperBound() < buckets[j].GetUpperBound() })
	for _, q := range histogramQuantiles {
		if v, ok := bucketQuantile(q, buckets, count); ok {
			f[quantileField(q)] = v
		}
	}
	return f
}

// bucketQuantile estimates quantile q by linear interpolation inside the
// cumulative bucket that holds the target rank. Ranks falling in the implicit
// +Inf bucket resolve to the highest finite upper bound.
func bucketQuantile(q float64, buckets []*dto.Bucket, count float64) (float64, bool) {
	if len(buckets) == 0 {
		return 0, false
	}
	rank := q * count
	var (
		lower     float64
		prevCount float64
	)
	for i, b := range buckets {
		upper := b.GetUpperBound()
		cum := float64(b.GetCumulativeCount())
		if math.IsInf(upper, +1) {
			if i == 0 {
				return 0, false
			}
			break
		}
		if cum >= rank {
			if (i == 0 && upper <= 0) || cum == prevCount {
				return upper, true
			}
			return lower + (upper-lower)*(rank-prevCount)/(cum-prevCount), true
		}
		lower = upper
		prevCount = cum
	}
	return lower, true
}

func summaryFields(s *dto.Summary) metrics.Fields {
	count := float64(s.GetSampleCount())
	f := metrics.Fields{"count": count, "sum": s.GetSampleSum()}
	if count > 0 {
		f["mean"] = s.GetSampleSum() / count
	}
	for _, q := range s.GetQuantile() {
		v := q.GetValue()
		if math.IsNaN(v) {
			continue
		}
		f[quantileField(q.GetQuantile())] = v
	}
	return f
}

// quantileField names a quantile: 0.5 -> p50, 0.99 -> p99, 0.999 -> p999.
func quantileField(q float64) string {
	pct := math.Round(q*1e4) / 1e2
	return "p" + strings.ReplaceAll(strconv.FormatFloat(pct, 'f', -1, 64), ".", "")
}
