package check

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/obsidianstack/sentinel/agent/internal/metrics"
	"github.com/obsidianstack/sentinel/pkg/types"
)

func timerCheck(pattern string) Check {
	return Check{
		ID:          "cpu-p99",
		Name:        "cpu p99",
		Application: "shop",
		Target:      regexp.MustCompile(`^(?:` + pattern + `)$`),
		Category:    metrics.Timer,
		Field:       "p99",
		Active:      true,
	}
}

func snapshotOf(cat metrics.Category, field string, values map[string]float64) *metrics.Snapshot {
	s := metrics.NewSnapshot(time.Now())
	for name, v := range values {
		s.Put(cat, name, metrics.Fields{field: v})
	}
	return s
}

func TestEvaluate_SeverityOrder(t *testing.T) {
	c := timerCheck("cpu_p99")
	c.Warn = []Threshold{{Greater, 100}}
	c.Error = []Threshold{{Greater, 200}}
	c.Critical = []Threshold{{Greater, 300}}

	tests := []struct {
		v    float64
		want types.Status
	}{
		{50, types.StatusOK},
		{150, types.StatusWarn},
		{250, types.StatusError},
		{350, types.StatusCritical},
	}
	for _, tc := range tests {
		res := Evaluate(c, snapshotOf(metrics.Timer, "p99", map[string]float64{"cpu_p99": tc.v}))
		if len(res) != 1 {
			t.Fatalf("v=%v: got %d results, want 1", tc.v, len(res))
		}
		if res[0].Status != tc.want {
			t.Errorf("v=%v: got %s, want %s", tc.v, res[0].Status, tc.want)
		}
	}
}

func TestEvaluate_CriticalWinsRegardlessOfOtherBuckets(t *testing.T) {
	// A lower bucket that is also exceeded (or a stricter WARN than CRITICAL)
	// must not mask CRITICAL.
	c := timerCheck("cpu_p99")
	c.Warn = []Threshold{{Greater, 500}}
	c.Error = []Threshold{{Greater, 0}}
	c.Critical = []Threshold{{Greater, 10}}

	if got := StatusOf(c, 600); got != types.StatusCritical {
		t.Errorf("StatusOf(600): got %s, want CRITICAL", got)
	}
}

func TestEvaluate_EmptyBucketsAreOK(t *testing.T) {
	c := timerCheck("cpu_p99")
	if got := StatusOf(c, 1e12); got != types.StatusOK {
		t.Errorf("no buckets: got %s, want OK", got)
	}
}

func TestEvaluate_FullMatchOnly(t *testing.T) {
	c := timerCheck("cpu_p99")
	c.Error = []Threshold{{Greater, 200}}
	snap := snapshotOf(metrics.Timer, "p99", map[string]float64{
		"cpu_p99":       250,
		"cpu_p99_extra": 999,
		"old_cpu_p99":   999,
	})
	res := Evaluate(c, snap)
	want := []types.CheckResult{{Metric: "cpu_p99", Status: types.StatusError, Value: 250}}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_PatternAndMissingField(t *testing.T) {
	c := timerCheck(`http_.*`)
	c.Warn = []Threshold{{GreaterEqual, 1}}

	snap := metrics.NewSnapshot(time.Now())
	snap.Put(metrics.Timer, "http_get", metrics.Fields{"p99": 2})
	snap.Put(metrics.Timer, "http_post", metrics.Fields{"mean": 2}) // no p99
	snap.Put(metrics.Gauge, "http_other", metrics.Fields{"p99": 2}) // wrong category

	res := Evaluate(c, snap)
	if len(res) != 1 || res[0].Metric != "http_get" {
		t.Errorf("Evaluate: got %+v, want only http_get", res)
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		in   []types.CheckResult
		want types.CheckResult
	}{
		{"empty is OK", nil, types.CheckResult{Status: types.StatusOK}},
		{
			"most severe wins",
			[]types.CheckResult{
				{Metric: "a", Status: types.StatusWarn, Value: 1},
				{Metric: "b", Status: types.StatusCritical, Value: 2},
				{Metric: "c", Status: types.StatusError, Value: 3},
			},
			types.CheckResult{Metric: "b", Status: types.StatusCritical, Value: 2},
		},
		{
			"first seen wins ties",
			[]types.CheckResult{
				{Metric: "a", Status: types.StatusError, Value: 1},
				{Metric: "b", Status: types.StatusError, Value: 2},
			},
			types.CheckResult{Metric: "a", Status: types.StatusError, Value: 1},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, Aggregate(tc.in)); diff != "" {
				t.Errorf("Aggregate mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheck_AppliesTo(t *testing.T) {
	c := timerCheck("x")
	if !c.AppliesTo("shop") {
		t.Error("active check for shop should apply to shop")
	}
	if c.AppliesTo("billing") {
		t.Error("check for shop should not apply to billing")
	}
	c.Active = false
	if c.AppliesTo("shop") {
		t.Error("inactive check should not apply")
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"cpu p99":             "cpu-p99",
		"  Response Time!! ":  "response-time",
		"JVM heap / used %":   "jvm-heap-used",
		"already-a-slug":      "already-a-slug",
		"Über Latenz":         "ber-latenz",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestCompileTarget_Anchors(t *testing.T) {
	re, err := CompileTarget("a|b")
	if err != nil {
		t.Fatalf("CompileTarget: %v", err)
	}
	if !re.MatchString("a") || !re.MatchString("b") {
		t.Error("alternation should match each branch in full")
	}
	if re.MatchString("ab") {
		t.Error("anchored pattern must not match a longer name")
	}
}
