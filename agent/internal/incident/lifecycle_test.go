package incident

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/obsidianstack/sentinel/agent/internal/check"
	"github.com/obsidianstack/sentinel/agent/internal/metrics"
	"github.com/obsidianstack/sentinel/agent/internal/store"
	"github.com/obsidianstack/sentinel/pkg/types"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func cpuCheck(alertAfter int) check.Check {
	target, _ := check.CompileTarget("cpu_p99")
	return check.Check{
		ID:          "cpu-p99",
		Name:        "cpu p99",
		Application: "checkout",
		Target:      target,
		Category:    metrics.Timer,
		Field:       "p99",
		Warn:        []check.Threshold{{Operator: check.Greater, Expected: 100}},
		Error:       []check.Threshold{{Operator: check.Greater, Expected: 200}},
		Active:      true,
		AlertAfter:  alertAfter,
	}
}

func snapWith(v float64) *metrics.Snapshot {
	s := metrics.NewSnapshot(t0)
	s.Put(metrics.Timer, "cpu_p99", metrics.Fields{"p99": v})
	return s
}

func newLifecycle(st store.Store) *Lifecycle {
	l := New(st)
	l.now = func() time.Time { return t0 }
	return l
}

func TestProcess_OKWithoutIncidentIsNoop(t *testing.T) {
	st := store.NewMemory()
	l := newLifecycle(st)

	if _, notify := l.Process(context.Background(), cpuCheck(1), snapWith(50)); notify {
		t.Fatal("expected no notification for OK check")
	}
	if list, _ := st.List(context.Background()); len(list) != 0 {
		t.Errorf("store: got %d incidents, want 0", len(list))
	}
}

func TestProcess_OpenEscalateRecover(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := newLifecycle(st)
	c := cpuCheck(1)

	inc, notify := l.Process(ctx, c, snapWith(250))
	if !notify {
		t.Fatal("tick 1: expected notification")
	}
	if inc.OldStatus != types.StatusOK || inc.NewStatus != types.StatusError {
		t.Errorf("tick 1: got %v -> %v, want OK -> ERROR", inc.OldStatus, inc.NewStatus)
	}
	if inc.Version != 1 {
		t.Errorf("tick 1: Version got %d, want 1", inc.Version)
	}
	if len(inc.Results) != 1 || inc.Results[0].Metric != "cpu_p99" {
		t.Errorf("tick 1: Results got %+v", inc.Results)
	}

	inc, notify = l.Process(ctx, c, snapWith(150))
	if !notify {
		t.Fatal("tick 2: expected notification")
	}
	if inc.OldStatus != types.StatusError || inc.NewStatus != types.StatusWarn {
		t.Errorf("tick 2: got %v -> %v, want ERROR -> WARN", inc.OldStatus, inc.NewStatus)
	}
	if !inc.FirstFailureAt.Equal(t0) {
		t.Errorf("tick 2: FirstFailureAt got %v, want %v", inc.FirstFailureAt, t0)
	}

	inc, notify = l.Process(ctx, c, snapWith(50))
	if !notify {
		t.Fatal("tick 3: expected recovery notification")
	}
	if !inc.Recovered() || inc.OldStatus != types.StatusWarn {
		t.Errorf("tick 3: got %v -> %v, want WARN -> OK", inc.OldStatus, inc.NewStatus)
	}
	if inc.ResolvedAt == nil {
		t.Error("tick 3: ResolvedAt not set")
	}
	if _, found, _ := st.Get(ctx, c.ID); found {
		t.Error("tick 3: incident still stored after recovery")
	}
}

func TestProcess_UnchangedStatusIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := newLifecycle(st)
	c := cpuCheck(1)

	l.Process(ctx, c, snapWith(250))
	before, _, _ := st.Get(ctx, c.ID)

	for i := 0; i < 3; i++ {
		if _, notify := l.Process(ctx, c, snapWith(260)); notify {
			t.Fatalf("repeat %d: unexpected notification", i)
		}
	}
	after, _, _ := st.Get(ctx, c.ID)
	if after.Version != before.Version {
		t.Errorf("Version changed on unchanged status: got %d, want %d", after.Version, before.Version)
	}
}

func TestProcess_AlertAfterGate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := newLifecycle(st)
	c := cpuCheck(3)

	for i := 1; i <= 2; i++ {
		if _, notify := l.Process(ctx, c, snapWith(250)); notify {
			t.Fatalf("tick %d: notified before reaching alert_after_failures", i)
		}
		got, _, _ := st.Get(ctx, c.ID)
		if got.ConsecutiveFailures != i {
			t.Errorf("tick %d: ConsecutiveFailures got %d, want %d", i, got.ConsecutiveFailures, i)
		}
	}

	inc, notify := l.Process(ctx, c, snapWith(250))
	if !notify {
		t.Fatal("tick 3: expected notification once threshold reached")
	}
	if inc.OldStatus != types.StatusOK || inc.NewStatus != types.StatusError {
		t.Errorf("tick 3: got %v -> %v, want OK -> ERROR", inc.OldStatus, inc.NewStatus)
	}

	if _, notify := l.Process(ctx, c, snapWith(250)); notify {
		t.Error("tick 4: unchanged status after notifying must be silent")
	}
}

func TestProcess_SilentRecoveryBeforeNotify(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := newLifecycle(st)
	c := cpuCheck(2)

	l.Process(ctx, c, snapWith(250))
	if _, notify := l.Process(ctx, c, snapWith(10)); notify {
		t.Error("recovery of an incident that never notified must be silent")
	}
	if _, found, _ := st.Get(ctx, c.ID); found {
		t.Error("incident not deleted on recovery")
	}
}

func TestProcess_NotifiedAtRecordedWithFirstAlert(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := newLifecycle(st)
	c := cpuCheck(2)

	l.Process(ctx, c, snapWith(250))
	if got, _, _ := st.Get(ctx, c.ID); got.Notified() {
		t.Fatal("tick 1: NotifiedAt set while still gated")
	}

	inc, notify := l.Process(ctx, c, snapWith(250))
	if !notify {
		t.Fatal("tick 2: expected notification")
	}
	if inc.NotifiedAt == nil || !inc.NotifiedAt.Equal(t0) {
		t.Errorf("tick 2: NotifiedAt got %v, want %v", inc.NotifiedAt, t0)
	}
	stored, _, _ := st.Get(ctx, c.ID)
	if !stored.Notified() {
		t.Error("tick 2: stored incident has no NotifiedAt")
	}
}

func TestProcess_LoweringAlertAfterReleasesGatedIncident(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := newLifecycle(st)

	for i := 1; i <= 2; i++ {
		if _, notify := l.Process(ctx, cpuCheck(3), snapWith(250)); notify {
			t.Fatalf("tick %d: notified while gated", i)
		}
	}

	notifications := 0
	var first types.Incident
	for i := 0; i < 5; i++ {
		if inc, notify := l.Process(ctx, cpuCheck(1), snapWith(250)); notify {
			if notifications == 0 {
				first = inc
			}
			notifications++
		}
	}
	if notifications != 1 {
		t.Fatalf("notifications after lowering alert_after_failures: got %d, want 1", notifications)
	}
	if first.OldStatus != types.StatusOK || first.NewStatus != types.StatusError {
		t.Errorf("notification: got %v -> %v, want OK -> ERROR", first.OldStatus, first.NewStatus)
	}
	stored, _, _ := st.Get(ctx, "cpu-p99")
	if !stored.Notified() {
		t.Error("stored incident not marked notified")
	}
}

func TestProcess_RaisingAlertAfterDoesNotRepeatAlert(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := newLifecycle(st)

	if _, notify := l.Process(ctx, cpuCheck(1), snapWith(250)); !notify {
		t.Fatal("tick 1: expected notification")
	}
	before, _, _ := st.Get(ctx, "cpu-p99")

	for i := 0; i < 5; i++ {
		if _, notify := l.Process(ctx, cpuCheck(3), snapWith(250)); notify {
			t.Fatalf("repeat %d: unchanged status notified again after raising alert_after_failures", i)
		}
	}
	after, _, _ := st.Get(ctx, "cpu-p99")
	if after.Version != before.Version {
		t.Errorf("Version: got %d, want %d", after.Version, before.Version)
	}

	inc, notify := l.Process(ctx, cpuCheck(3), snapWith(10))
	if !notify || !inc.Recovered() {
		t.Errorf("recovery: notify=%v recovered=%v, want true true", notify, inc.Recovered())
	}
}

func TestRetire(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := newLifecycle(st)

	notified := cpuCheck(1)
	gated := cpuCheck(3)
	gated.ID = "gated"
	kept := cpuCheck(1)
	kept.ID = "kept"
	foreign := cpuCheck(1)
	foreign.ID, foreign.Application = "foreign", "billing"
	for _, c := range []check.Check{notified, gated, kept, foreign} {
		l.Process(ctx, c, snapWith(250))
	}

	got := l.Retire(ctx, "checkout", map[string]bool{"kept": true})
	if len(got) != 1 {
		t.Fatalf("retired: got %d recoveries, want 1", len(got))
	}
	rec := got[0]
	if rec.CheckID != "cpu-p99" || rec.OldStatus != types.StatusError || rec.NewStatus != types.StatusOK {
		t.Errorf("recovery: got %s %v -> %v", rec.CheckID, rec.OldStatus, rec.NewStatus)
	}
	if rec.ResolvedAt == nil || !rec.ResolvedAt.Equal(t0) {
		t.Errorf("ResolvedAt: got %v, want %v", rec.ResolvedAt, t0)
	}
	if !rec.Recovered() {
		t.Error("Recovered: got false, want true")
	}

	list, _ := st.List(ctx)
	var ids []string
	for _, inc := range list {
		ids = append(ids, inc.CheckID)
	}
	if diff := cmp.Diff([]string{"foreign", "kept"}, ids); diff != "" {
		t.Errorf("remaining incidents (-want +got):\n%s", diff)
	}

	if again := l.Retire(ctx, "checkout", map[string]bool{"kept": true}); len(again) != 0 {
		t.Errorf("second retire: got %d recoveries, want 0", len(again))
	}
}

// conflictingDelete loses every delete race.
type conflictingDelete struct {
	store.Store
}

func (c conflictingDelete) Delete(context.Context, types.Incident, types.Incident) (bool, error) {
	return false, nil
}

func TestRetire_ConflictLeavesIncident(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	newLifecycle(st).Process(ctx, cpuCheck(1), snapWith(250))

	if got := newLifecycle(conflictingDelete{st}).Retire(ctx, "checkout", nil); len(got) != 0 {
		t.Errorf("retired: got %d, want 0", len(got))
	}
	if _, found, _ := st.Get(ctx, "cpu-p99"); !found {
		t.Error("incident removed despite lost race")
	}
}

// flakyStore fails the first n writes with a conflict, then behaves like mem.
type flakyStore struct {
	*store.Memory
	conflicts int
	readErrs  int
	writes    int
}

func (f *flakyStore) Get(ctx context.Context, id string) (types.Incident, bool, error) {
	if f.readErrs > 0 {
		f.readErrs--
		return types.Incident{}, false, errors.New("connection reset")
	}
	return f.Memory.Get(ctx, id)
}

func (f *flakyStore) Create(ctx context.Context, inc types.Incident) (bool, error) {
	f.writes++
	if f.conflicts > 0 {
		f.conflicts--
		return false, nil
	}
	return f.Memory.Create(ctx, inc)
}

func TestProcess_RetriesConflicts(t *testing.T) {
	st := &flakyStore{Memory: store.NewMemory(), conflicts: 3, readErrs: 2}
	l := newLifecycle(st)

	if _, notify := l.Process(context.Background(), cpuCheck(1), snapWith(250)); !notify {
		t.Fatal("expected notification after retries")
	}
	if st.writes != 4 {
		t.Errorf("writes: got %d, want 4", st.writes)
	}
}

func TestProcess_GivesUpAfterMaxAttempts(t *testing.T) {
	st := &flakyStore{Memory: store.NewMemory(), conflicts: 100}
	l := newLifecycle(st)

	if _, notify := l.Process(context.Background(), cpuCheck(1), snapWith(250)); notify {
		t.Fatal("expected no notification after exhausting attempts")
	}
	if st.writes != MaxAttempts {
		t.Errorf("writes: got %d, want %d", st.writes, MaxAttempts)
	}
	if _, found, _ := st.Memory.Get(context.Background(), "cpu-p99"); found {
		t.Error("incident stored despite every attempt conflicting")
	}
}

// racingStore lets a concurrent writer change the incident between the
// lifecycle's read and its write on the first attempt.
type racingStore struct {
	*store.Memory
	raced bool
}

func (r *racingStore) Update(ctx context.Context, inc, prev types.Incident) (bool, error) {
	if !r.raced {
		r.raced = true
		cur, _, _ := r.Memory.Get(ctx, inc.CheckID)
		other := cur
		other.NewStatus = types.StatusCritical
		other.OldStatus = cur.NewStatus
		r.Memory.Update(ctx, other, cur) //nolint:errcheck
	}
	return r.Memory.Update(ctx, inc, prev)
}

func TestProcess_RereadsAfterConflict(t *testing.T) {
	ctx := context.Background()
	st := &racingStore{Memory: store.NewMemory()}
	l := newLifecycle(st)
	c := cpuCheck(1)

	l.Process(ctx, c, snapWith(250))
	inc, notify := l.Process(ctx, c, snapWith(150))
	if !notify {
		t.Fatal("expected notification")
	}
	if inc.OldStatus != types.StatusCritical {
		t.Errorf("OldStatus: got %v, want CRITICAL from the re-read value", inc.OldStatus)
	}
	if inc.Version != 3 {
		t.Errorf("Version: got %d, want 3", inc.Version)
	}
}

func TestProcess_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := store.NewMemory()
	if _, notify := newLifecycle(st).Process(ctx, cpuCheck(1), snapWith(250)); notify {
		t.Error("expected no notification with cancelled context")
	}
}

func TestDescribe(t *testing.T) {
	c := cpuCheck(1)
	got := describe(c, types.CheckResult{Metric: "cpu_p99", Status: types.StatusError, Value: 250})
	want := "cpu p99 is ERROR: cpu_p99 field p99 = 250 (> 200)"
	if got != want {
		t.Errorf("describe: got %q, want %q", got, want)
	}
}
