package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obsidianstack/sentinel/pkg/types"
)

func incident(id string, status types.Status) types.Incident {
	return types.Incident{
		CheckID:     id,
		CheckName:   "check " + id,
		Application: "app",
		Time:        time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		OldStatus:   types.StatusOK,
		NewStatus:   status,
		Results:     []types.CheckResult{{Metric: "cpu", Status: status, Value: 91}},
	}
}

// runContract exercises the compare-and-swap semantics every backend must
// provide. newStore must return an empty store.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("CreateThenGet", func(t *testing.T) {
		st := newStore(t)
		ok, err := st.Create(ctx, incident("c1", types.StatusWarn))
		if err != nil || !ok {
			t.Fatalf("Create: got (%v, %v), want (true, nil)", ok, err)
		}
		got, found, err := st.Get(ctx, "c1")
		if err != nil || !found {
			t.Fatalf("Get: got (found=%v, err=%v)", found, err)
		}
		if got.Version != 1 {
			t.Errorf("Version: got %d, want 1", got.Version)
		}
		if got.NewStatus != types.StatusWarn {
			t.Errorf("NewStatus: got %v, want WARN", got.NewStatus)
		}
		if len(got.Results) != 1 || got.Results[0].Value != 91 {
			t.Errorf("Results: got %+v", got.Results)
		}
	})

	t.Run("NotifiedAtPersists", func(t *testing.T) {
		st := newStore(t)
		st.Create(ctx, incident("c1", types.StatusWarn)) //nolint:errcheck
		prev, _, _ := st.Get(ctx, "c1")
		if prev.Notified() {
			t.Fatal("new incident reports Notified")
		}

		at := time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC)
		next := prev
		next.NotifiedAt = &at
		if ok, err := st.Update(ctx, next, prev); err != nil || !ok {
			t.Fatalf("Update: got (%v, %v), want (true, nil)", ok, err)
		}
		got, _, _ := st.Get(ctx, "c1")
		if got.NotifiedAt == nil || !got.NotifiedAt.Equal(at) {
			t.Errorf("NotifiedAt: got %v, want %v", got.NotifiedAt, at)
		}
	})

	t.Run("CreateExistingFails", func(t *testing.T) {
		st := newStore(t)
		st.Create(ctx, incident("c1", types.StatusWarn)) //nolint:errcheck
		ok, err := st.Create(ctx, incident("c1", types.StatusError))
		if err != nil || ok {
			t.Fatalf("second Create: got (%v, %v), want (false, nil)", ok, err)
		}
		got, _, _ := st.Get(ctx, "c1")
		if got.NewStatus != types.StatusWarn {
			t.Errorf("stored status overwritten: got %v, want WARN", got.NewStatus)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		st := newStore(t)
		_, found, err := st.Get(ctx, "nope")
		if err != nil || found {
			t.Fatalf("Get missing: got (found=%v, err=%v), want (false, nil)", found, err)
		}
	})

	t.Run("UpdateBumpsVersion", func(t *testing.T) {
		st := newStore(t)
		st.Create(ctx, incident("c1", types.StatusWarn)) //nolint:errcheck
		prev, _, _ := st.Get(ctx, "c1")

		next := prev
		next.OldStatus, next.NewStatus = types.StatusWarn, types.StatusError
		ok, err := st.Update(ctx, next, prev)
		if err != nil || !ok {
			t.Fatalf("Update: got (%v, %v), want (true, nil)", ok, err)
		}
		got, _, _ := st.Get(ctx, "c1")
		if got.Version != 2 {
			t.Errorf("Version: got %d, want 2", got.Version)
		}
		if got.NewStatus != types.StatusError {
			t.Errorf("NewStatus: got %v, want ERROR", got.NewStatus)
		}
	})

	t.Run("UpdateStaleFails", func(t *testing.T) {
		st := newStore(t)
		st.Create(ctx, incident("c1", types.StatusWarn)) //nolint:errcheck
		prev, _, _ := st.Get(ctx, "c1")

		first := prev
		first.NewStatus = types.StatusError
		if ok, _ := st.Update(ctx, first, prev); !ok {
			t.Fatal("first Update should succeed")
		}
		second := prev
		second.NewStatus = types.StatusCritical
		ok, err := st.Update(ctx, second, prev)
		if err != nil || ok {
			t.Fatalf("stale Update: got (%v, %v), want (false, nil)", ok, err)
		}
		got, _, _ := st.Get(ctx, "c1")
		if got.NewStatus != types.StatusError {
			t.Errorf("NewStatus: got %v, want ERROR", got.NewStatus)
		}
	})

	t.Run("UpdateMissingFails", func(t *testing.T) {
		st := newStore(t)
		inc := incident("c1", types.StatusWarn)
		inc.Version = 1
		ok, err := st.Update(ctx, inc, inc)
		if err != nil || ok {
			t.Fatalf("Update missing: got (%v, %v), want (false, nil)", ok, err)
		}
	})

	t.Run("DeleteCAS", func(t *testing.T) {
		st := newStore(t)
		st.Create(ctx, incident("c1", types.StatusWarn)) //nolint:errcheck
		prev, _, _ := st.Get(ctx, "c1")

		stale := prev
		stale.Version = prev.Version + 5
		if ok, _ := st.Delete(ctx, prev, stale); ok {
			t.Fatal("Delete with stale version should fail")
		}
		ok, err := st.Delete(ctx, prev, prev)
		if err != nil || !ok {
			t.Fatalf("Delete: got (%v, %v), want (true, nil)", ok, err)
		}
		if _, found, _ := st.Get(ctx, "c1"); found {
			t.Error("incident still present after Delete")
		}
		if ok, _ := st.Delete(ctx, prev, prev); ok {
			t.Error("second Delete should fail")
		}
	})

	t.Run("RecreateAfterDelete", func(t *testing.T) {
		st := newStore(t)
		st.Create(ctx, incident("c1", types.StatusWarn)) //nolint:errcheck
		prev, _, _ := st.Get(ctx, "c1")
		st.Delete(ctx, prev, prev) //nolint:errcheck

		ok, err := st.Create(ctx, incident("c1", types.StatusCritical))
		if err != nil || !ok {
			t.Fatalf("Create after Delete: got (%v, %v)", ok, err)
		}
		got, _, _ := st.Get(ctx, "c1")
		if got.Version != 1 {
			t.Errorf("Version: got %d, want 1", got.Version)
		}
	})

	t.Run("ListOrdered", func(t *testing.T) {
		st := newStore(t)
		for _, id := range []string{"b", "c", "a"} {
			st.Create(ctx, incident(id, types.StatusWarn)) //nolint:errcheck
		}
		list, err := st.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("List: got %d incidents, want 3", len(list))
		}
		for i, want := range []string{"a", "b", "c"} {
			if list[i].CheckID != want {
				t.Errorf("List[%d]: got %q, want %q", i, list[i].CheckID, want)
			}
		}
	})

	t.Run("RejectsEmptyCheckID", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Create(ctx, types.Incident{})
		if !errors.Is(err, ErrInvalidIncident) {
			t.Errorf("Create empty id: got %v, want ErrInvalidIncident", err)
		}
	})

	t.Run("ConcurrentCreateSingleWinner", func(t *testing.T) {
		st := newStore(t)
		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := st.Create(ctx, incident("race", types.StatusWarn)); ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		if got := wins.Load(); got != 1 {
			t.Errorf("winners: got %d, want exactly 1", got)
		}
	})

	t.Run("ConcurrentUpdateSingleWinner", func(t *testing.T) {
		st := newStore(t)
		st.Create(ctx, incident("race", types.StatusWarn)) //nolint:errcheck
		prev, _, _ := st.Get(ctx, "race")

		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next := prev
				next.NewStatus = types.StatusError
				if ok, _ := st.Update(ctx, next, prev); ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		if got := wins.Load(); got != 1 {
			t.Errorf("winners: got %d, want exactly 1", got)
		}
	})
}
