package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/sentinel/agent/internal/alerts"
	"github.com/obsidianstack/sentinel/agent/internal/check"
	"github.com/obsidianstack/sentinel/agent/internal/metrics"
	"github.com/obsidianstack/sentinel/pkg/types"
)

// Source produces the metric snapshot for a tick.
type Source interface {
	Snapshot(ctx context.Context) (*metrics.Snapshot, error)
}

// Processor applies one check to a snapshot and reports the transition to
// notify, if any. incident.Lifecycle implements it.
type Processor interface {
	Process(ctx context.Context, c check.Check, snap *metrics.Snapshot) (types.Incident, bool)
}

// Retirer drops incidents of checks that are no longer scheduled and returns
// the recoveries to notify. incident.Lifecycle implements it.
type Retirer interface {
	Retire(ctx context.Context, app string, keep map[string]bool) []types.Incident
}

// Sender routes a transition. alerts.Router implements it.
type Sender interface {
	SendAlerts(ctx context.Context, p alerts.Policy, inc types.Incident) int
}

// Runtime is the configuration captured once at the start of every tick.
type Runtime struct {
	Application string
	Checks      []check.Check
	Policy      alerts.Policy
}

// Report summarises one tick.
type Report struct {
	Evaluated int
	Notified  int
	Retired   int
	Panicked  int
	Duration  time.Duration
}

// Scheduler runs ticks on a Schedule.
//
// Scheduler is safe for concurrent use; Run must be called at most once.
type Scheduler struct {
	source    Source
	processor Processor
	sender    Sender

	runtime atomic.Pointer[Runtime]

	mu           sync.Mutex
	schedule     Schedule
	onTransition func(types.Incident)
	scheduleCh   chan Schedule
}

// New returns a Scheduler. A nil sched falls back to Default.
func New(src Source, p Processor, s Sender, rt Runtime, sched Schedule) *Scheduler {
	if sched == nil {
		sched = Default
	}
	sc := &Scheduler{
		source:     src,
		processor:  p,
		sender:     s,
		schedule:   sched,
		scheduleCh: make(chan Schedule, 1),
	}
	sc.runtime.Store(&rt)
	return sc
}

// Apply replaces the runtime configuration from the next tick on. A tick in
// progress keeps the runtime it started with.
func (s *Scheduler) Apply(rt Runtime) {
	s.runtime.Store(&rt)
	slog.Info("schedule: runtime applied",
		"application", rt.Application,
		"checks", len(rt.Checks),
		"subscriptions", len(rt.Policy.Subscriptions),
		"muted", rt.Policy.Muted,
	)
}

// Runtime returns the runtime configuration the next tick will use.
func (s *Scheduler) Runtime() Runtime {
	return *s.runtime.Load()
}

// SetSchedule changes the schedule. A running loop re-arms its timer.
func (s *Scheduler) SetSchedule(sched Schedule) {
	if sched == nil {
		sched = Default
	}
	s.mu.Lock()
	changed := s.schedule.String() != sched.String()
	s.schedule = sched
	s.mu.Unlock()
	if !changed {
		return
	}

	// Keep only the latest pending change.
	select {
	case <-s.scheduleCh:
	default:
	}
	select {
	case s.scheduleCh <- sched:
	default:
	}
	slog.Info("schedule: updated", "schedule", sched.String())
}

// Schedule returns the current schedule.
func (s *Scheduler) Schedule() Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

// OnTransition registers fn to be called with every notified transition,
// muted or not. It replaces any previous callback.
func (s *Scheduler) OnTransition(fn func(types.Incident)) {
	s.mu.Lock()
	s.onTransition = fn
	s.mu.Unlock()
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	sched := s.Schedule()
	slog.Info("schedule: started", "schedule", sched.String())

	if sched.KickOnStart() {
		s.Tick(ctx)
	}

	timer := time.NewTimer(until(sched))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("schedule: stopped")
			return ctx.Err()
		case sched = <-s.scheduleCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(until(sched))
		case <-timer.C:
			s.Tick(ctx)
			timer.Reset(until(sched))
		}
	}
}

func until(sched Schedule) time.Duration {
	now := time.Now()
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Tick runs one evaluation pass.
func (s *Scheduler) Tick(ctx context.Context) Report {
	start := time.Now()
	rt := s.runtime.Load()

	var rep Report
	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		slog.Error("schedule: snapshot failed, skipping tick", "err", err)
		return rep
	}

	s.mu.Lock()
	onTransition := s.onTransition
	s.mu.Unlock()

	keep := make(map[string]bool, len(rt.Checks))
	for _, c := range rt.Checks {
		if !c.AppliesTo(rt.Application) {
			continue
		}
		keep[c.ID] = true
		if ctx.Err() != nil {
			break
		}
		rep.Evaluated++

		inc, notify, err := s.process(ctx, c, snap)
		if err != nil {
			rep.Panicked++
			slog.Error("schedule: check failed", "check", c.ID, "err", err)
			continue
		}
		if !notify {
			continue
		}
		rep.Notified++
		s.sender.SendAlerts(ctx, rt.Policy, inc)
		if onTransition != nil {
			onTransition(inc)
		}
	}

	if r, ok := s.processor.(Retirer); ok && ctx.Err() == nil {
		for _, inc := range r.Retire(ctx, rt.Application, keep) {
			rep.Retired++
			rep.Notified++
			s.sender.SendAlerts(ctx, rt.Policy, inc)
			if onTransition != nil {
				onTransition(inc)
			}
		}
	}

	rep.Duration = time.Since(start)
	slog.Debug("schedule: tick done",
		"evaluated", rep.Evaluated,
		"notified", rep.Notified,
		"retired", rep.Retired,
		"failed", rep.Panicked,
		"duration", rep.Duration,
	)
	return rep
}

// process runs one check, converting a panic into an error.
func (s *Scheduler) process(ctx context.Context, c check.Check, snap *metrics.Snapshot) (inc types.Incident, notify bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	inc, notify = s.processor.Process(ctx, c, snap)
	return inc, notify, nil
}
