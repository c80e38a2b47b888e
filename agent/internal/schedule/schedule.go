package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval is used when no schedule is configured.
const DefaultInterval = 60 * time.Second

// Default is the schedule used when none is configured.
var Default Schedule = Interval{DefaultInterval}

// Schedule yields the next activation time.
type Schedule interface {
	cron.Schedule
	fmt.Stringer

	// KickOnStart reports whether the first tick runs immediately.
	KickOnStart() bool
}

// Parse accepts a Go duration ("30s", "5m") or a standard cron expression
// ("*/5 * * * *", "@hourly"). An empty spec yields Default.
func Parse(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Default, nil
	}
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("schedule: interval must be positive, got %s", d)
		}
		return Interval{d}, nil
	}
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule: %q is neither a duration nor a cron expression: %w", spec, err)
	}
	return Cron{spec: spec, schedule: s}, nil
}

// Interval fires every Every.
type Interval struct {
	Every time.Duration
}

func (s Interval) Next(t time.Time) time.Time { return t.Add(s.Every) }
func (s Interval) String() string             { return s.Every.String() }
func (s Interval) KickOnStart() bool          { return true }

// Cron fires on a cron expression.
type Cron struct {
	spec     string
	schedule cron.Schedule
}

func (s Cron) Next(t time.Time) time.Time { return s.schedule.Next(t) }
func (s Cron) String() string             { return s.spec }
func (s Cron) KickOnStart() bool          { return false }
