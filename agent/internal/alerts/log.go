package alerts

import (
	"context"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/obsidianstack/sentinel/pkg/types"
)

// TypeLog is the type key of the log alerter.
const TypeLog = "log"

// Log writes incidents to the process logger. It is always available and is
// also the sink the Router writes every unmuted incident to.
type Log struct{}

// NewLog returns the log alerter.
func NewLog() *Log { return &Log{} }

func (*Log) AlerterType() string { return TypeLog }
func (*Log) IsAvailable() bool   { return true }
func (*Log) TargetLabel() string { return "" }

// Alert logs inc at a level matching its new status.
func (*Log) Alert(ctx context.Context, inc types.Incident, _ types.Subscription) error {
	attrs := []any{
		"check", inc.CheckID,
		"application", inc.Application,
		"old_status", inc.OldStatus,
		"new_status", inc.NewStatus,
		"value", inc.CurrentValue,
		"failing_since", humanize.Time(inc.FirstFailureAt),
	}
	if inc.Description != "" {
		attrs = append(attrs, "description", inc.Description)
	}
	slog.Log(ctx, levelOf(inc.NewStatus), "alert: "+inc.Summary(), attrs...)
	return nil
}

func levelOf(s types.Status) slog.Level {
	switch s {
	case types.StatusCritical, types.StatusError:
		return slog.LevelError
	case types.StatusWarn:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
