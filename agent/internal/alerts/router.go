package alerts

import (
	"context"
	"log/slog"

	"github.com/obsidianstack/sentinel/pkg/types"
)

// Policy is the alerting configuration in effect for one tick.
type Policy struct {
	Muted         bool
	Subscriptions []types.Subscription
}

// Router fans incidents out to the log sink and the subscribed alerters.
type Router struct {
	registry   *Registry
	dispatcher *Dispatcher
	sink       Alerter
}

// NewRouter returns a Router resolving alerters in reg and delivering through d.
func NewRouter(reg *Registry, d *Dispatcher) *Router {
	return &Router{registry: reg, dispatcher: d, sink: NewLog()}
}

// SendAlerts notifies every interested subscription of inc and returns the
// number of deliveries queued. Nothing is sent, not even to the log sink,
// when the policy is muted.
func (r *Router) SendAlerts(ctx context.Context, p Policy, inc types.Incident) int {
	if p.Muted {
		slog.Debug("alerts: muted, skipping", "check", inc.CheckID, "status", inc.NewStatus)
		return 0
	}

	if err := r.sink.Alert(ctx, inc, types.Subscription{}); err != nil {
		slog.Error("alerts: log sink failed", "check", inc.CheckID, "err", err)
	}

	queued := 0
	for _, sub := range p.Subscriptions {
		if !sub.AlertOn(inc.NewStatus) {
			continue
		}
		a, err := r.registry.Get(sub.AlerterType)
		if err != nil {
			slog.Warn("alerts: skipping subscription",
				"subscription", sub.ID,
				"alerter", sub.AlerterType,
				"err", err,
			)
			continue
		}
		if r.dispatcher.Submit(a, inc, sub) {
			queued++
		}
	}
	return queued
}
