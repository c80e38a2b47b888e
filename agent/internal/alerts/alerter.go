package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/obsidianstack/sentinel/pkg/types"
)

// Errors returned by Registry.Get.
var (
	ErrUnknownAlerter = errors.New("alerts: unknown alerter type")
	ErrUnavailable    = errors.New("alerts: alerter not available")
)

// Alerter delivers incident notifications over one channel.
//
// Implementations must be safe for concurrent use and must honour ctx.
type Alerter interface {
	// AlerterType is the stable key subscriptions refer to.
	AlerterType() string

	// IsAvailable reports whether the alerter is configured well enough to
	// deliver.
	IsAvailable() bool

	// TargetLabel describes what Subscription.Target means for this
	// alerter, e.g. "e-mail address".
	TargetLabel() string

	// Alert delivers inc to the destination described by sub.
	Alert(ctx context.Context, inc types.Incident, sub types.Subscription) error
}

// Info describes a registered alerter for the admin API.
type Info struct {
	Type        string `json:"type"`
	Available   bool   `json:"available"`
	TargetLabel string `json:"target_label"`
}

// Registry maps alerter types to alerters.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	alerters map[string]Alerter
}

// NewRegistry returns a registry holding alerters. It panics on duplicate
// types, which is a programming error.
func NewRegistry(alerters ...Alerter) *Registry {
	r := &Registry{alerters: make(map[string]Alerter, len(alerters))}
	for _, a := range alerters {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a. It fails when an alerter of the same type is registered.
func (r *Registry) Register(a Alerter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	typ := a.AlerterType()
	if _, dup := r.alerters[typ]; dup {
		return fmt.Errorf("alerts: alerter %q registered twice", typ)
	}
	r.alerters[typ] = a
	return nil
}

// Replace registers a, overwriting any alerter of the same type. Used when a
// configuration reload changes alerter settings.
func (r *Registry) Replace(a Alerter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerters[a.AlerterType()] = a
}

// Get returns the available alerter registered under typ.
func (r *Registry) Get(typ string) (Alerter, error) {
	r.mu.RLock()
	a, ok := r.alerters[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlerter, typ)
	}
	if !a.IsAvailable() {
		return nil, fmt.Errorf("%w: %q", ErrUnavailable, typ)
	}
	return a, nil
}

// Available returns the types of every available alerter, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.alerters))
	for typ, a := range r.alerters {
		if a.IsAvailable() {
			out = append(out, typ)
		}
	}
	sort.Strings(out)
	return out
}

// All describes every registered alerter, sorted by type.
func (r *Registry) All() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.alerters))
	for typ, a := range r.alerters {
		out = append(out, Info{Type: typ, Available: a.IsAvailable(), TargetLabel: a.TargetLabel()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
