package config

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/obsidianstack/sentinel/agent/internal/alerts"
	"github.com/obsidianstack/sentinel/agent/internal/check"
	"github.com/obsidianstack/sentinel/agent/internal/metrics"
	"github.com/obsidianstack/sentinel/agent/internal/schedule"
	"github.com/obsidianstack/sentinel/pkg/types"
)

// Errors wrapped by the entries Runtime skips.
var (
	ErrInvalidCheck        = errors.New("invalid check")
	ErrInvalidSubscription = errors.New("invalid subscription")
)

// Runtime converts the alerting section into the typed snapshot the scheduler
// consumes. Invalid checks and subscriptions are left out; the returned error
// lists every skipped entry and is nil when nothing was skipped. The runtime
// and schedule are usable even when the error is non-nil.
func (c *Config) Runtime() (schedule.Runtime, schedule.Schedule, error) {
	var errs *multierror.Error

	sched, err := schedule.Parse(c.Alerting.Schedule)
	if err != nil {
		errs = multierror.Append(errs, err)
		sched = schedule.Default
	}

	rt := schedule.Runtime{
		Application: c.Agent.Application,
		Policy:      alerts.Policy{Muted: c.Alerting.Muted},
	}

	ids := make(map[string]bool, len(c.Alerting.Checks))
	for i, cc := range c.Alerting.Checks {
		chk, err := cc.build(c.Agent.Application)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%w: checks[%d] %q: %v", ErrInvalidCheck, i, cc.Name, err))
			continue
		}
		if ids[chk.ID] {
			errs = multierror.Append(errs, fmt.Errorf("%w: checks[%d] %q: duplicate id %q", ErrInvalidCheck, i, cc.Name, chk.ID))
			continue
		}
		ids[chk.ID] = true
		rt.Checks = append(rt.Checks, chk)
	}

	subIDs := make(map[string]bool, len(c.Alerting.Subscriptions))
	for i, sc := range c.Alerting.Subscriptions {
		if err := sc.validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%w: subscriptions[%d] %q: %v", ErrInvalidSubscription, i, sc.ID, err))
			continue
		}
		if subIDs[sc.ID] {
			errs = multierror.Append(errs, fmt.Errorf("%w: subscriptions[%d]: duplicate id %q", ErrInvalidSubscription, i, sc.ID))
			continue
		}
		subIDs[sc.ID] = true
		rt.Policy.Subscriptions = append(rt.Policy.Subscriptions, sc.subscription())
	}

	return rt, sched, errs.ErrorOrNil()
}

func (cc CheckConfig) build(defaultApp string) (check.Check, error) {
	if cc.Name == "" {
		return check.Check{}, fmt.Errorf("name is required")
	}
	id := check.Slug(cc.Name)
	if id == "" {
		return check.Check{}, fmt.Errorf("name has no letters or digits")
	}
	if cc.Target == "" {
		return check.Check{}, fmt.Errorf("target is required")
	}
	target, err := check.CompileTarget(cc.Target)
	if err != nil {
		return check.Check{}, fmt.Errorf("target: %w", err)
	}
	cat, err := metrics.ParseCategory(cc.Category)
	if err != nil {
		return check.Check{}, err
	}
	if cc.Field == "" {
		return check.Check{}, fmt.Errorf("field is required")
	}
	if cc.AlertAfterFailures < 0 {
		return check.Check{}, fmt.Errorf("alert_after_failures must not be negative")
	}

	warn, err := thresholds(cc.Warn)
	if err != nil {
		return check.Check{}, fmt.Errorf("warn: %w", err)
	}
	errBucket, err := thresholds(cc.Error)
	if err != nil {
		return check.Check{}, fmt.Errorf("error: %w", err)
	}
	crit, err := thresholds(cc.Critical)
	if err != nil {
		return check.Check{}, fmt.Errorf("critical: %w", err)
	}
	if len(warn)+len(errBucket)+len(crit) == 0 {
		return check.Check{}, fmt.Errorf("no thresholds configured")
	}

	app := cc.Application
	if app == "" {
		app = defaultApp
	}
	active := true
	if cc.Active != nil {
		active = *cc.Active
	}
	return check.Check{
		ID:          id,
		Name:        cc.Name,
		Application: app,
		Target:      target,
		Category:    cat,
		Field:       cc.Field,
		Warn:        warn,
		Error:       errBucket,
		Critical:    crit,
		Active:      active,
		AlertAfter:  cc.AlertAfterFailures,
	}, nil
}

func thresholds(in []ThresholdConfig) ([]check.Threshold, error) {
	out := make([]check.Threshold, 0, len(in))
	for i, tc := range in {
		op, err := check.ParseOperator(tc.Operator)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, check.Threshold{Operator: op, Expected: tc.Value})
	}
	return out, nil
}

func (sc SubscriptionConfig) validate() error {
	if sc.ID == "" {
		return fmt.Errorf("id is required")
	}
	if sc.Alerter == "" {
		return fmt.Errorf("alerter is required")
	}
	if !sc.On.BackToOK && !sc.On.Warn && !sc.On.Error && !sc.On.Critical {
		return fmt.Errorf("subscribes to no status")
	}
	return nil
}

func (sc SubscriptionConfig) subscription() types.Subscription {
	return types.Subscription{
		ID:              sc.ID,
		Target:          sc.Target,
		AlerterType:     sc.Alerter,
		AlertOnBackToOK: sc.On.BackToOK,
		AlertOnWarn:     sc.On.Warn,
		AlertOnError:    sc.On.Error,
		AlertOnCritical: sc.On.Critical,
	}
}

// Alerters builds every alerter the agent supports from the alerters
// section. Alerters whose settings are incomplete are still returned and
// report IsAvailable() == false.
func (c *Config) Alerters() []alerts.Alerter {
	a := c.Alerting.Alerters
	out := []alerts.Alerter{
		alerts.NewLog(),
		alerts.NewMail(alerts.MailConfig{
			Host:     a.Email.Host,
			Port:     a.Email.Port,
			From:     a.Email.From,
			Username: a.Email.Username,
			Password: a.Email.Password(),
		}),
		alerts.NewElastic(alerts.ElasticConfig{
			URL:    a.Elasticsearch.URL,
			Index:  a.Elasticsearch.Index,
			APIKey: a.Elasticsearch.APIKey(),
		}),
		alerts.NewPushbullet(a.Pushbullet.Token()),
	}
	for _, kind := range []string{alerts.TypeSlack, alerts.TypeTeams, alerts.TypeWebhook} {
		w, _ := alerts.NewWebhook(kind)
		out = append(out, w)
	}
	return out
}
