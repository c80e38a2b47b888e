package types

// Subscription is a per-channel, per-severity opt-in describing where to send
// notifications and for which transitions.
type Subscription struct {
	ID string `json:"id"`

	// Target is channel specific: an e-mail address, a webhook URL, a
	// Pushbullet channel tag or an index name.
	Target string `json:"target"`

	// AlerterType selects the registered Alerter by its stable key.
	AlerterType string `json:"alerter_type"`

	AlertOnBackToOK bool `json:"alert_on_back_to_ok"`
	AlertOnWarn     bool `json:"alert_on_warn"`
	AlertOnError    bool `json:"alert_on_error"`
	AlertOnCritical bool `json:"alert_on_critical"`
}

// AlertOn reports whether the subscription wants notifications for incidents
// whose new status is s. StatusOK corresponds to the back-to-OK opt-in.
func (s Subscription) AlertOn(st Status) bool {
	switch st {
	case StatusOK:
		return s.AlertOnBackToOK
	case StatusWarn:
		return s.AlertOnWarn
	case StatusError:
		return s.AlertOnError
	case StatusCritical:
		return s.AlertOnCritical
	default:
		return false
	}
}
