package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/sentinel/pkg/types"
)

// Webhook flavours. Each is registered as its own alerter type.
const (
	TypeSlack   = "slack"
	TypeTeams   = "teams"
	TypeWebhook = "webhook"
)

const defaultHTTPTimeout = 10 * time.Second

// Webhook posts incidents as JSON to the URL held in Subscription.Target.
// The payload shape depends on the flavour: a Slack message, a Teams
// MessageCard, or the raw incident for generic HTTP receivers.
type Webhook struct {
	kind   string
	client *http.Client
}

// NewWebhook returns a webhook alerter of the given flavour.
func NewWebhook(kind string) (*Webhook, error) {
	switch kind {
	case TypeSlack, TypeTeams, TypeWebhook:
	default:
		return nil, fmt.Errorf("alerts: unknown webhook flavour %q", kind)
	}
	return &Webhook{kind: kind, client: &http.Client{Timeout: defaultHTTPTimeout}}, nil
}

func (w *Webhook) AlerterType() string { return w.kind }
func (w *Webhook) IsAvailable() bool   { return true }
func (w *Webhook) TargetLabel() string { return "webhook URL" }

// Alert posts inc to sub.Target.
func (w *Webhook) Alert(ctx context.Context, inc types.Incident, sub types.Subscription) error {
	if sub.Target == "" {
		return fmt.Errorf("%s: subscription %q has no URL", w.kind, sub.ID)
	}

	var payload any
	switch w.kind {
	case TypeSlack:
		payload = map[string]string{
			"text": fmt.Sprintf("*%s* %s\n%s", severityLabel(inc.NewStatus), inc.Summary(), inc.Description),
		}
	case TypeTeams:
		payload = map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": severityColor(inc.NewStatus),
			"summary":    inc.CheckName,
			"title":      fmt.Sprintf("Sentinel Alert: %s", inc.CheckName),
			"text":       inc.Summary() + "\n\n" + inc.Description,
		}
	default:
		payload = map[string]any{
			"id":           uuid.NewString(),
			"subscription": sub.ID,
			"incident":     inc,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode payload: %w", w.kind, err)
	}
	return postJSON(ctx, w.client, sub.Target, body, nil)
}

// postJSON posts body to url with the extra headers and fails on HTTP >= 400.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned HTTP %d", url, resp.StatusCode)
	}
	return nil
}

func severityLabel(s types.Status) string {
	switch s {
	case types.StatusCritical:
		return "[CRITICAL]"
	case types.StatusError:
		return "[ERROR]"
	case types.StatusWarn:
		return "[WARNING]"
	default:
		return "[RESOLVED]"
	}
}

func severityColor(s types.Status) string {
	switch s {
	case types.StatusCritical:
		return "FF4F6A"
	case types.StatusError:
		return "FF7A45"
	case types.StatusWarn:
		return "FFAB40"
	default:
		return "2ECC71"
	}
}
