package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/obsidianstack/sentinel/pkg/types"
)

// TypePushbullet is the type key of the Pushbullet alerter.
const TypePushbullet = "pushbullet"

const pushbulletURL = "https://api.pushbullet.com/v2/pushes"

// Pushbullet pushes a note per incident. Subscription.Target is an e-mail
// address, a channel tag or empty for all of the account's devices.
type Pushbullet struct {
	token  string
	url    string
	client *http.Client
}

// NewPushbullet returns a Pushbullet alerter. It is unavailable without a token.
func NewPushbullet(token string) *Pushbullet {
	return &Pushbullet{token: token, url: pushbulletURL, client: &http.Client{Timeout: defaultHTTPTimeout}}
}

func (p *Pushbullet) AlerterType() string { return TypePushbullet }
func (p *Pushbullet) IsAvailable() bool   { return p.token != "" }
func (p *Pushbullet) TargetLabel() string { return "e-mail or channel tag" }

// Alert pushes inc.
func (p *Pushbullet) Alert(ctx context.Context, inc types.Incident, sub types.Subscription) error {
	push := map[string]string{
		"type":  "note",
		"title": severityLabel(inc.NewStatus) + " " + inc.CheckName,
		"body":  inc.Summary() + "\n" + inc.Description,
	}
	switch {
	case strings.Contains(sub.Target, "@"):
		push["email"] = sub.Target
	case sub.Target != "":
		push["channel_tag"] = sub.Target
	}

	body, err := json.Marshal(push)
	if err != nil {
		return fmt.Errorf("pushbullet: encode push: %w", err)
	}
	if err := postJSON(ctx, p.client, p.url, body, map[string]string{"Access-Token": p.token}); err != nil {
		return fmt.Errorf("pushbullet: %w", err)
	}
	return nil
}
