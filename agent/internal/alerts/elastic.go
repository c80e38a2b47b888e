package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/sentinel/pkg/types"
)

// TypeElasticsearch is the type key of the Elasticsearch alerter.
const TypeElasticsearch = "elasticsearch"

// ElasticConfig holds the Elasticsearch endpoint. APIKey is resolved by the caller.
type ElasticConfig struct {
	URL    string
	Index  string
	APIKey string
}

// Elastic indexes one document per incident into a daily index
// "<index>-YYYY.MM.DD". A non-empty Subscription.Target overrides the index.
type Elastic struct {
	cfg    ElasticConfig
	client *http.Client
}

// NewElastic returns an Elasticsearch alerter. It is unavailable without a URL.
func NewElastic(cfg ElasticConfig) *Elastic {
	if cfg.Index == "" {
		cfg.Index = "sentinel-alerts"
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Elastic{cfg: cfg, client: &http.Client{Timeout: defaultHTTPTimeout}}
}

func (e *Elastic) AlerterType() string { return TypeElasticsearch }
func (e *Elastic) IsAvailable() bool   { return e.cfg.URL != "" }
func (e *Elastic) TargetLabel() string { return "index name" }

type elasticDoc struct {
	Timestamp    time.Time      `json:"@timestamp"`
	Subscription string         `json:"subscription"`
	Summary      string         `json:"summary"`
	Incident     types.Incident `json:"incident"`
}

// Alert indexes inc.
func (e *Elastic) Alert(ctx context.Context, inc types.Incident, sub types.Subscription) error {
	index := e.cfg.Index
	if sub.Target != "" {
		index = sub.Target
	}
	url := fmt.Sprintf("%s/%s-%s/_doc/%s", e.cfg.URL, index, inc.Time.UTC().Format("2006.01.02"), uuid.NewString())

	body, err := json.Marshal(elasticDoc{
		Timestamp:    inc.Time,
		Subscription: sub.ID,
		Summary:      inc.Summary(),
		Incident:     inc,
	})
	if err != nil {
		return fmt.Errorf("elasticsearch: encode document: %w", err)
	}

	var headers map[string]string
	if e.cfg.APIKey != "" {
		headers = map[string]string{"Authorization": "ApiKey " + e.cfg.APIKey}
	}
	if err := postJSON(ctx, e.client, url, body, headers); err != nil {
		return fmt.Errorf("elasticsearch: %w", err)
	}
	return nil
}
