package scraper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/sentinel/agent/internal/config"
)

const (
	defaultScrapeTimeout = 10 * time.Second
	defaultAPIKeyHeader  = "X-API-Key"
	userAgent            = "sentinel-agent"

	// maxBodySize caps one exposition; larger bodies are truncated and the
	// trailing partial line is reported by the parser.
	maxBodySize = 16 << 20
)

// authRoundTripper applies the source's credentials to every request.
type authRoundTripper struct {
	base  http.RoundTripper
	apply func(*http.Request)
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	if t.apply != nil {
		t.apply(req)
	}
	return t.base.RoundTrip(req)
}

// credentials returns the request mutator for auth. Secrets are read from the
// environment on every request so rotated values apply without a reload.
func credentials(auth config.AuthConfig) func(*http.Request) {
	switch auth.Mode {
	case "apikey":
		header := auth.Header
		if header == "" {
			header = defaultAPIKeyHeader
		}
		return func(r *http.Request) { r.Header.Set(header, auth.Key()) }
	case "bearer":
		return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+auth.Token()) }
	case "basic":
		return func(r *http.Request) { r.SetBasicAuth(auth.Username, auth.Password()) }
	default:
		return nil
	}
}

// buildHTTPClient constructs the client used for every scrape of src.
func buildHTTPClient(src config.Source, timeout time.Duration) (*http.Client, error) {
	tlsCfg, err := clientTLS(src)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultScrapeTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	transport.MaxIdleConnsPerHost = 2

	return &http.Client{
		Transport: &authRoundTripper{base: transport, apply: credentials(src.Auth)},
		Timeout:   timeout,
	}, nil
}

// clientTLS loads the client certificate and CA pool for mtls sources.
func clientTLS(src config.Source) (*tls.Config, error) {
	cfg := &tls.Config{
		InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	if src.Auth.Mode != "mtls" {
		return cfg, nil
	}

	cert, err := tls.LoadX509KeyPair(src.Auth.CertFile, src.Auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}
	cfg.Certificates = []tls.Certificate{cert}

	if src.Auth.CAFile == "" {
		return cfg, nil
	}
	caPEM, err := os.ReadFile(src.Auth.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no valid certs found in ca file %q", src.Auth.CAFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// fetchMetrics GETs url and parses the text exposition it returns.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return parseMetrics(io.LimitReader(resp.Body, maxBodySize))
}

// parseMetrics decodes a text exposition into metric families. Families parsed
// before a syntax error are kept; an error is returned only when none were.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}
