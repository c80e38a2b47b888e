package security

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/url"
	"time"
)

// ErrNotTLS is returned for endpoints that are not https.
var ErrNotTLS = errors.New("security: endpoint is not https")

const dialTimeout = 10 * time.Second

// CertStatus describes the leaf certificate presented by an endpoint.
type CertStatus struct {
	Endpoint string
	Issuer   string
	NotAfter time.Time

	// DaysLeft is negative once the certificate has expired.
	DaysLeft float64
}

// Check dials the TLS endpoint and returns the state of its leaf
// certificate as seen at now.
//
// Uses a 10-second dial timeout so a slow/unreachable host does not block the
// scrape indefinitely.
func Check(ctx context.Context, endpoint string, insecureSkipVerify bool, now time.Time) (CertStatus, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return CertStatus{}, err
	}
	if u.Scheme != "https" {
		return CertStatus{}, ErrNotTLS
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		// No explicit port in the URL; use the HTTPS default.
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: insecureSkipVerify, //nolint:gosec
		},
	}
	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		return CertStatus{}, err
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		return CertStatus{}, errors.New("security: no peer certificate")
	}

	leaf := peerCerts[0]
	return CertStatus{
		Endpoint: endpoint,
		Issuer:   leaf.Issuer.CommonName,
		NotAfter: leaf.NotAfter.UTC(),
		DaysLeft: leaf.NotAfter.Sub(now).Hours() / 24,
	}, nil
}
