// Package security inspects the TLS certificate of https metric endpoints.
// The scraper turns the days left before expiry into a gauge series so that a
// regular threshold check can alert on expiring certificates.
package security
