package api

import (
	"github.com/obsidianstack/sentinel/agent/internal/alerts"
	"github.com/obsidianstack/sentinel/agent/internal/check"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status      string `json:"status"`
	Application string `json:"application"`
	Checks      int    `json:"checks"`
	Incidents   int    `json:"incidents"`
	Schedule    string `json:"schedule,omitempty"`
}

// CheckResponse is one entry of GET /api/v1/checks.
type CheckResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Application string            `json:"application"`
	Target      string            `json:"target"`
	Category    string            `json:"category"`
	Field       string            `json:"field"`
	Active      bool              `json:"active"`
	AlertAfter  int               `json:"alert_after_failures"`
	Warn        []check.Threshold `json:"warn,omitempty"`
	Error       []check.Threshold `json:"error,omitempty"`
	Critical    []check.Threshold `json:"critical,omitempty"`
}

// AlertersResponse is the payload for GET /api/v1/alerters.
type AlertersResponse struct {
	Available []string      `json:"available"`
	All       []alerts.Info `json:"all"`
}

// AcknowledgeRequest is the body of PUT /api/v1/incidents/{checkID}.
type AcknowledgeRequest struct {
	// Version must equal the stored incident version.
	Version     uint64 `json:"version"`
	Description string `json:"description"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toCheckResponse(c check.Check) CheckResponse {
	target := ""
	if c.Target != nil {
		target = c.Target.String()
	}
	return CheckResponse{
		ID:          c.ID,
		Name:        c.Name,
		Application: c.Application,
		Target:      target,
		Category:    string(c.Category),
		Field:       c.Field,
		Active:      c.Active,
		AlertAfter:  c.AlertThreshold(),
		Warn:        c.Warn,
		Error:       c.Error,
		Critical:    c.Critical,
	}
}
