package lnetclient

import "time"

// HealthResponse mirrors the control API's health/readiness envelope.
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Liveness queries /health.
func (c *Client) Liveness() (*HealthResponse, error) {
	var h HealthResponse
	if err := c.get("/health/", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Readiness queries /health/ready. A 503 response still decodes into
// h (unhealthy services listed under Data) rather than surfacing as
// an error, since the body is a Response envelope either way.
func (c *Client) Readiness() (*HealthResponse, error) {
	var h HealthResponse
	if err := c.getAny("/health/ready", &h); err != nil {
		return nil, err
	}
	return &h, nil
}
