package lnetclient

import "fmt"

// ServiceStats mirrors the control API's per-service stats snapshot.
type ServiceStats struct {
	Name            string  `json:"name"`
	MsgsAlloc       int     `json:"msgs_alloc"`
	MsgsMax         int     `json:"msgs_max"`
	ReqReceived     uint64  `json:"req_received"`
	RepSent         uint64  `json:"rep_sent"`
	DropCount       uint64  `json:"drop_count"`
	ActiveReplies   int     `json:"active_replies"`
	ATEstimateMSecs float64 `json:"at_estimate_msecs"`
}

// ListStats returns every running service's stats snapshot.
func (c *Client) ListStats() ([]ServiceStats, error) {
	var stats []ServiceStats
	if err := c.get("/api/v1/stats", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// GetStats returns one named service's stats.
func (c *Client) GetStats(name string) (*ServiceStats, error) {
	var stats ServiceStats
	if err := c.get(fmt.Sprintf("/api/v1/stats/%s", name), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
