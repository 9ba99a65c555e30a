package lnetclient

import "fmt"

// FailNIDRequest is fail_nid's request body.
type FailNIDRequest struct {
	NID       uint64 `json:"nid"`
	Threshold uint64 `json:"threshold"`
}

// FailNID arms synthetic loss injection for a peer NID.
func (c *Client) FailNID(req FailNIDRequest) error {
	return c.post("/api/v1/faults", req, nil)
}

// ClearFault disarms any injection for nid.
func (c *Client) ClearFault(nid uint64) error {
	return c.delete(fmt.Sprintf("/api/v1/faults/%d", nid), nil, nil)
}

// ListFaults reports every currently armed injection and its
// remaining drop budget, keyed by NID string.
func (c *Client) ListFaults() (map[string]uint64, error) {
	var out map[string]uint64
	if err := c.get("/api/v1/faults", &out); err != nil {
		return nil, err
	}
	return out, nil
}
