package lnetclient

import "fmt"

// Portal mirrors the control API's portal listing response.
type Portal struct {
	Index uint32 `json:"index"`
	Lazy  bool   `json:"lazy"`
}

// ListPortals reports the lazy state of every portal index in range.
func (c *Client) ListPortals() ([]Portal, error) {
	var portals []Portal
	if err := c.get("/api/v1/portals", &portals); err != nil {
		return nil, err
	}
	return portals, nil
}

// SetPortalLazy implements set_portal_lazy(portal).
func (c *Client) SetPortalLazy(index uint32) (*Portal, error) {
	var portal Portal
	if err := c.post(fmt.Sprintf("/api/v1/portals/%d/lazy", index), nil, &portal); err != nil {
		return nil, err
	}
	return &portal, nil
}

// ClearPortalLazy implements clear_portal_lazy(portal).
func (c *Client) ClearPortalLazy(index uint32) (*Portal, error) {
	var portal Portal
	if err := c.delete(fmt.Sprintf("/api/v1/portals/%d/lazy", index), nil, &portal); err != nil {
		return nil, err
	}
	return &portal, nil
}
