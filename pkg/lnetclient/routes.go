package lnetclient

// Route mirrors the control API's route listing response.
type Route struct {
	RemoteNet  uint32 `json:"remote_net"`
	GatewayNID string `json:"gateway_nid"`
	Hops       int    `json:"hops"`
	Alive      bool   `json:"alive"`
}

// AddRouteRequest is add_route's request body.
type AddRouteRequest struct {
	RemoteNet  uint32 `json:"remote_net"`
	GatewayNID uint64 `json:"gateway_nid"`
	Hops       int    `json:"hops"`
}

// ListRoutes returns every configured route.
func (c *Client) ListRoutes() ([]Route, error) {
	var routes []Route
	if err := c.get("/api/v1/routes", &routes); err != nil {
		return nil, err
	}
	return routes, nil
}

// AddRoute implements add_route(remote_net, gateway_nid, hops).
func (c *Client) AddRoute(req AddRouteRequest) (*Route, error) {
	var route Route
	if err := c.post("/api/v1/routes", req, &route); err != nil {
		return nil, err
	}
	return &route, nil
}

// DelRoute implements del_route(remote_net, gateway_nid).
func (c *Client) DelRoute(remoteNet uint32, gatewayNID uint64) error {
	req := AddRouteRequest{RemoteNet: remoteNet, GatewayNID: gatewayNID}
	return c.delete("/api/v1/routes", req, nil)
}
