package controlapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/peer"
	"github.com/lustre-net/lnetgo/pkg/portal"
	"github.com/lustre-net/lnetgo/pkg/router"
	"github.com/lustre-net/lnetgo/pkg/rpc"
)

// defaultGatewayTxCredits and defaultGatewayRtrCredits seed a newly
// discovered gateway peer added through add_route; a peer created by
// actual traffic instead inherits its bound NI's configured credits
// (see Engine.PeerFor).
const (
	defaultGatewayTxCredits  = 8
	defaultGatewayRtrCredits = 16
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct{ rt *Runtime }

func NewHealthHandler(rt *Runtime) *HealthHandler { return &HealthHandler{rt: rt} }

// Liveness always reports healthy once the process is serving HTTP.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(nil))
}

// Readiness reports unhealthy if any service's oldest queued request
// has waited past its health bound (§4.6 "Health").
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	unhealthy := make(map[string]bool)
	for name, svc := range h.rt.Services {
		if !svc.Health(h.rt.PeerTimeout) {
			unhealthy[name] = true
		}
	}
	if len(unhealthy) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(unhealthy))
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"uptime_seconds": h.rt.Uptime().Seconds(),
		"services":       len(h.rt.Services),
	}))
}

// RouteHandler implements add_route/del_route and route listing
// (§6.5).
type RouteHandler struct{ rt *Runtime }

func NewRouteHandler(rt *Runtime) *RouteHandler { return &RouteHandler{rt: rt} }

type routeRequest struct {
	RemoteNet  uint32 `json:"remote_net"`
	GatewayNID uint64 `json:"gateway_nid"`
	Hops       int    `json:"hops"`
}

type routeResponse struct {
	RemoteNet  uint32 `json:"remote_net"`
	GatewayNID string `json:"gateway_nid"`
	Hops       int    `json:"hops"`
	Alive      bool   `json:"alive"`
}

// List returns every configured route.
func (h *RouteHandler) List(w http.ResponseWriter, r *http.Request) {
	infos := h.rt.Engine.Routes.Snapshot(time.Now(), h.rt.PeerTimeout)
	out := make([]routeResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, routeResponse{
			RemoteNet:  uint32(info.Net),
			GatewayNID: info.GatewayNID.String(),
			Hops:       info.Hops,
			Alive:      info.Alive,
		})
	}
	WriteJSONOK(w, out)
}

// Add implements add_route(remote_net, gateway_nid, hops).
func (h *RouteHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed request body: "+err.Error())
		return
	}
	gwNID := ids.NID(req.GatewayNID)
	gw := h.rt.Engine.Peers.GetOrCreate(gwNID, func() *peer.Peer {
		return peer.New(gwNID, ids.NIDAny, defaultGatewayTxCredits, true, defaultGatewayRtrCredits)
	})
	h.rt.Engine.Routes.AddRoute(router.Net(req.RemoteNet), gw, req.Hops)
	WriteJSONOK(w, routeResponse{RemoteNet: req.RemoteNet, GatewayNID: gwNID.String(), Hops: req.Hops})
}

// Delete implements del_route(remote_net, gateway_nid).
func (h *RouteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed request body: "+err.Error())
		return
	}
	gwNID := ids.NID(req.GatewayNID)
	gw, ok := h.rt.Engine.Peers.Get(gwNID)
	if !ok {
		NotFound(w, "no peer known for gateway_nid")
		return
	}
	if !h.rt.Engine.Routes.DelRoute(router.Net(req.RemoteNet), gw) {
		NotFound(w, "no such route")
		return
	}
	WriteNoContent(w)
}

// PortalHandler implements set_portal_lazy/clear_portal_lazy and
// portal listing (§6.5).
type PortalHandler struct{ rt *Runtime }

func NewPortalHandler(rt *Runtime) *PortalHandler { return &PortalHandler{rt: rt} }

type portalResponse struct {
	Index uint32 `json:"index"`
	Lazy  bool   `json:"lazy"`
}

// List reports the lazy state of every portal index in range.
func (h *PortalHandler) List(w http.ResponseWriter, r *http.Request) {
	out := make([]portalResponse, 0, h.rt.MaxPortals)
	for i := uint32(0); i < h.rt.MaxPortals; i++ {
		p, err := h.rt.Engine.Portals.Portal(i)
		if err != nil {
			continue
		}
		out = append(out, portalResponse{Index: i, Lazy: p.Lazy()})
	}
	WriteJSONOK(w, out)
}

func (h *PortalHandler) portalFromPath(w http.ResponseWriter, r *http.Request) (*portalIndexed, bool) {
	idx, err := strconv.ParseUint(chi.URLParam(r, "idx"), 10, 32)
	if err != nil {
		BadRequest(w, "invalid portal index")
		return nil, false
	}
	p, perr := h.rt.Engine.Portals.Portal(uint32(idx))
	if perr != nil {
		NotFound(w, "no such portal")
		return nil, false
	}
	return &portalIndexed{index: uint32(idx), portal: p}, true
}

// SetLazy implements set_portal_lazy(portal).
func (h *PortalHandler) SetLazy(w http.ResponseWriter, r *http.Request) {
	pi, ok := h.portalFromPath(w, r)
	if !ok {
		return
	}
	pi.portal.SetLazy(true, nil)
	WriteJSONOK(w, portalResponse{Index: pi.index, Lazy: true})
}

// ClearLazy implements clear_portal_lazy(portal): clearing drops every
// currently delayed message.
func (h *PortalHandler) ClearLazy(w http.ResponseWriter, r *http.Request) {
	pi, ok := h.portalFromPath(w, r)
	if !ok {
		return
	}
	pi.portal.SetLazy(false, nil)
	WriteJSONOK(w, portalResponse{Index: pi.index, Lazy: false})
}

type portalIndexed struct {
	index  uint32
	portal *portal.Portal
}

// FaultHandler implements fail_nid(nid, threshold), test-only
// synthetic loss injection (§6.5).
type FaultHandler struct{ rt *Runtime }

func NewFaultHandler(rt *Runtime) *FaultHandler { return &FaultHandler{rt: rt} }

type faultRequest struct {
	NID       uint64 `json:"nid"`
	Threshold uint64 `json:"threshold"`
}

// Fail arms fail_nid.
func (h *FaultHandler) Fail(w http.ResponseWriter, r *http.Request) {
	var req faultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "malformed request body: "+err.Error())
		return
	}
	h.rt.Engine.Faults.Fail(ids.NID(req.NID), req.Threshold)
	WriteNoContent(w)
}

// Clear disarms any injection for the path NID.
func (h *FaultHandler) Clear(w http.ResponseWriter, r *http.Request) {
	raw, err := strconv.ParseUint(chi.URLParam(r, "nid"), 0, 64)
	if err != nil {
		BadRequest(w, "invalid nid")
		return
	}
	h.rt.Engine.Faults.Clear(ids.NID(raw))
	WriteNoContent(w)
}

// List reports every currently armed injection and its remaining
// drop budget.
func (h *FaultHandler) List(w http.ResponseWriter, r *http.Request) {
	active := h.rt.Engine.Faults.Active()
	out := make(map[string]uint64, len(active))
	for nid, remaining := range active {
		out[nid.String()] = remaining
	}
	WriteJSONOK(w, out)
}

// StatsHandler exposes per-service stats (§7).
type StatsHandler struct{ rt *Runtime }

func NewStatsHandler(rt *Runtime) *StatsHandler { return &StatsHandler{rt: rt} }

type serviceStatsResponse struct {
	Name            string  `json:"name"`
	MsgsAlloc       int     `json:"msgs_alloc"`
	MsgsMax         int     `json:"msgs_max"`
	ReqReceived     uint64  `json:"req_received"`
	RepSent         uint64  `json:"rep_sent"`
	DropCount       uint64  `json:"drop_count"`
	ActiveReplies   int     `json:"active_replies"`
	ATEstimateMSecs float64 `json:"at_estimate_msecs"`
}

// List returns every running service's stats snapshot.
func (h *StatsHandler) List(w http.ResponseWriter, r *http.Request) {
	out := make([]serviceStatsResponse, 0, len(h.rt.Services))
	for name, svc := range h.rt.Services {
		out = append(out, serviceResponseFor(name, svc))
	}
	WriteJSONOK(w, out)
}

// Get returns one named service's stats.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	svc, ok := h.rt.Services[name]
	if !ok {
		NotFound(w, "no such service")
		return
	}
	WriteJSONOK(w, serviceResponseFor(name, svc))
}

func serviceResponseFor(name string, svc *rpc.Service) serviceStatsResponse {
	stats := svc.StatsSnapshot()
	return serviceStatsResponse{
		Name:            name,
		MsgsAlloc:       stats.MsgsAlloc,
		MsgsMax:         stats.MsgsMax,
		ReqReceived:     stats.ReqReceived,
		RepSent:         stats.RepSent,
		DropCount:       stats.Dropped,
		ActiveReplies:   svc.ActiveReplyCount(),
		ATEstimateMSecs: float64(svc.Estimator().Estimate().Milliseconds()),
	}
}
