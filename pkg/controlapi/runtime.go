package controlapi

import (
	"time"

	"github.com/lustre-net/lnetgo/pkg/rpc"
	"github.com/lustre-net/lnetgo/pkg/transport"
)

// Runtime is the set of live fabric objects the control surface reads
// and mutates: the node's transport engine plus every RPC service
// running on it, keyed by name (§4.6 services are named; §6.5 control
// operations act on the engine's routing table, portals and fault
// injector directly).
type Runtime struct {
	Engine      *transport.Engine
	Services    map[string]*rpc.Service
	PeerTimeout time.Duration
	MaxPortals  uint32

	started time.Time
}

// NewRuntime binds a control surface to engine and its running
// services.
func NewRuntime(engine *transport.Engine, services map[string]*rpc.Service, peerTimeout time.Duration, maxPortals uint32) *Runtime {
	return &Runtime{
		Engine:      engine,
		Services:    services,
		PeerTimeout: peerTimeout,
		MaxPortals:  maxPortals,
		started:     time.Now(),
	}
}

// Uptime reports how long this runtime has been serving requests.
func (rt *Runtime) Uptime() time.Duration {
	return time.Since(rt.started)
}
