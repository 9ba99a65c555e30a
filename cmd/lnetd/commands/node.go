package commands

import (
	"fmt"

	"github.com/lustre-net/lnetgo/pkg/config"
	"github.com/lustre-net/lnetgo/pkg/driver/loopback"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/metrics"
	"github.com/lustre-net/lnetgo/pkg/ni"
	"github.com/lustre-net/lnetgo/pkg/rpc"
	rpcat "github.com/lustre-net/lnetgo/pkg/rpc/at"
	"github.com/lustre-net/lnetgo/pkg/rpcwire"
	"github.com/lustre-net/lnetgo/pkg/transport"
)

// Node is a fully wired fabric node: a transport.Engine, every NI it
// binds, and every RPC service it runs. This is the "only concrete
// driver this repo ships" wiring (§1, §6.1): every NI attaches to a
// shared in-process loopback.Network, so a single lnetd process can
// exercise the full matching/credit/routing/RPC stack across several
// named NIs without a real link.
type Node struct {
	Engine   *transport.Engine
	Network  *loopback.Network
	NIs      map[string]*ni.NI
	Services map[string]*rpc.Service
}

// buildNode constructs a Node from cfg's fabric section: one NI per
// configured network_interfaces entry, bound to a fresh loopback
// network, plus one rpc.Service per configured services entry.
func buildNode(cfg *config.FabricConfig, m metrics.FabricMetrics) (*Node, error) {
	engine := transport.NewEngine(transport.Config{
		MaxPortals:           cfg.MaxPortals,
		MaxCPTPartitions:     cfg.MaxCPTPartitions,
		PeerTimeout:          cfg.PeerTimeout,
		LocalNIDDistZero:     cfg.LocalNIDDistZero,
		RouterBufferPages:    cfg.RouterBufferTiers,
		RouterBuffersPerTier: 64,
	}, m)

	net := loopback.NewNetwork()
	driver := loopback.NewDriver(net)

	nis := make(map[string]*ni.NI, len(cfg.NetworkInterfaces))
	for name, niCfg := range cfg.NetworkInterfaces {
		nid, err := resolveNID(name, niCfg, cfg.NodeAddr)
		if err != nil {
			return nil, fmt.Errorf("network_interfaces[%s]: %w", name, err)
		}
		n := ni.New(nid, name, driver, niCfg.TxCredits, niCfg.PeerTxCredits, niCfg.PeerRtrCredits, int(cfg.MaxCPTPartitions))
		engine.RegisterNI(n)
		net.Register(engine, n, loopback.DefaultConfig())
		nis[name] = n
	}

	services := make(map[string]*rpc.Service, len(cfg.Services))
	for name, svcCfg := range cfg.Services {
		svc := rpc.New(engine, rpc.Config{
			Name:           name,
			ReqPortal:      svcCfg.ReqPortal,
			RepPortal:      svcCfg.RepPortal,
			NBufs:          svcCfg.NBufs,
			BufSize:        svcCfg.BufSize,
			MaxReqSize:     svcCfg.MaxReqSize,
			MaxRepSize:     svcCfg.MaxRepSize,
			ThreadsMin:     svcCfg.ThreadsMin,
			ThreadsMax:     svcCfg.ThreadsMax,
			HPRatio:        svcCfg.HPRatio,
			WatchdogFactor: svcCfg.WatchdogFactor,
			AT: rpcat.Config{
				Min:         cfg.AT.Min,
				Max:         cfg.AT.Max,
				History:     cfg.AT.History,
				EarlyMargin: cfg.AT.EarlyMargin,
				Extra:       cfg.AT.Extra,
			},
		}, echoHandler, nil, m)
		services[name] = svc
	}

	return &Node{Engine: engine, Network: net, NIs: nis, Services: services}, nil
}

// resolveNID returns niCfg's explicit NID if set, otherwise one derived
// from the interface name and the node's configured address component.
func resolveNID(name string, niCfg config.NIConfig, nodeAddr uint32) (ids.NID, error) {
	if niCfg.NID != "" {
		return ids.ParseNID(niCfg.NID)
	}
	return ids.NIDFromInterfaceName(name, nodeAddr)
}

// echoHandler is lnetd's built-in service handler: it echoes the
// request body back as the reply. Real request dispatch belongs to the
// filesystem layer above this fabric (§1 "higher-level filesystem
// semantics" is out of scope), so this is the same role the teacher's
// in-memory store plays next to its real backends: a working default
// that exercises the full service path end to end.
func echoHandler(req *rpc.Request) (*rpc.Reply, error) {
	return &rpc.Reply{Envelope: &rpcwire.Envelope{
		Segments: []rpcwire.Segment{{Type: 1, Data: req.Body()}},
	}}, nil
}
