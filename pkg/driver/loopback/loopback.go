// Package loopback implements an in-process link driver satisfying
// pkg/ni's Driver contract (§6.1): the only concrete driver this repo
// ships, used to exercise the transport core end to end without a real
// network, the same way the teacher keeps an in-memory block store
// next to its S3-backed one.
//
// Every NID registered on the same Network is directly reachable from
// every other, including itself (self-NID addressing, the common
// loopback case). Send queues the frame on the destination's inbox and
// returns immediately; one worker goroutine per registered node drains
// its inbox and hands the frame to the owning engine, so a send
// completes asynchronously from the remote side's processing just as a
// real link's would.
package loopback

import (
	"sync"

	"github.com/lustre-net/lnetgo/internal/logger"
	"github.com/lustre-net/lnetgo/pkg/ferrors"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/message"
	"github.com/lustre-net/lnetgo/pkg/ni"
	"github.com/lustre-net/lnetgo/pkg/wire"
)

// Engine is the minimal surface a node's transport engine exposes to a
// driver. pkg/transport.Engine satisfies this without either package
// importing the other.
type Engine interface {
	HandleIncoming(local *ni.NI, partition int, hdr *wire.Header, priv any) error
}

// Config tunes a single node's registration on a Network.
type Config struct {
	QueueDepth int // frames that may be in flight toward this node at once
	Partition  int // CPU partition HandleIncoming is told this NI's traffic arrived on
}

// DefaultConfig returns the configuration Register falls back to for
// any zero-valued field.
func DefaultConfig() Config {
	return Config{QueueDepth: 64}
}

type frame struct {
	hdr     wire.Header
	payload []byte
}

type node struct {
	engine    Engine
	ni        *ni.NI
	partition int
	inbox     chan frame
	stop      chan struct{}
	wg        sync.WaitGroup
}

func (nd *node) run() {
	defer nd.wg.Done()
	for {
		select {
		case f := <-nd.inbox:
			hdr := f.hdr
			if err := nd.engine.HandleIncoming(nd.ni, nd.partition, &hdr, f.payload); err != nil {
				logger.Debugf("loopback: %s dropped inbound %s from %s: %v", nd.ni.NID, hdr.Type, hdr.SrcNID, err)
			}
		case <-nd.stop:
			return
		}
	}
}

// Network is a fully-meshed set of loopback nodes: every NID registered
// on it can address every other (and itself) through a Driver bound to
// this Network.
type Network struct {
	mu    sync.RWMutex
	nodes map[ids.NID]*node
}

// NewNetwork returns an empty loopback network.
func NewNetwork() *Network {
	return &Network{nodes: make(map[ids.NID]*node)}
}

// Register binds engine/n to the network under n's NID and starts its
// delivery worker. Call once per NI, after the NI has been constructed
// and registered with its owning transport.Engine.
func (net *Network) Register(engine Engine, n *ni.NI, cfg Config) {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultConfig().QueueDepth
	}
	nd := &node{
		engine:    engine,
		ni:        n,
		partition: cfg.Partition,
		inbox:     make(chan frame, cfg.QueueDepth),
		stop:      make(chan struct{}),
	}

	net.mu.Lock()
	net.nodes[n.NID] = nd
	net.mu.Unlock()

	nd.wg.Add(1)
	go nd.run()
}

// Unregister stops nid's delivery worker and removes it from the
// network. Safe to call on a NID that was never registered.
func (net *Network) Unregister(nid ids.NID) {
	net.mu.Lock()
	nd, ok := net.nodes[nid]
	if ok {
		delete(net.nodes, nid)
	}
	net.mu.Unlock()

	if ok {
		close(nd.stop)
		nd.wg.Wait()
	}
}

// Driver is the ni.Driver bound to a Network. Every NI sharing a
// Network can reach every other through any Driver bound to it; a
// Driver carries no per-NI state of its own.
type Driver struct {
	net *Network
}

// NewDriver returns a Driver backed by net.
func NewDriver(net *Network) *Driver {
	return &Driver{net: net}
}

// Send implements ni.Driver.Send (§6.1). It round-trips the header
// through pkg/wire's codec exactly as a real link would, then queues
// the frame on the physical next hop's inbox. The next hop is
// msg.TxPeer — the NID the transport core actually charged peer-tx
// credit against and handed the driver for this send — not the
// header's destination, which stays the original caller's target
// across every hop of a routed forward.
func (d *Driver) Send(n *ni.NI, priv any, msg ni.Message) error {
	m, ok := msg.(*message.Message)
	if !ok {
		return ferrors.NewInvalidArgument("loopback driver requires a *message.Message")
	}

	buf, err := m.Header.Encode()
	if err != nil {
		return err
	}
	hdr, err := wire.Decode(buf)
	if err != nil {
		return err
	}

	dest := m.TxPeer
	if dest == ids.NIDAny {
		dest = hdr.DestNID
	}

	d.net.mu.RLock()
	nd, ok := d.net.nodes[dest]
	d.net.mu.RUnlock()
	if !ok {
		return ferrors.NewUnreachable(dest.String())
	}

	payload := append([]byte(nil), msg.Payload()...)
	select {
	case nd.inbox <- frame{hdr: *hdr, payload: payload}:
		return nil
	default:
		return ferrors.NewResourceExhausted("loopback: destination inbox full")
	}
}

// Recv implements ni.Driver.Recv. priv is the raw payload bytes the
// frame arrived with, as handed to Engine.HandleIncoming; Recv copies
// mlen of them into msg's already-offset payload view. An MD with no
// backing buffer (portal.MD.Buffer left nil, for callers managing their
// own iov outside the engine) has nothing for loopback to copy into and
// is left untouched.
func (d *Driver) Recv(n *ni.NI, priv any, msg ni.Message, delayed bool, offset, mlen, rlen uint32) error {
	if msg == nil || mlen == 0 {
		return nil
	}
	payload, ok := priv.([]byte)
	if !ok {
		return nil
	}
	dst := msg.Payload()
	if len(dst) == 0 {
		return nil
	}
	if n := copy(dst, payload); n < int(mlen) {
		return ferrors.NewProtocolError("loopback: short payload for commit")
	}
	return nil
}

// EagerRecv has nothing to stage: a loopback frame already carries its
// full payload by the time HandleIncoming runs, so there is no
// separate wire buffer to hold bytes in ahead of a matching ME post.
func (d *Driver) EagerRecv(n *ni.NI, priv any, msg ni.Message) (any, error) {
	return nil, nil
}

// Query always reports the peer alive: a loopback Network has no
// connectivity to lose short of the process exiting.
func (d *Driver) Query(n *ni.NI, nid ids.NID) (int64, error) {
	return 0, nil
}
