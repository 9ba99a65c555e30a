package transport

import (
	"github.com/lustre-net/lnetgo/pkg/bufpool"
	"github.com/lustre-net/lnetgo/pkg/credit"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/message"
	"github.com/lustre-net/lnetgo/pkg/ni"
	"github.com/lustre-net/lnetgo/pkg/portal"
	"github.com/lustre-net/lnetgo/pkg/wire"
)

// handleRouted implements §4.3's routed pass-through: a received message
// is not addressed to any of our bound NIDs, so we land it in a
// router-buffer tier and forward it to the next hop, charging the
// upstream sender's peer-rtr-credit and a router-buffer-pool credit for
// the duration of the forward, released together once the outbound
// transmission completes.
func (e *Engine) handleRouted(local *ni.NI, partition int, hdr *wire.Header, priv any) error {
	tier, err := e.RouterBufs.SelectTier(int(hdr.PayloadLength))
	if err != nil {
		e.dropIncoming(local, hdr, portal.MatchResult{Outcome: portal.OutcomeDrop, Reason: portal.DropReasonOverflow}, int(hdr.PayloadLength))
		return err
	}

	upstream := e.PeerFor(hdr.SrcNID, local.NID, local, false)
	rtrPool := upstream.EnsureRtrCredits(local.PeerRtrCredits)

	fa := &forwardAttempt{
		e:         e,
		local:     local,
		partition: partition,
		hdr:       hdr,
		priv:      priv,
		rtrPool:   rtrPool,
		tier:      tier,
		msg:       message.New(hdr.Type),
	}
	fa.msg.SetRouting(true)
	fa.msg.RxPeer = hdr.SrcNID
	fa.acquireInbound()
	return nil
}

// forwardAttempt carries a routed message through its two acquisition
// stages (inbound: peer-rtr-credit + router-buffer-pool credit; outbound:
// peer-tx-credit + NI-tx-credit for the next hop) before handing off to
// the outbound driver.
type forwardAttempt struct {
	e     *Engine
	local *ni.NI
	hdr   *wire.Header
	priv  any

	rtrPool *credit.Pool
	tier    *bufpool.RouterTier
	buf     []byte

	targetNI *ni.NI
	nextHop  ids.NID
	peerPool *credit.Pool
	niPool   *credit.Pool

	msg *message.Message
}

func (fa *forwardAttempt) acquireInbound() {
	msg := fa.msg

	if !msg.Holds(message.HoldPeerRtr) {
		queued := fa.rtrPool.Acquire(resumeFunc(fa.acquireInbound))
		msg.HoldCredit(message.HoldPeerRtr, fa.rtrPool)
		if queued {
			return
		}
	}
	if !msg.Holds(message.HoldRtrBuffer) {
		buf, queued := fa.tier.Acquire(resumeFunc(fa.acquireInbound))
		fa.buf = buf
		msg.HoldCredit(message.HoldRtrBuffer, fa.tier.Credits)
		if queued {
			return
		}
	}

	fa.receiveAndForward()
}

func (fa *forwardAttempt) receiveAndForward() {
	msg := fa.msg
	msg.SetPayload(fa.buf, 0, fa.hdr.PayloadLength)
	if err := fa.local.Driver.Recv(fa.local, fa.priv, msg, false, 0, fa.hdr.PayloadLength, fa.hdr.PayloadLength); err != nil {
		fa.finish(err)
		return
	}

	targetNI, nextHop, _, err := fa.e.resolveDestination(fa.hdr.DestNID, ids.NIDAny)
	if err != nil {
		fa.finish(err)
		return
	}
	fa.targetNI = targetNI
	fa.nextHop = nextHop

	gwPeer := fa.e.PeerFor(nextHop, targetNI.NID, targetNI, false)
	fa.peerPool = gwPeer.TxCredits
	fa.niPool = targetNI.TxCredits(0)

	fa.acquireOutbound()
}

func (fa *forwardAttempt) acquireOutbound() {
	msg := fa.msg

	if !msg.Holds(message.HoldPeerTx) {
		queued := fa.peerPool.Acquire(resumeFunc(fa.acquireOutbound))
		msg.HoldCredit(message.HoldPeerTx, fa.peerPool)
		if queued {
			return
		}
	}
	if !msg.Holds(message.HoldNITx) {
		queued := fa.niPool.Acquire(resumeFunc(fa.acquireOutbound))
		msg.HoldCredit(message.HoldNITx, fa.niPool)
		if queued {
			return
		}
	}

	out := *fa.hdr
	out.SrcNID = fa.targetNI.NID
	out.SrcPID = fa.hdr.SrcPID
	msg.Header = out
	msg.TxPeer = fa.nextHop
	msg.SetPayload(fa.buf[:fa.hdr.PayloadLength], 0, fa.hdr.PayloadLength)

	err := fa.targetNI.Driver.Send(fa.targetNI, nil, msg)
	fa.finish(err)
}

func (fa *forwardAttempt) finish(err error) {
	e := fa.e
	if e.Metrics != nil {
		if err == nil {
			e.Metrics.RecordRoute(fa.local.Net, int(fa.hdr.PayloadLength))
		} else {
			e.Metrics.RecordDrop(fa.local.Net, "route_error", int(fa.hdr.PayloadLength))
		}
	}

	released := fa.msg.Finalize(err, func(error) (portal.Event, bool) { return portal.Event{}, false })
	fa.tier.PutBuf(fa.buf)

	for _, r := range released {
		resumeReleasedCredit(r)
	}
}
