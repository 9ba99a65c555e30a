// Package ni defines the link-driver contract (§6.1) and the
// Network-Interface object that binds a NID to a concrete driver,
// owning a per-CPU-partition transmit credit pool.
package ni

import (
	"github.com/lustre-net/lnetgo/pkg/credit"
	"github.com/lustre-net/lnetgo/pkg/ids"
)

// Message is the minimal view of an in-flight message a driver needs
// to service send/recv/eager_recv. The transport core supplies the
// concrete implementation (pkg/message.Message satisfies this).
type Message interface {
	Payload() []byte
	SetPayload(buf []byte, offset, length uint32)
}

// Driver is the capability set a link driver registers for an NI
// (§6.1). All methods may suspend; none are ever called while the
// transport core holds a lock.
type Driver interface {
	// Send consumes the message payload and transmits it. The message
	// has already been fully committed (credits held).
	Send(ni *NI, priv any, msg Message) error

	// Recv delivers mlen bytes into msg at the given offset, then
	// finalizes. If msg is nil the payload is rlen bytes to discard.
	Recv(ni *NI, priv any, msg Message, delayed bool, offset, mlen, rlen uint32) error

	// EagerRecv commits to receiving into an as-yet-unmatched buffer;
	// used for the delayed/lazy path and for routed recv without
	// initial credits. Returns driver-private context for the eager
	// buffer.
	EagerRecv(ni *NI, priv any, msg Message) (privOut any, err error)

	// Query is a best-effort peer liveness probe.
	Query(ni *NI, nid ids.NID) (lastAlive int64, err error)
}

// NI binds a NID to a driver and owns one transmit credit pool per CPU
// partition.
type NI struct {
	NID    ids.NID
	Net    string // network name, e.g. "tcp0", "o2ib1"
	Driver Driver

	PeerTxCredits  int // allowance handed to newly discovered peers on this NI
	PeerRtrCredits int

	partitionPools []*credit.Pool
}

// New constructs an NI with a per-partition tx-credit pool seeded from
// txCredits.
func New(nid ids.NID, net string, driver Driver, txCredits, peerTxCredits, peerRtrCredits int, cptCount int) *NI {
	pools := make([]*credit.Pool, cptCount)
	for i := range pools {
		pools[i] = credit.New("ni-tx", txCredits)
	}
	return &NI{
		NID:            nid,
		Net:            net,
		Driver:         driver,
		PeerTxCredits:  peerTxCredits,
		PeerRtrCredits: peerRtrCredits,
		partitionPools: pools,
	}
}

// TxCredits returns the transmit credit pool for the given CPU
// partition.
func (n *NI) TxCredits(partition int) *credit.Pool {
	return n.partitionPools[partition%len(n.partitionPools)]
}

// SameNID reports whether nid addresses this interface directly.
func (n *NI) SameNID(nid ids.NID) bool { return n.NID == nid }
