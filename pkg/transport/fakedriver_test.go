package transport

import (
	"sync"

	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/ni"
)

// fakeDriver is a minimal ni.Driver stub that records every call it
// receives so tests can assert on send/recv traffic without a real
// link.
type fakeDriver struct {
	mu sync.Mutex

	sent []sentMsg
	recv []recvMsg

	sendErr error
}

type sentMsg struct {
	payload []byte
}

type recvMsg struct {
	delayed    bool
	offset     uint32
	mlen, rlen uint32
}

func (d *fakeDriver) Send(n *ni.NI, priv any, msg ni.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentMsg{payload: append([]byte(nil), msg.Payload()...)})
	return d.sendErr
}

func (d *fakeDriver) Recv(n *ni.NI, priv any, msg ni.Message, delayed bool, offset, mlen, rlen uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recv = append(d.recv, recvMsg{delayed: delayed, offset: offset, mlen: mlen, rlen: rlen})
	return nil
}

func (d *fakeDriver) EagerRecv(n *ni.NI, priv any, msg ni.Message) (any, error) {
	return nil, nil
}

func (d *fakeDriver) Query(n *ni.NI, nid ids.NID) (int64, error) {
	return 0, nil
}

func (d *fakeDriver) sentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func (d *fakeDriver) lastSent() sentMsg {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[len(d.sent)-1]
}
