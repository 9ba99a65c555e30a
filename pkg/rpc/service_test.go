package rpc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lustre-net/lnetgo/pkg/driver/loopback"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/ni"
	"github.com/lustre-net/lnetgo/pkg/rpc"
	"github.com/lustre-net/lnetgo/pkg/rpc/at"
	"github.com/lustre-net/lnetgo/pkg/rpcwire"
	"github.com/lustre-net/lnetgo/pkg/transport"
)

const (
	testReqPortal uint32 = 0
	testRepPortal uint32 = 1
)

type testNode struct {
	engine *transport.Engine
	ni     *ni.NI
}

func newTestNode(t *testing.T, net *loopback.Network, nid ids.NID) *testNode {
	t.Helper()
	e := transport.NewEngine(transport.Config{MaxPortals: 4, PeerTimeout: time.Minute}, nil)
	n := ni.New(nid, "lo0", loopback.NewDriver(net), 4, 2, 2, 1)
	e.RegisterNI(n)
	net.Register(e, n, loopback.DefaultConfig())
	return &testNode{engine: e, ni: n}
}

func serviceConfig(name string) rpc.Config {
	return rpc.Config{
		Name:       name,
		ReqPortal:  testReqPortal,
		RepPortal:  testRepPortal,
		NBufs:      4,
		MaxReqSize: 256,
		MaxRepSize: 256,
		ThreadsMin: 2,
		AT: at.Config{
			Min:         10 * time.Millisecond,
			Max:         time.Second,
			History:     time.Minute,
			EarlyMargin: 20 * time.Millisecond,
			Extra:       50 * time.Millisecond,
		},
	}
}

// echoHandler replies with the request body unchanged.
func echoHandler(req *rpc.Request) (*rpc.Reply, error) {
	return &rpc.Reply{Envelope: &rpcwire.Envelope{
		Segments: []rpcwire.Segment{{Type: 1, Data: req.Body()}},
	}}, nil
}

func TestService_SimpleRoundTrip(t *testing.T) {
	net := loopback.NewNetwork()
	serverNode := newTestNode(t, net, ids.NewNID(1, 1))
	clientNode := newTestNode(t, net, ids.NewNID(1, 2))
	defer net.Unregister(serverNode.ni.NID)
	defer net.Unregister(clientNode.ni.NID)

	svc := rpc.New(serverNode.engine, serviceConfig("echo"), echoHandler, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(context.Background())

	client := rpc.NewClient(clientNode.engine)
	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()

	reply, err := client.Call(callCtx, ids.ProcessID{NID: serverNode.ni.NID, PID: 7}, rpc.ClientConfig{
		ReqPortal:  testReqPortal,
		RepPortal:  testRepPortal,
		MaxRepSize: 256,
		LocalPID:   3,
	}, 42, []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, uint32(42), reply.Opcode)
}

func TestService_DifficultReply_TracksUntilAck(t *testing.T) {
	net := loopback.NewNetwork()
	serverNode := newTestNode(t, net, ids.NewNID(1, 1))
	clientNode := newTestNode(t, net, ids.NewNID(1, 2))
	defer net.Unregister(serverNode.ni.NID)
	defer net.Unregister(clientNode.ni.NID)

	handler := func(req *rpc.Request) (*rpc.Reply, error) {
		return &rpc.Reply{Difficult: true, Envelope: &rpcwire.Envelope{}}, nil
	}

	svc := rpc.New(serverNode.engine, serviceConfig("difficult"), handler, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(context.Background())

	client := rpc.NewClient(clientNode.engine)
	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()

	_, err := client.Call(callCtx, ids.ProcessID{NID: serverNode.ni.NID, PID: 7}, rpc.ClientConfig{
		ReqPortal:  testReqPortal,
		RepPortal:  testRepPortal,
		MaxRepSize: 256,
		LocalPID:   3,
	}, 99, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return svc.ActiveReplyCount() == 0
	}, time.Second, 10*time.Millisecond, "difficult reply should be released once its ACK lands")
}

func TestService_PingIsHighPriority(t *testing.T) {
	net := loopback.NewNetwork()
	serverNode := newTestNode(t, net, ids.NewNID(1, 1))
	clientNode := newTestNode(t, net, ids.NewNID(1, 2))
	defer net.Unregister(serverNode.ni.NID)
	defer net.Unregister(clientNode.ni.NID)

	seen := make(chan bool, 1)
	handler := func(req *rpc.Request) (*rpc.Reply, error) {
		seen <- req.HP()
		return &rpc.Reply{Envelope: &rpcwire.Envelope{}}, nil
	}

	svc := rpc.New(serverNode.engine, serviceConfig("ping"), handler, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(context.Background())

	client := rpc.NewClient(clientNode.engine)
	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()

	_, err := client.Call(callCtx, ids.ProcessID{NID: serverNode.ni.NID, PID: 7}, rpc.ClientConfig{
		ReqPortal:  testReqPortal,
		RepPortal:  testRepPortal,
		MaxRepSize: 256,
		LocalPID:   3,
	}, rpc.PingOpcode, nil)
	require.NoError(t, err)

	select {
	case hp := <-seen:
		require.True(t, hp, "ping opcode must be scheduled on the HP queue")
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}

func TestService_EarlyReply_ExtendsClientWait(t *testing.T) {
	net := loopback.NewNetwork()
	serverNode := newTestNode(t, net, ids.NewNID(1, 1))
	clientNode := newTestNode(t, net, ids.NewNID(1, 2))
	defer net.Unregister(serverNode.ni.NID)
	defer net.Unregister(clientNode.ni.NID)

	release := make(chan struct{})
	handler := func(req *rpc.Request) (*rpc.Reply, error) {
		<-release
		return &rpc.Reply{Envelope: &rpcwire.Envelope{}}, nil
	}

	cfg := serviceConfig("slow")
	cfg.AT.EarlyMargin = 30 * time.Millisecond
	cfg.AT.Extra = 500 * time.Millisecond
	cfg.AT.Min = 40 * time.Millisecond
	cfg.AT.Max = time.Second

	svc := rpc.New(serverNode.engine, cfg, handler, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(context.Background())

	client := rpc.NewClient(clientNode.engine)
	callCtx, callCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer callCancel()

	done := make(chan error, 1)
	go func() {
		_, err := client.Call(callCtx, ids.ProcessID{NID: serverNode.ni.NID, PID: 7}, rpc.ClientConfig{
			ReqPortal:  testReqPortal,
			RepPortal:  testRepPortal,
			MaxRepSize: 256,
			LocalPID:   3,
			ATSupport:  true,
		}, 1234, nil)
		done <- err
	}()

	// The handler stays blocked across several of the service's AT
	// timer ticks, so at least one early reply is produced and must be
	// transparently absorbed by the client before the final reply
	// arrives on the same (infinite-threshold) reply MD.
	time.Sleep(500 * time.Millisecond)
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("call never completed")
	}
}
