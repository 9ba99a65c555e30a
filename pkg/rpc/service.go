// Package rpc implements the request/reply service layer (§4.6, "C3"):
// a ring of posted request buffers (rqbds) feeding a cooperative pool
// of service threads that dequeue, dispatch through a caller-supplied
// HandlerFunc, and send the reply, with adaptive-timeout-driven early
// replies and a high-priority queue for latency-sensitive requests
// such as pings.
//
// The worker-pool shape (bounded channel, N workers, wg, stop/stopped
// channels) follows the teacher's pkg/payload/transfer/queue.go;
// requests are dispatched through pkg/transport's existing exported
// Send path rather than any RPC-specific wire plumbing, so a service
// is just another PUT/GET client of the fabric from transport's point
// of view.
package rpc

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lustre-net/lnetgo/internal/logger"
	"github.com/lustre-net/lnetgo/pkg/bufpool"
	"github.com/lustre-net/lnetgo/pkg/ferrors"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/metrics"
	"github.com/lustre-net/lnetgo/pkg/portal"
	rpcat "github.com/lustre-net/lnetgo/pkg/rpc/at"
	"github.com/lustre-net/lnetgo/pkg/rpcwire"
	"github.com/lustre-net/lnetgo/pkg/transport"
	"github.com/lustre-net/lnetgo/pkg/wire"
)

// DefaultHPRatio is HPREQ_RATIO from §4.6: up to this many HP requests
// are drained before one normal request is taken, unless one queue is
// empty.
const DefaultHPRatio = 10

// Config is the tuning surface for one service, mirroring
// config.ServiceConfig.
type Config struct {
	Name       string
	ReqPortal  uint32
	RepPortal  uint32
	NBufs      int
	BufSize    int
	MaxReqSize int
	MaxRepSize int

	ThreadsMin int
	ThreadsMax int

	HPRatio        int
	WatchdogFactor float64

	Partition int
	LocalPID  ids.PID

	AT rpcat.Config
}

// Service is one RPC endpoint: a posted request portal, a reply
// portal, and a pool of threads dispatching through Handler.
type Service struct {
	cfg     Config
	engine  *transport.Engine
	handler HandlerFunc
	hp      HPPredicate
	metrics metrics.FabricMetrics
	at      *rpcat.Estimator

	bufMu sync.Mutex // LH(svc): buffer/incoming
	rqbds map[ids.Handle]*rqbd

	reqMu  sync.Mutex // LH(svc): request processing
	normal list.List  // of *Request
	hpQ    list.List  // of *Request
	timed  []*Request // sorted by Deadline, ascending
	hpRun  int
	signal chan struct{}

	replyMu sync.Mutex // LH(svc): reply-state
	active  map[uint64]*replyState

	stopping atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup

	reqReceived atomic.Uint64
	repSent     atomic.Uint64
	dropped     atomic.Uint64
	msgsMax     atomic.Int64
}

// Stats is the service's health/observability snapshot (§7).
type Stats struct {
	MsgsAlloc   int
	MsgsMax     int
	ReqReceived uint64
	RepSent     uint64
	Dropped     uint64
}

// New constructs a Service bound to engine, ready for Start. handler is
// invoked once per accepted request; hp, if non-nil, supplements the
// built-in ping-opcode HP rule.
func New(engine *transport.Engine, cfg Config, handler HandlerFunc, hp HPPredicate, m metrics.FabricMetrics) *Service {
	if cfg.HPRatio <= 0 {
		cfg.HPRatio = DefaultHPRatio
	}
	if cfg.ThreadsMin <= 0 {
		cfg.ThreadsMin = 2
	}
	if cfg.ThreadsMax < cfg.ThreadsMin {
		cfg.ThreadsMax = cfg.ThreadsMin
	}
	if cfg.MaxReqSize <= 0 {
		cfg.MaxReqSize = bufpool.DefaultSmallSize
	}
	if cfg.MaxRepSize <= 0 {
		cfg.MaxRepSize = bufpool.DefaultSmallSize
	}
	if cfg.BufSize <= 0 {
		cfg.BufSize = cfg.MaxReqSize * 4
	}
	return &Service{
		cfg:     cfg,
		engine:  engine,
		handler: handler,
		hp:      hp,
		metrics: m,
		at:      rpcat.New(cfg.AT),
		rqbds:   make(map[ids.Handle]*rqbd),
		signal:  make(chan struct{}, 1),
		active:  make(map[uint64]*replyState),
		stopCh:  make(chan struct{}),
	}
}

// Name returns the service's configured name, used to tag metrics and
// logs.
func (s *Service) Name() string { return s.cfg.Name }

// Estimator exposes the service's adaptive-timeout estimator, e.g. for
// a control-surface stats endpoint.
func (s *Service) Estimator() *rpcat.Estimator { return s.at }

// Start posts the initial rqbd group, marks the request portal lazy so
// PUTs queue rather than drop while every rqbd is momentarily
// exhausted, and spawns the configured thread pool plus the AT timer.
func (s *Service) Start(ctx context.Context) error {
	p, err := s.engine.Portals.Portal(s.cfg.ReqPortal)
	if err != nil {
		return err
	}
	p.SetLazy(true, s.onPortalDrop)

	s.postGroup()

	threads := s.cfg.ThreadsMin
	for i := 0; i < threads; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.wg.Add(1)
	go s.atTimer(ctx)

	return nil
}

// Stop implements §4.6's shutdown sequence: stop accepting new work,
// unlink every posted rqbd, drain the queues, and wait for every
// thread to exit or ctx to expire.
func (s *Service) Stop(ctx context.Context) error {
	s.stopping.Store(true)
	s.unlinkAll()
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onPortalDrop counts and logs one dropped request. Start hands it to
// SetLazy(true, ...), and SetLazy invokes its drop callback only when
// it clears the lazy flag without keeping a reference to it, so nothing
// calls onPortalDrop: requests dropped by a later clear_portal_lazy
// (§6.5) or by the matching engine are not counted here.
func (s *Service) onPortalDrop(req portal.IncomingRequest) {
	s.dropped.Add(1)
	if s.metrics != nil {
		s.metrics.RecordDrop(s.cfg.Name, "portal_drop", int(req.RLength))
	}
	logger.Debugf("rpc %s: dropped request from %s (portal not lazy or overflow)", s.cfg.Name, req.SrcNID)
}

// enqueueIncoming decodes the envelope landed by onRqbdEvent, assigns
// a processing deadline, and appends the request to the normal or HP
// queue (§4.6 "Incoming request flow" steps 2-3).
func (s *Service) enqueueIncoming(ev portal.Event, data []byte) {
	now := time.Now()
	s.reqReceived.Add(1)

	env, err := rpcwire.Decode(data)
	if err != nil {
		s.dropped.Add(1)
		logger.Debugf("rpc %s: malformed request from %s: %v", s.cfg.Name, ev.SenderNID, err)
		return
	}

	timeout := time.Duration(env.Timeout) * time.Second
	if timeout <= 0 {
		timeout = s.at.Timeout()
	}

	req := &Request{
		XID:       env.XID,
		Opcode:    env.Opcode,
		Envelope:  env,
		Source:    ids.ProcessID{NID: ev.SenderNID, PID: ev.Initiator.PID},
		Arrival:   now,
		Deadline:  now.Add(timeout),
		atSupport: flagsOf(env)&atSupportFlag != 0,
	}
	req.hp = req.Opcode == PingOpcode || (s.hp != nil && s.hp(req.Opcode, env))

	s.reqMu.Lock()
	if req.hp {
		s.hpQ.PushBack(req)
	} else {
		s.normal.PushBack(req)
	}
	s.timed = insertByDeadline(s.timed, req)
	s.reqMu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func insertByDeadline(timed []*Request, req *Request) []*Request {
	i := len(timed)
	for i > 0 && timed[i-1].Deadline.After(req.Deadline) {
		i--
	}
	timed = append(timed, nil)
	copy(timed[i+1:], timed[i:])
	timed[i] = req
	return timed
}

// dequeue implements §4.6's HP-ratio scheduler: up to HPRatio HP
// requests are handled before one normal request is taken, unless one
// queue is empty.
func (s *Service) dequeue() (*Request, bool) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	if s.hpQ.Len() == 0 && s.normal.Len() == 0 {
		return nil, false
	}

	takeHP := s.hpQ.Len() > 0 && (s.normal.Len() == 0 || s.hpRun < s.cfg.HPRatio)
	var e *list.Element
	if takeHP {
		e = s.hpQ.Front()
		s.hpQ.Remove(e)
		s.hpRun++
	} else {
		e = s.normal.Front()
		s.normal.Remove(e)
		s.hpRun = 0
	}
	req := e.Value.(*Request)
	s.removeTimedLocked(req)
	return req, true
}

func (s *Service) removeTimedLocked(req *Request) {
	for i, r := range s.timed {
		if r == req {
			s.timed = append(s.timed[:i], s.timed[i+1:]...)
			return
		}
	}
}

// worker is one service thread: the teacher's queue.go worker loop
// (select on stop/ctx/work) adapted to a two-level priority queue
// instead of a flat channel.
func (s *Service) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		req, ok := s.dequeue()
		if !ok {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-s.signal:
				continue
			}
		}
		s.handle(ctx, req)
	}
}

// handle runs one request through the handler and sends its reply.
func (s *Service) handle(ctx context.Context, req *Request) {
	start := time.Now()

	reply, err := s.handler(req)
	if err != nil {
		reply = &Reply{Envelope: &rpcwire.Envelope{
			Opcode: req.Opcode,
			XID:    req.XID,
			Status: int32(ferrors.KindOf(err)),
		}}
	}
	if reply.Envelope == nil {
		reply.Envelope = &rpcwire.Envelope{}
	}
	reply.Envelope.XID = req.XID
	reply.Envelope.Opcode = req.Opcode

	elapsed := s.at.Observe(time.Since(start))
	if s.metrics != nil {
		s.metrics.RecordATEstimate(s.cfg.Name, elapsed.Seconds())
		s.metrics.ObserveServiceLatency(s.cfg.Name, time.Since(start))
	}

	s.sendReply(req, reply)
}

// atTimer wakes on the nearest deadline minus early_margin and sends
// early replies for requests that are about to time out (§4.6
// "Adaptive timeouts").
func (s *Service) atTimer(ctx context.Context) {
	defer s.wg.Done()
	const tick = 200 * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkEarlyReplies()
		}
	}
}

func (s *Service) checkEarlyReplies() {
	margin := s.at.EarlyMargin()
	if margin <= 0 {
		return
	}
	now := time.Now()

	s.reqMu.Lock()
	var due []*Request
	for _, r := range s.timed {
		if !r.atSupport {
			continue
		}
		if now.Add(margin).Before(r.Deadline) {
			break
		}
		due = append(due, r)
	}
	for _, r := range due {
		extra := s.at.Extra()
		if extra <= 0 {
			extra = margin
		}
		newDeadline := r.Deadline.Add(extra)
		if max := now.Add(s.at.Max()); newDeadline.After(max) {
			newDeadline = max
		}
		r.Deadline = newDeadline
	}
	s.reqMu.Unlock()

	for _, r := range due {
		s.sendEarlyReply(r)
	}
}

// sendEarlyReply sends a reply-portal PUT carrying no handler output,
// flagged via earlyReplyStatus so the client (see client.go) extends
// its wait instead of treating it as the final reply. It is not
// counted in RepSent, matching §4.6's "does not consume a reply slot
// beyond what a normal reply would".
func (s *Service) sendEarlyReply(req *Request) {
	env := &rpcwire.Envelope{Opcode: req.Opcode, XID: req.XID, Status: earlyReplyStatus}
	body, err := env.Encode()
	if err != nil {
		return
	}
	buf := bufpool.Get(len(body))
	n := copy(buf, body)
	buf = buf[:n]

	sink := portal.EventSinkFunc(func(ev portal.Event) {
		if ev.Type == portal.EventSend {
			bufpool.Put(buf)
		}
	})
	md := portal.NewMD(s.engine.Cookies.Next(), uint32(len(buf)), portal.OptPut, 1, 1, sink)
	md.Buffer = buf

	s.engine.Send(transport.SendRequest{
		Source:    ids.ProcessID{PID: s.cfg.LocalPID},
		Target:    req.Source,
		Kind:      wire.TypePut,
		MD:        md,
		Length:    uint32(len(buf)),
		PortalIdx: s.cfg.RepPortal,
		MatchBits: req.XID,
		Partition: s.cfg.Partition,
	})
}

// Health reports whether the queue head has been waiting within the
// bound §4.6 defines: max(at_max, 1.5 * peer_timeout).
func (s *Service) Health(peerTimeout time.Duration) bool {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	if len(s.timed) == 0 {
		return true
	}
	oldest := s.timed[0]
	bound := s.at.Max()
	if scaled := time.Duration(float64(peerTimeout) * 1.5); scaled > bound {
		bound = scaled
	}
	return time.Since(oldest.Arrival) <= bound
}

// StatsSnapshot returns a copy of the service's current counters.
func (s *Service) StatsSnapshot() Stats {
	s.bufMu.Lock()
	alloc := len(s.rqbds)
	s.bufMu.Unlock()
	for {
		prev := s.msgsMax.Load()
		if int64(alloc) <= prev || s.msgsMax.CompareAndSwap(prev, int64(alloc)) {
			break
		}
	}
	return Stats{
		MsgsAlloc:   alloc,
		MsgsMax:     int(s.msgsMax.Load()),
		ReqReceived: s.reqReceived.Load(),
		RepSent:     s.repSent.Load(),
		Dropped:     s.dropped.Load(),
	}
}
