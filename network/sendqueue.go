package network

import (
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nullbyte-dev/rudt/congestion"
	"github.com/nullbyte-dev/rudt/internal"
	"github.com/nullbyte-dev/rudt/protocol"
)

// handshakeBackoffMin/Max bound the jittered exponential resend interval
// for the Handshake control packet while awaiting HandshakeACK (§4.3
// step 1); grounded on internal.NewBackoffPolicy, unused by the teacher
// itself but present in its internal package.
const (
	handshakeBackoffMin = 50 * time.Millisecond
	handshakeBackoffMax = 2 * time.Second
)

type sendQueueState int32

const (
	sendQueueNotStarted sendQueueState = iota
	sendQueueRunning
	sendQueueStopped
)

// sendQueueHost is the non-owning handle a send queue uses to reach back
// into its owning connection, per spec.md §9's note that cyclic
// references between a connection and its send queue should be modeled
// as message passing, not shared ownership: the connection owns the
// send queue, the send queue only ever calls back through this small
// interface.
type sendQueueHost interface {
	write(pkt *Packet, addr netip.AddrPort) error
	onPacketSent(pkt *Packet)
	onPacketRetransmitted(pkt *Packet)
	onQueueInactive()
	onTimeout()
	handshakeComplete() bool
}

type retransEntry struct {
	packet      *Packet
	resendCount int
	sentAt      time.Time
}

// sendQueue is the per-connection sender described in spec.md §4.3:
// pacing loop, retransmission table, flow window and handshake gating.
// Grounded on the original udt SendQueue.h member list and run-loop
// description; the teacher has no per-connection sender at all (its
// "vital" packets are just resent wholesale by the caller), so the
// pacing/retransmission machinery here is new code written in the
// teacher's locking idiom (small mutex-guarded structs, no generics).
type sendQueue struct {
	host            sendQueueHost
	cc              congestion.Controller
	queue           *packetQueue
	lossList        *lossList
	idleTimeout     time.Duration
	handshakeBackoff internal.BackoffFunc

	mu                    sync.Mutex
	cond                  *sync.Cond
	state                 sendQueueState
	destination           netip.AddrPort
	currentSeq            protocol.Sequence
	initialSeq            protocol.Sequence
	lastAck               protocol.Sequence
	isResponder           bool
	receivedHandshakeAck  bool
	lastSendTime          time.Time
	lastAckTime           time.Time
	idleSince             time.Time
	stopRequested         bool
	wakeGeneration        uint64
	handshakeRetry        int

	atomicSeq atomic.Uint32

	retransMu sync.RWMutex
	retrans   map[protocol.Sequence]*retransEntry
}

func newSendQueue(host sendQueueHost, cc congestion.Controller, dest netip.AddrPort, initialSeq protocol.Sequence, idleTimeout time.Duration) *sendQueue {
	sq := &sendQueue{
		host:             host,
		cc:               cc,
		queue:            newPacketQueue(),
		lossList:         newLossList(),
		idleTimeout:      idleTimeout,
		handshakeBackoff: internal.NewBackoffPolicy(handshakeBackoffMin, handshakeBackoffMax),
		destination:      dest,
		currentSeq:       initialSeq,
		initialSeq:       initialSeq,
		lastAck:          initialSeq,
		retrans:          make(map[protocol.Sequence]*retransEntry),
	}
	sq.cond = sync.NewCond(&sq.mu)
	sq.atomicSeq.Store(uint32(initialSeq))
	return sq
}

// nextSequenceNumber implements §4.3.4: advances the non-atomic counter
// used by the pacing goroutine and mirrors it to an atomic read other
// goroutines may consult lock-free.
func (sq *sendQueue) nextSequenceNumber() protocol.Sequence {
	sq.currentSeq = sq.currentSeq.Next()
	sq.atomicSeq.Store(uint32(sq.currentSeq))
	return sq.currentSeq
}

// CurrentSequenceNumber is safe to call from any goroutine.
func (sq *sendQueue) CurrentSequenceNumber() protocol.Sequence {
	return protocol.Sequence(sq.atomicSeq.Load())
}

func (sq *sendQueue) setState(s sendQueueState) {
	sq.mu.Lock()
	sq.state = s
	sq.mu.Unlock()
}

func (sq *sendQueue) State() sendQueueState {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return sq.state
}

// Start transitions NotStarted -> Running and launches the pacing
// goroutine, if not already started. Used by a connection's own
// outbound enqueue path (QueuePacket/QueuePacketList): this side
// already sent its own HandshakeRequest (§4.3 step 1) and only needs to
// wait for the peer's Handshake to land before real traffic flows; it
// never resends a packet of its own while waiting.
func (sq *sendQueue) Start() {
	sq.startLocked(false)
}

// StartAwaitingHandshakeAck is Start's counterpart for the side of a
// connection that just received a HandshakeRequest (§4.3 step 1): per
// the original source's SendQueue::create(hasReceivedHandshakeACK), only
// this side actively resends its own Handshake control packet while the
// handshake is incomplete. Calling this on an already-running queue is
// a no-op, matching Start.
func (sq *sendQueue) StartAwaitingHandshakeAck() {
	sq.startLocked(true)
}

func (sq *sendQueue) startLocked(isResponder bool) {
	sq.mu.Lock()
	if sq.state != sendQueueNotStarted {
		sq.mu.Unlock()
		return
	}
	sq.state = sendQueueRunning
	sq.isResponder = isResponder
	sq.idleSince = time.Now()
	sq.lastAckTime = time.Now()
	sq.mu.Unlock()

	go sq.run()
}

// QueuePacket enqueues a standalone reliable or unreliable packet and
// starts the queue if this is its first packet, per §4.3's
// NotStarted -> Running transition.
func (sq *sendQueue) QueuePacket(p *Packet) {
	sq.queue.QueuePacket(p)
	sq.Start()
	sq.wake()
}

// QueuePacketList enqueues an ordered/unordered message as a new
// channel.
func (sq *sendQueue) QueuePacketList(parts [][]byte, reliable bool) []*Packet {
	pkts := sq.queue.QueuePacketList(parts, reliable)
	sq.Start()
	sq.wake()
	return pkts
}

// Stop requests the pacing loop exit promptly; per spec.md §5's
// cancellation semantics, any pending reliable packets in the
// retransmission table are dropped, and the caller is responsible for
// invoking the message-failure callback for unfinished messages.
func (sq *sendQueue) Stop() {
	sq.mu.Lock()
	sq.stopRequested = true
	sq.state = sendQueueStopped
	sq.mu.Unlock()
	sq.wake()

	sq.retransMu.Lock()
	sq.retrans = make(map[protocol.Sequence]*retransEntry)
	sq.retransMu.Unlock()
}

func (sq *sendQueue) UpdateDestination(addr netip.AddrPort) {
	sq.mu.Lock()
	sq.destination = addr
	sq.mu.Unlock()
}

func (sq *sendQueue) Destination() netip.AddrPort {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return sq.destination
}

// wake bumps the wake generation and broadcasts, covering the "ACK
// arrival / flow-window change / new enqueue" cancellation points of the
// pacing sleep in §4.3 step 4.
func (sq *sendQueue) wake() {
	sq.mu.Lock()
	sq.wakeGeneration++
	sq.mu.Unlock()
	sq.cond.Broadcast()
}

// HandshakeAck implements §4.3.7.
func (sq *sendQueue) HandshakeAck() {
	sq.mu.Lock()
	sq.receivedHandshakeAck = true
	sq.handshakeRetry = 0
	sq.mu.Unlock()
	sq.cond.Broadcast()
}

func (sq *sendQueue) hasHandshakeAck() bool {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return sq.receivedHandshakeAck
}

func (sq *sendQueue) isHandshakeResponder() bool {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return sq.isResponder
}

// Ack implements §4.3.5.
func (sq *sendQueue) Ack(n protocol.Sequence) {
	sq.mu.Lock()
	lastAck := sq.lastAck
	sq.mu.Unlock()

	if n == lastAck {
		return
	}

	dist := lastAck.Distance(n)
	const maxAckSpan = 1 << 20
	if dist == 0 || dist > maxAckSpan {
		return
	}

	var oldestSent time.Time
	ackedCount := 0

	sq.retransMu.Lock()
	for s := lastAck; s != n; s = s.Next() {
		if e, ok := sq.retrans[s]; ok {
			if oldestSent.IsZero() || e.sentAt.Before(oldestSent) {
				oldestSent = e.sentAt
			}
			ackedCount++
			delete(sq.retrans, s)
		}
	}
	empty := len(sq.retrans) == 0
	sq.retransMu.Unlock()

	sq.lossList.RemoveRange(lastAck, n.Add(-1))

	sq.mu.Lock()
	sq.lastAck = n
	sq.lastAckTime = time.Now()
	if empty && sq.queue.IsEmpty() {
		sq.idleSince = time.Now()
	}
	sq.mu.Unlock()

	if ackedCount > 0 && !oldestSent.IsZero() {
		sq.cc.OnACK(time.Since(oldestSent), ackedCount)
	}

	sq.wake()
}

// FastRetransmit implements §4.3.6.
func (sq *sendQueue) FastRetransmit(n protocol.Sequence) {
	sq.retransMu.RLock()
	_, inflight := sq.retrans[n]
	sq.retransMu.RUnlock()

	if inflight {
		if sq.lossList.Insert(n) {
			sq.cc.OnLoss(1)
		}
		sq.wake()
	}
}

func (sq *sendQueue) LastAck() protocol.Sequence {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return sq.lastAck
}

func (sq *sendQueue) InflightCount() int {
	sq.retransMu.RLock()
	defer sq.retransMu.RUnlock()
	return len(sq.retrans)
}

// handshakePacket builds the Handshake control packet carrying this
// queue's initial sequence number, resent while awaiting HandshakeACK.
func (sq *sendQueue) handshakePacket() *Packet {
	body := make([]byte, 4)
	be.PutUint32(body, uint32(sq.initialSeq))
	return NewControl(protocol.ControlHandshake, body)
}

func (sq *sendQueue) run() {
	for {
		if sq.State() == sendQueueStopped {
			return
		}

		if !sq.host.handshakeComplete() {
			if sq.isHandshakeResponder() {
				sq.host.write(sq.handshakePacket(), sq.Destination())
			}
			sq.mu.Lock()
			wait := sq.handshakeBackoff(sq.handshakeRetry)
			sq.handshakeRetry++
			sq.mu.Unlock()
			sq.waitOrTimeout(wait)
			continue
		}

		retransmitted := sq.tryRetransmit()
		if !retransmitted {
			sq.trySend()
		}

		sq.sleepForPacePeriod()

		if sq.State() == sendQueueStopped {
			return
		}
		if sq.checkInactivity() || sq.checkTimeout() {
			return
		}
	}
}

// tryRetransmit implements §4.3.1.
func (sq *sendQueue) tryRetransmit() bool {
	for {
		s, ok := sq.lossList.PopMin()
		if !ok {
			return false
		}

		sq.retransMu.Lock()
		entry, present := sq.retrans[s]
		if present {
			entry.resendCount++
			entry.packet.WriteSequenceNumber(s)
		}
		sq.retransMu.Unlock()

		if !present {
			continue
		}

		sq.host.write(entry.packet, sq.Destination())
		sq.mu.Lock()
		sq.lastSendTime = time.Now()
		sq.mu.Unlock()
		sq.host.onPacketRetransmitted(entry.packet)
		return true
	}
}

// trySend implements §4.3.2.
func (sq *sendQueue) trySend() bool {
	if sq.InflightCount() >= int(sq.cc.FlowWindowSize()) {
		return false
	}

	p, ok := sq.queue.TakePacket()
	if !ok {
		return false
	}

	sq.mu.Lock()
	seq := sq.nextSequenceNumber()
	sq.idleSince = time.Time{}
	sq.mu.Unlock()

	p.WriteSequenceNumber(seq)

	if p.Reliable {
		sq.retransMu.Lock()
		sq.retrans[seq] = &retransEntry{packet: p, sentAt: time.Now()}
		sq.retransMu.Unlock()
	}

	sq.host.write(p, sq.Destination())
	sq.mu.Lock()
	sq.lastSendTime = time.Now()
	sq.mu.Unlock()
	sq.cc.OnPacketSent(len(p.Payload))
	sq.host.onPacketSent(p)
	return true
}

// waitOrTimeout blocks on the condition variable until woken or d
// elapses, used for both the handshake-ack wait and the pace sleep.
func (sq *sendQueue) waitOrTimeout(d time.Duration) {
	sq.mu.Lock()
	defer sq.mu.Unlock()

	if sq.stopRequested {
		return
	}
	gen := sq.wakeGeneration
	deadline := time.Now().Add(d)

	for sq.wakeGeneration == gen && !sq.stopRequested && time.Now().Before(deadline) {
		timer := time.AfterFunc(time.Until(deadline), func() { sq.cond.Broadcast() })
		sq.cond.Wait()
		timer.Stop()
	}
}

func (sq *sendQueue) sleepForPacePeriod() {
	sq.waitOrTimeout(sq.cc.PacketSendPeriod())
}

// checkInactivity implements the idle half of §4.3.3.
func (sq *sendQueue) checkInactivity() bool {
	sq.mu.Lock()
	defer sq.mu.Unlock()

	if sq.idleSince.IsZero() {
		return false
	}
	if sq.queue.IsEmpty() && sq.InflightCount() == 0 && time.Since(sq.idleSince) >= sq.idleTimeout {
		sq.state = sendQueueStopped
		sq.mu.Unlock()
		sq.host.onQueueInactive()
		sq.mu.Lock()
		return true
	}
	return false
}

// checkTimeout implements the timeout half of §4.3.3.
func (sq *sendQueue) checkTimeout() bool {
	sq.mu.Lock()
	lastAckTime := sq.lastAckTime
	sq.mu.Unlock()

	if lastAckTime.IsZero() {
		return false
	}
	if time.Since(lastAckTime) > sq.cc.EstimatedTimeout() {
		sq.mu.Lock()
		sq.state = sendQueueStopped
		sq.mu.Unlock()
		sq.cc.OnTimeout()
		sq.host.onTimeout()
		return true
	}
	return false
}
