package network

import (
	"math/rand"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nullbyte-dev/rudt/congestion"
	"github.com/nullbyte-dev/rudt/obfuscate"
	"github.com/nullbyte-dev/rudt/protocol"
)

type connState int32

const (
	connFresh connState = iota
	connRequested
	connEstablished
)

// pendingMessage collects the packets of one in-flight message number on
// the receive side, per spec.md §4.4's "Pending received message":
// packets buffered out of order, delivered once a contiguous prefix
// starting at nextExpectedPart is available.
type pendingMessage struct {
	parts            map[uint32]*Packet
	nextExpectedPart uint32
	lastProgress     time.Time
}

// Connection is the per-peer state machine of spec.md §4.5: handshake,
// ACK generation, message dispatch and stats, wrapping a lazily-started
// send queue. Grounded on the teacher's Conn (network/conn.go), which
// plays the same "one struct per peer, owns timing and resend state"
// role for Teeworlds' two-peer model; generalized here to the transport's
// three-phase handshake, N-channel messages and pluggable congestion
// control, with shape cross-checked against the original source's
// Connection.h member list.
type Connection struct {
	socket      *Socket
	destination netip.AddrPort

	mu                   sync.Mutex
	state                connState
	initialSendSeq       protocol.Sequence
	initialRecvSeq       protocol.Sequence
	lastReceived         protocol.Sequence
	lastAckSent          protocol.Sequence
	receivedHandshake    bool
	receivedHandshakeAck bool
	didRequestHandshake  bool

	recvLossList    *lossList
	pendingMessages map[protocol.MessageNumber]*pendingMessage

	cc          congestion.Controller
	sq          atomic.Pointer[sendQueue]
	obfuscation obfuscate.Table
	obfLevel    protocol.ObfuscationLevel

	stats statsCounter
}

// sendQ returns the connection's current send queue. It is a pointer
// swapped wholesale on reset (§4.5), so reads from any goroutine are
// lock-free and always see either the old or the new queue, never a
// half-constructed one.
func (c *Connection) sendQ() *sendQueue {
	return c.sq.Load()
}

func newConnection(socket *Socket, dest netip.AddrPort) *Connection {
	initialSend := protocol.Sequence(rand.Uint32() & protocol.SequenceMask)
	c := &Connection{
		socket:          socket,
		destination:     dest,
		initialSendSeq:  initialSend,
		recvLossList:    newLossList(),
		pendingMessages: make(map[protocol.MessageNumber]*pendingMessage),
		cc:              socket.newController(),
		obfuscation:     socket.obfuscationTable(),
		obfLevel:        socket.defaultObfuscationLevel(),
	}
	c.sq.Store(newSendQueue(c, c.cc, dest, initialSend, socket.idleTimeout()))
	c.lastAckSent = c.initialRecvSeq
	return c
}

func (c *Connection) Destination() netip.AddrPort {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destination
}

func (c *Connection) State() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SendReliablePacket enqueues a single reliable payload.
func (c *Connection) SendReliablePacket(payload []byte) {
	p := NewData(len(payload), true, false)
	p.Payload = append(p.Payload, payload...)
	p.Obfuscate(c.obfLevel, c.obfuscation.Transform(c.obfLevel))
	c.sendQ().QueuePacket(p)
	c.ensureHandshakeStarted()
}

// SendUnreliablePacket hands a payload straight to the send queue's
// channel 0 with the R bit clear; it still flows through the pacing
// loop so ordering with reliable traffic on other channels is
// preserved, but it is never placed in the retransmission table.
func (c *Connection) SendUnreliablePacket(payload []byte) {
	p := NewData(len(payload), false, false)
	p.Payload = append(p.Payload, payload...)
	p.Obfuscate(c.obfLevel, c.obfuscation.Transform(c.obfLevel))
	c.sendQ().QueuePacket(p)
}

// SendReliablePacketList enqueues an ordered message of parts.
func (c *Connection) SendReliablePacketList(parts [][]byte) []*Packet {
	transform := c.obfuscation.Transform(c.obfLevel)
	pkts := c.sendQ().QueuePacketList(parts, true)
	for _, p := range pkts {
		p.Obfuscate(c.obfLevel, transform)
	}
	c.ensureHandshakeStarted()
	return pkts
}

// ensureHandshakeStarted kicks off the client side of the handshake
// (Fresh -> Requested) the first time this connection has something to
// send, per spec.md §4.5.
func (c *Connection) ensureHandshakeStarted() {
	c.mu.Lock()
	if c.state != connFresh || c.didRequestHandshake {
		c.mu.Unlock()
		return
	}
	c.didRequestHandshake = true
	c.state = connRequested
	c.mu.Unlock()

	c.sendControl(NewControl(protocol.ControlHandshakeRequest, nil))
}

// sendControl is a convenience for control packets addressed to this
// connection's current destination, used outside the send queue's own
// pacing loop (handshake replies, ACKs).
func (c *Connection) sendControl(p *Packet) {
	_ = c.socket.rawSend(p, c.Destination())
}

// --- sendQueueHost implementation -----------------------------------

func (c *Connection) write(pkt *Packet, addr netip.AddrPort) error {
	return c.socket.rawSend(pkt, addr)
}

func (c *Connection) onPacketSent(pkt *Packet) {
	c.stats.onSent(pkt)
}

func (c *Connection) onPacketRetransmitted(pkt *Packet) {
	c.stats.onRetransmit()
}

func (c *Connection) onQueueInactive() {
	c.socket.logf("connection %s: send queue idle, stopping", c.Destination())
}

func (c *Connection) onTimeout() {
	c.socket.logf("connection %s: ack timeout, tearing down", c.Destination())
	c.failPendingMessages()
	c.socket.removeConnection(c.Destination())
}

// handshakeComplete reports whether the three-phase handshake (§4.5) has
// reached connEstablished, the send queue's signal to stop gating real
// traffic behind handshake packets.
func (c *Connection) handshakeComplete() bool {
	return c.State() == connEstablished
}

// --- handshake (§4.5) -------------------------------------------------

// ProcessControl dispatches a received control packet.
func (c *Connection) ProcessControl(p *Packet) {
	c.stats.onReceived(p)
	switch p.Type {
	case protocol.ControlHandshakeRequest:
		c.handleHandshakeRequest()
	case protocol.ControlHandshake:
		c.handleHandshake(p)
	case protocol.ControlHandshakeACK:
		c.handleHandshakeAck(p)
	case protocol.ControlACK:
		c.stats.onAckReceived()
		c.processACK(p)
	}
}

func (c *Connection) handleHandshakeRequest() {
	c.mu.Lock()
	established := c.state == connEstablished
	c.mu.Unlock()

	if established {
		c.reset()
	}

	// The send queue itself resends the Handshake control packet on its
	// pacing loop until HandshakeACK arrives (§4.3 step 1); starting it
	// here (if not already running) is what makes that loop begin. Only
	// this side of the connection (the one that received the
	// HandshakeRequest) plays that role.
	c.sendQ().StartAwaitingHandshakeAck()
}

func (c *Connection) handleHandshake(p *Packet) {
	if len(p.Payload) < 4 {
		return
	}
	peerInitial := protocol.Sequence(be.Uint32(p.Payload))

	c.mu.Lock()
	c.initialRecvSeq = peerInitial
	c.lastReceived = peerInitial.Add(-1)
	c.lastAckSent = peerInitial.Add(-1)
	c.receivedHandshake = true
	c.state = connEstablished
	c.mu.Unlock()
	c.sendQ().wake()

	body := make([]byte, 4)
	be.PutUint32(body, uint32(c.initialSendSeq))
	c.sendControl(NewControl(protocol.ControlHandshakeACK, body))
}

func (c *Connection) handleHandshakeAck(p *Packet) {
	if len(p.Payload) < 4 {
		return
	}
	peerInitial := protocol.Sequence(be.Uint32(p.Payload))

	c.mu.Lock()
	c.initialRecvSeq = peerInitial
	c.lastReceived = peerInitial.Add(-1)
	c.lastAckSent = peerInitial.Add(-1)
	c.receivedHandshakeAck = true
	c.state = connEstablished
	c.mu.Unlock()
	c.sendQ().HandshakeAck()
}

// reset implements the reset semantics of spec.md §4.5: tear down
// receive state and recreate the send queue with a fresh initial
// sequence number.
func (c *Connection) reset() {
	c.sendQ().Stop()
	c.failPendingMessages()

	c.mu.Lock()
	c.recvLossList = newLossList()
	c.pendingMessages = make(map[protocol.MessageNumber]*pendingMessage)
	c.lastReceived = 0
	c.receivedHandshake = false
	c.receivedHandshakeAck = false
	c.didRequestHandshake = false
	c.state = connFresh
	c.initialSendSeq = protocol.Sequence(rand.Uint32() & protocol.SequenceMask)
	dest := c.destination
	c.mu.Unlock()

	c.sq.Store(newSendQueue(c, c.cc, dest, c.initialSendSeq, c.socket.idleTimeout()))
}

// processACK implements the ACK half of §4.5.
func (c *Connection) processACK(p *Packet) {
	if c.State() != connEstablished {
		return
	}
	if len(p.Payload) < 4 {
		return
	}
	ack := protocol.Sequence(be.Uint32(p.Payload))
	if !ack.LessOrEqual(c.sendQ().CurrentSequenceNumber().Next()) {
		return
	}
	c.sendQ().Ack(ack)
}

// --- receiver path (§4.4) ---------------------------------------------

// ProcessReceivedSequenceNumber implements §4.4 steps 1-3, returning
// whether the packet should be processed further (false for a
// duplicate).
func (c *Connection) ProcessReceivedSequenceNumber(s protocol.Sequence) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	expected := c.lastReceived.Next()

	switch {
	case s == expected:
		c.lastReceived = s
		return true
	case expected.Less(s):
		for missing := expected; missing != s; missing = missing.Next() {
			c.recvLossList.Insert(missing)
		}
		c.lastReceived = s
		return true
	default:
		if c.recvLossList.Remove(s) {
			return true
		}
		return false
	}
}

// HandleDataPacket routes an accepted reliable (or any unreliable)
// data packet to reassembly or direct delivery.
func (c *Connection) HandleDataPacket(p *Packet) {
	c.stats.onReceived(p)
	transform := c.obfuscation.Transform(p.Obfuscation)
	if transform != nil {
		transform(p.Payload)
	}

	if !p.HasMessage {
		c.socket.deliverPacket(c.Destination(), p.Payload)
		return
	}
	c.reassemble(p)
}

func (c *Connection) reassemble(p *Packet) {
	c.mu.Lock()
	pm, ok := c.pendingMessages[p.MessageNumber]
	if !ok {
		pm = &pendingMessage{parts: make(map[uint32]*Packet), lastProgress: time.Now()}
		c.pendingMessages[p.MessageNumber] = pm
	}
	pm.parts[p.MessagePartNumber] = p

	var deliver []*Packet
	for {
		next, present := pm.parts[pm.nextExpectedPart]
		if !present {
			break
		}
		deliver = append(deliver, next)
		delete(pm.parts, pm.nextExpectedPart)
		pm.nextExpectedPart++
		pm.lastProgress = time.Now()

		if next.Position == protocol.PositionLast || next.Position == protocol.PositionOnly {
			delete(c.pendingMessages, p.MessageNumber)
			break
		}
	}
	c.mu.Unlock()

	for _, part := range deliver {
		c.socket.deliverMessage(c.Destination(), part.MessageNumber, part.Position, part.Payload)
	}
}

// failPendingMessages invokes the message-failure callback for every
// message that never reached its LAST part, per §4.4/§7's
// "message incompleteness at teardown" policy.
func (c *Connection) failPendingMessages() {
	c.mu.Lock()
	pending := c.pendingMessages
	c.pendingMessages = make(map[protocol.MessageNumber]*pendingMessage)
	c.mu.Unlock()

	for msgNum := range pending {
		c.socket.deliverMessageFailure(c.Destination(), msgNum)
	}
}

// messageStalenessCheck fails any pending message that has made no
// progress for longer than staleAfter.
func (c *Connection) messageStalenessCheck(staleAfter time.Duration) {
	c.mu.Lock()
	var stale []protocol.MessageNumber
	now := time.Now()
	for msgNum, pm := range c.pendingMessages {
		if now.Sub(pm.lastProgress) > staleAfter {
			stale = append(stale, msgNum)
		}
	}
	for _, msgNum := range stale {
		delete(c.pendingMessages, msgNum)
	}
	c.mu.Unlock()

	for _, msgNum := range stale {
		c.socket.deliverMessageFailure(c.Destination(), msgNum)
	}
}

// Sync is invoked from the socket's periodic tick (~10ms); it drives ACK
// emission per §4.4 and staleness checks for stuck messages.
func (c *Connection) Sync(staleMessageTimeout time.Duration) {
	if c.State() != connEstablished {
		return
	}

	c.mu.Lock()
	lossCount := c.recvLossList.Len()
	nextAck := c.lastReceived.Add(1 - int32(lossCount))
	shouldAck := nextAck != c.lastAckSent
	if shouldAck {
		c.lastAckSent = nextAck
	}
	c.mu.Unlock()

	if shouldAck {
		body := make([]byte, 4)
		be.PutUint32(body, uint32(nextAck))
		c.sendControl(NewControl(protocol.ControlACK, body))
		c.stats.onAckSent()
	}

	c.messageStalenessCheck(staleMessageTimeout)
}

func (c *Connection) SampleStats() Stats {
	return c.stats.snapshot(c.cc)
}
