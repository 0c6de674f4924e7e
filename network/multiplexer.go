package network

import (
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"

	"github.com/nullbyte-dev/rudt/congestion"
	"github.com/nullbyte-dev/rudt/obfuscate"
	"github.com/nullbyte-dev/rudt/protocol"
)

// PacketHandler receives an unreliable or standalone-reliable data
// packet's payload.
type PacketHandler func(from netip.AddrPort, payload []byte)

// MessageHandler receives one part of a reassembled ordered message, in
// order, as each part becomes deliverable.
type MessageHandler func(from netip.AddrPort, msgNum protocol.MessageNumber, pos protocol.Position, payload []byte)

// MessageFailureHandler is invoked when a reliable message cannot
// progress to completion (connection reset or teardown mid-message).
type MessageFailureHandler func(from netip.AddrPort, msgNum protocol.MessageNumber)

// ConnectionCreationFilter decides whether a new Connection may be
// created for an address that has not been seen before.
type ConnectionCreationFilter func(from netip.AddrPort) bool

// PacketFilter may reject an inbound data packet before it reaches
// connection state.
type PacketFilter func(from netip.AddrPort, p *Packet) bool

// UnfilteredHandler is invoked for every datagram from a given address,
// bypassing all other dispatch, per spec.md §4.6 step 1.
type UnfilteredHandler func(from netip.AddrPort, raw []byte)

// SocketErrorHandler is called with every error returned by a socket
// read in the receive loop; the loop keeps running afterwards.
type SocketErrorHandler func(err error)

// Socket is the transport's one UDP endpoint: it owns the datagram
// socket, demultiplexes received datagrams by peer address into
// per-peer Connections, applies connection-creation and packet
// filtering policy, and drives the periodic sync tick. Grounded on the
// teacher's NetBase/NetServer/NetClient trio (network/base.go,
// network/network.go), generalized from Teeworlds' fixed-role
// client/server split to one symmetric multiplexer serving any number
// of peers, per spec.md §4.6.
type Socket struct {
	conn NetSocket

	mu          sync.RWMutex
	connections map[netip.AddrPort]*Connection

	unreliableMu  sync.Mutex
	unreliableSeq map[netip.AddrPort]protocol.Sequence

	packetHandler     PacketHandler
	messageHandler    MessageHandler
	failureHandler    MessageFailureHandler
	creationFilter    ConnectionCreationFilter
	packetFilter      PacketFilter
	socketErrHandler  SocketErrorHandler
	unfilteredMu      sync.RWMutex
	unfilteredByAddr  map[netip.AddrPort]UnfilteredHandler

	ccFactory     congestion.Factory
	obfTable      obfuscate.Table
	obfLevel      protocol.ObfuscationLevel
	idleDuration  time.Duration
	syncPeriod    time.Duration
	staleMsgAfter time.Duration

	logger *pterm.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	running atomic.Bool
}

// Options configures a new Socket's tuning knobs; see
// config.Config.TransportOptions for the config-file-driven construction
// path (§4.11).
type Options struct {
	IdleTimeout          time.Duration
	SyncPeriod           time.Duration
	StaleMessageTimeout  time.Duration
	CongestionFactory    congestion.Factory
	ObfuscationTable     obfuscate.Table
	DefaultObfuscation   protocol.ObfuscationLevel
}

// DefaultOptions returns the transport's built-in tuning defaults.
func DefaultOptions() Options {
	return Options{
		IdleTimeout:         5 * time.Second,
		SyncPeriod:          10 * time.Millisecond,
		StaleMessageTimeout: 15 * time.Second,
		CongestionFactory:   congestion.VegasFactory,
		ObfuscationTable:    obfuscate.Default(),
		DefaultObfuscation:  protocol.NoObfuscation,
	}
}

// NewSocket binds a UDP socket at bindAddr and returns a ready
// multiplexer. Call Run to start the network goroutine.
func NewSocket(bindAddr netip.AddrPort, opts Options) (*Socket, error) {
	conn, err := NewNetSocket(bindAddr)
	if err != nil {
		return nil, err
	}

	if opts.CongestionFactory == nil {
		opts.CongestionFactory = congestion.VegasFactory
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Second
	}
	if opts.SyncPeriod <= 0 {
		opts.SyncPeriod = 10 * time.Millisecond
	}
	if opts.StaleMessageTimeout <= 0 {
		opts.StaleMessageTimeout = 15 * time.Second
	}

	return &Socket{
		conn:             conn,
		connections:      make(map[netip.AddrPort]*Connection),
		unreliableSeq:    make(map[netip.AddrPort]protocol.Sequence),
		unfilteredByAddr: make(map[netip.AddrPort]UnfilteredHandler),
		ccFactory:        opts.CongestionFactory,
		obfTable:         opts.ObfuscationTable,
		obfLevel:         opts.DefaultObfuscation,
		idleDuration:     opts.IdleTimeout,
		syncPeriod:       opts.SyncPeriod,
		staleMsgAfter:    opts.StaleMessageTimeout,
		logger:           &pterm.DefaultLogger,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}, nil
}

// --- handler registration (§6) -----------------------------------------

func (s *Socket) SetPacketHandler(h PacketHandler)                     { s.packetHandler = h }
func (s *Socket) SetMessageHandler(h MessageHandler)                   { s.messageHandler = h }
func (s *Socket) SetMessageFailureHandler(h MessageFailureHandler)     { s.failureHandler = h }
func (s *Socket) SetConnectionCreationFilter(f ConnectionCreationFilter) { s.creationFilter = f }
func (s *Socket) SetPacketFilter(f PacketFilter)                       { s.packetFilter = f }
func (s *Socket) SetSocketErrorHandler(h SocketErrorHandler)           { s.socketErrHandler = h }
func (s *Socket) SetLogger(l *pterm.Logger)                            { s.logger = l }

func (s *Socket) SetCongestionControlFactory(f congestion.Factory) { s.ccFactory = f }
func (s *Socket) SetObfuscationTable(t obfuscate.Table)            { s.obfTable = t }

// SetUnfilteredHandler registers a handler invoked for every datagram
// from addr, bypassing connection state entirely.
func (s *Socket) SetUnfilteredHandler(addr netip.AddrPort, h UnfilteredHandler) {
	s.unfilteredMu.Lock()
	defer s.unfilteredMu.Unlock()
	if h == nil {
		delete(s.unfilteredByAddr, addr)
		return
	}
	s.unfilteredByAddr[addr] = h
}

func (s *Socket) newController() congestion.Controller { return s.ccFactory() }
func (s *Socket) obfuscationTable() obfuscate.Table     { return s.obfTable }
func (s *Socket) defaultObfuscationLevel() protocol.ObfuscationLevel {
	return s.obfLevel
}
func (s *Socket) idleTimeout() time.Duration { return s.idleDuration }

func (s *Socket) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Info(fmt.Sprintf(format, args...))
	}
}

// LocalPort returns the bound UDP port.
func (s *Socket) LocalPort() uint16 { return s.conn.LocalPort() }

// Rebind closes and reopens the underlying socket at a new address.
func (s *Socket) Rebind(addr netip.AddrPort) error { return s.conn.Rebind(addr) }

// --- connection lookup --------------------------------------------------

func (s *Socket) findConnection(addr netip.AddrPort) (*Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[addr]
	return c, ok
}

func (s *Socket) findOrCreateConnection(addr netip.AddrPort) (*Connection, bool) {
	if c, ok := s.findConnection(addr); ok {
		return c, true
	}

	if s.creationFilter != nil && !s.creationFilter(addr) {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.connections[addr]; ok {
		return c, true
	}
	c := newConnection(s, addr)
	s.connections[addr] = c
	return c, true
}

func (s *Socket) removeConnection(addr netip.AddrPort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, addr)
}

// Connections returns every currently known peer address.
func (s *Socket) Connections() []netip.AddrPort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]netip.AddrPort, 0, len(s.connections))
	for addr := range s.connections {
		out = append(out, addr)
	}
	return out
}

// SampleStats returns a stats snapshot for addr, if a connection exists.
func (s *Socket) SampleStats(addr netip.AddrPort) (Stats, bool) {
	c, ok := s.findConnection(addr)
	if !ok {
		return Stats{}, false
	}
	return c.SampleStats(), true
}

// --- delivery callbacks used by Connection -------------------------------

func (s *Socket) deliverPacket(from netip.AddrPort, payload []byte) {
	if s.packetHandler != nil {
		s.packetHandler(from, payload)
	}
}

func (s *Socket) deliverMessage(from netip.AddrPort, msgNum protocol.MessageNumber, pos protocol.Position, payload []byte) {
	if s.messageHandler != nil {
		s.messageHandler(from, msgNum, pos, payload)
	}
}

func (s *Socket) deliverMessageFailure(from netip.AddrPort, msgNum protocol.MessageNumber) {
	if s.failureHandler != nil {
		s.failureHandler(from, msgNum)
	}
}

// rawSend marshals and writes p to addr unconditionally; used both by
// the write* consumer API and internally by Connection/sendQueue.
func (s *Socket) rawSend(p *Packet, addr netip.AddrPort) error {
	return s.conn.WriteTo(addr, p.Marshal())
}

// --- consumer API (§6) ---------------------------------------------------

// WriteBasePacket is a fire-and-forget control-level send with no
// connection side effects. It rejects data packets.
func (s *Socket) WriteBasePacket(p *Packet, addr netip.AddrPort) error {
	if !p.Control {
		return fmt.Errorf("rudt: WriteBasePacket requires a control packet")
	}
	return s.rawSend(p, addr)
}

// WritePacket sends payload to addr. Unreliable packets are stamped with
// a per-address sequence counter and sent immediately; reliable packets
// are enqueued on the destination connection's send queue, creating the
// connection first if the creation filter allows it.
func (s *Socket) WritePacket(addr netip.AddrPort, payload []byte, reliable bool) error {
	if !reliable {
		return s.writeUnreliable(addr, payload)
	}

	c, ok := s.findOrCreateConnection(addr)
	if !ok {
		return fmt.Errorf("rudt: connection to %s rejected by creation filter", addr)
	}
	c.SendReliablePacket(payload)
	return nil
}

func (s *Socket) writeUnreliable(addr netip.AddrPort, payload []byte) error {
	s.unreliableMu.Lock()
	seq := s.unreliableSeq[addr].Next()
	s.unreliableSeq[addr] = seq
	s.unreliableMu.Unlock()

	p := NewData(len(payload), false, false)
	p.Payload = append(p.Payload, payload...)
	p.WriteSequenceNumber(seq)

	if c, ok := s.findConnection(addr); ok {
		c.stats.onSent(p)
	}

	return s.rawSend(p, addr)
}

// WritePacketList sends an ordered list of payloads. Reliable lists are
// enqueued as a new channel on the destination connection's send queue;
// unreliable lists are sent immediately, one datagram per part.
func (s *Socket) WritePacketList(addr netip.AddrPort, parts [][]byte, reliable bool) error {
	if !reliable {
		for _, part := range parts {
			if err := s.writeUnreliable(addr, part); err != nil {
				return err
			}
		}
		return nil
	}

	c, ok := s.findOrCreateConnection(addr)
	if !ok {
		return fmt.Errorf("rudt: connection to %s rejected by creation filter", addr)
	}
	c.SendReliablePacketList(parts)
	return nil
}

// --- network goroutine ---------------------------------------------------

// Run starts the network goroutine (receive loop + periodic sync tick)
// and blocks until Close is called. This goroutine is the only reader of
// the socket; writes are made directly from the calling goroutine
// (WritePacket, WritePacketList, WriteBasePacket) and from each
// connection's send-queue goroutine.
func (s *Socket) Run() {
	s.running.Store(true)
	defer close(s.doneCh)

	go s.syncLoop()

	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			if s.socketErrHandler != nil {
				s.socketErrHandler(err)
			}
			continue
		}

		s.handleDatagram(from, buf[:n])
	}
}

func (s *Socket) handleDatagram(from netip.AddrPort, raw []byte) {
	s.unfilteredMu.RLock()
	h := s.unfilteredByAddr[from]
	s.unfilteredMu.RUnlock()
	if h != nil {
		h(from, raw)
		return
	}

	p, err := FromBytes(raw)
	if err != nil {
		return
	}

	if p.Control {
		c, ok := s.findOrCreateConnection(from)
		if !ok {
			return
		}
		c.ProcessControl(p)
		return
	}

	if s.packetFilter != nil && !s.packetFilter(from, p) {
		return
	}

	if !p.Reliable {
		if c, ok := s.findConnection(from); ok {
			c.stats.onReceived(p)
		}
		if s.packetHandler != nil {
			s.packetHandler(from, p.Payload)
		}
		return
	}

	c, ok := s.findConnection(from)
	if !ok {
		// A reliable data packet from a peer we never handshook with;
		// nothing to accumulate sequence state against, so it is
		// dropped per §7's protocol-violation policy.
		return
	}

	accepted := c.ProcessReceivedSequenceNumber(p.Sequence)
	if !accepted {
		c.stats.onDuplicate()
		return
	}
	c.HandleDataPacket(p)
}

func (s *Socket) syncLoop() {
	ticker := time.NewTicker(s.syncPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			for _, addr := range s.Connections() {
				if c, ok := s.findConnection(addr); ok {
					c.Sync(s.staleMsgAfter)
				}
			}
		}
	}
}

// Close stops the network goroutine, if Run started one, and closes the
// underlying socket.
func (s *Socket) Close() error {
	close(s.stopCh)
	err := s.conn.Close()
	if s.running.Load() {
		<-s.doneCh
	}
	return err
}
