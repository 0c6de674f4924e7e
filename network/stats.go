package network

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of one connection's traffic counters,
// per spec.md §4.10. Grounded on the original source's
// ConnectionStats / Connection::sampleStats() and on the teacher's
// NetStats field on Conn, generalized from Teeworlds' fixed packet/chunk
// counters to this transport's reliable/unreliable/retransmit/ack shape.
type Stats struct {
	PacketsSent       uint64
	PacketsReceived   uint64
	BytesSent         uint64
	BytesReceived     uint64
	ReliablePackets   uint64
	UnreliablePackets uint64
	Retransmits       uint64
	DuplicatesDropped uint64
	ACKsSent          uint64
	ACKsReceived      uint64

	RTT              time.Duration
	FlowWindowSize   uint32
	PacketSendPeriod time.Duration
}

// statsCounter is the mutable accumulator a Connection updates; Stats is
// the read-only copy handed to callers by SampleStats.
type statsCounter struct {
	mu    sync.Mutex
	stats Stats
}

func (c *statsCounter) onSent(p *Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.PacketsSent++
	c.stats.BytesSent += uint64(len(p.Payload))
	if p.Reliable {
		c.stats.ReliablePackets++
	} else {
		c.stats.UnreliablePackets++
	}
}

func (c *statsCounter) onReceived(p *Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.PacketsReceived++
	c.stats.BytesReceived += uint64(len(p.Payload))
	if p.Reliable {
		c.stats.ReliablePackets++
	} else {
		c.stats.UnreliablePackets++
	}
}

func (c *statsCounter) onRetransmit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Retransmits++
}

func (c *statsCounter) onDuplicate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.DuplicatesDropped++
}

func (c *statsCounter) onAckSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.ACKsSent++
}

func (c *statsCounter) onAckReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.ACKsReceived++
}

func (c *statsCounter) snapshot(cc ccReader) Stats {
	c.mu.Lock()
	s := c.stats
	c.mu.Unlock()
	if cc != nil {
		s.FlowWindowSize = cc.FlowWindowSize()
		s.PacketSendPeriod = cc.PacketSendPeriod()
		s.RTT = cc.EstimatedTimeout()
	}
	return s
}

// ccReader is the read-only slice of congestion.Controller stats
// sampling needs, kept narrow to avoid a direct import dependency on the
// send queue's full congestion controller surface here.
type ccReader interface {
	FlowWindowSize() uint32
	PacketSendPeriod() time.Duration
	EstimatedTimeout() time.Duration
}
