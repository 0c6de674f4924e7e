package network

import (
	"sync"

	"github.com/nullbyte-dev/rudt/protocol"
)

// channel holds the packets of one in-flight message (or, for channel 0,
// standalone reliable packets queued directly). A channel is retired
// once it drains and removed from round-robin rotation.
type channel struct {
	packets []*Packet
}

func (c *channel) empty() bool { return len(c.packets) == 0 }

func (c *channel) take() *Packet {
	p := c.packets[0]
	c.packets = c.packets[1:]
	return p
}

// packetQueue fans reliable packets out across up to
// protocol.ChannelCount concurrently eligible channels and serves them in
// round-robin order, so that one large ordered message does not starve
// unrelated standalone packets queued behind it. Grounded on the
// teacher's PacketConstruct, which buffers several chunks before handing
// a datagram to the network (network/packet_construct.go); generalized
// here from "pack several chunks into one outgoing datagram" to "keep N
// logical message streams independently progressing", which is the role
// PacketQueue plays in the original udt SendQueue (PacketQueue.h).
type packetQueue struct {
	mu       sync.Mutex
	channels []*channel
	current  int
	nextMsg  protocol.MessageNumber
}

func newPacketQueue() *packetQueue {
	return &packetQueue{
		channels: []*channel{{}},
	}
}

// QueuePacket enqueues a single standalone packet on channel 0.
func (q *packetQueue) QueuePacket(p *Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.channels[0].packets = append(q.channels[0].packets, p)
}

// QueuePacketList stamps payloads as one message split across len(parts)
// data packets (FIRST/MIDDLE/LAST, or ONLY if there is exactly one part)
// and enqueues them on a freshly allocated channel, so the message's
// parts are served interleaved with, not blocked behind, other traffic.
// reliable controls the R bit on every part; ordered delivery is a
// property of message numbers plus the receiver's reassembly, not of the
// channel itself.
func (q *packetQueue) QueuePacketList(parts [][]byte, reliable bool) []*Packet {
	q.mu.Lock()
	msgNum := q.nextMsg
	q.nextMsg = q.nextMsg.Next()
	q.mu.Unlock()

	out := make([]*Packet, len(parts))
	for i, payload := range parts {
		p := NewData(len(payload), reliable, true)
		p.Payload = append(p.Payload, payload...)

		pos := protocol.PositionMiddle
		switch {
		case len(parts) == 1:
			pos = protocol.PositionOnly
		case i == 0:
			pos = protocol.PositionFirst
		case i == len(parts)-1:
			pos = protocol.PositionLast
		}
		p.WriteMessage(msgNum, pos, uint32(i))
		out[i] = p
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.channels = append(q.channels, &channel{packets: out})
	return out
}

// TakePacket returns the next packet to send in round-robin order among
// the first protocol.ChannelCount channels, dropping any channel that
// has drained. Channels beyond that window simply wait until an earlier
// one drains and is dropped, freeing a rotation slot. Returns false if
// every channel is empty.
func (q *packetQueue) TakePacket() (*Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// scanned counts only skips of channel 0; every other empty channel
	// is removed, which shrinks the slice, so the loop always ends.
	for scanned := 0; len(q.channels) > 0 && scanned <= len(q.channels); {
		window := len(q.channels)
		if window > protocol.ChannelCount {
			window = protocol.ChannelCount
		}
		if q.current >= window {
			q.current = 0
		}
		c := q.channels[q.current]
		if c.empty() {
			if q.current == 0 {
				// channel 0 is never removed, only skipped.
				q.current++
				scanned++
				continue
			}
			q.channels = append(q.channels[:q.current], q.channels[q.current+1:]...)
			continue
		}
		p := c.take()
		q.current++
		return p, true
	}
	return nil, false
}

// IsEmpty reports whether every channel is currently drained.
func (q *packetQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range q.channels {
		if !c.empty() {
			return false
		}
	}
	return true
}
