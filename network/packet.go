package network

import (
	"encoding/binary"
	"fmt"

	"github.com/nullbyte-dev/rudt/protocol"
)

var be = binary.BigEndian

// ErrHeaderTooShort is returned by FromBytes when the buffer is shorter
// than the minimum header for the kind of packet it claims to be.
var ErrHeaderTooShort = fmt.Errorf("rudt: header too short")

// ErrReservedBits is returned by FromBytes when reserved bits are set in
// a way that cannot be interpreted.
var ErrReservedBits = fmt.Errorf("rudt: reserved bits set")

// Packet is the wire packet of the transport: a tagged union of a data
// packet and a control packet sharing one header view, discriminated by
// Control, per spec.md §9 ("Inheritance in packet types ... express as a
// tagged union with a shared header view, not a class hierarchy").
//
// Mutation of the header fields (WriteSequenceNumber, WriteMessage,
// obfuscation) is legal up to the moment Marshal is called: committed is
// only ever flipped by Marshal / FromBytes, modeling the "mutable through
// const header fields" note by separating committed wire bytes
// (produced by Marshal) from the uncommitted struct fields a sender
// thread is still free to mutate.
type Packet struct {
	Control bool

	// Data packet fields, valid when !Control.
	Reliable          bool
	HasMessage        bool
	Obfuscation       protocol.ObfuscationLevel
	Sequence          protocol.Sequence
	Position          protocol.Position
	MessageNumber     protocol.MessageNumber
	MessagePartNumber uint32

	// Control packet fields, valid when Control.
	Type protocol.ControlType

	// Payload holds the application payload for a data packet, or the
	// type-specific body for a control packet. It is never obfuscated
	// for control packets.
	Payload []byte

	committed bool
}

// NewData creates a data packet with the given payload capacity
// preallocated. reliable and partOfMessage set the R and M bits; the
// message header fields must still be assigned with WriteMessage before
// the packet is queued if partOfMessage is true.
func NewData(payloadCap int, reliable, partOfMessage bool) *Packet {
	return &Packet{
		Reliable:   reliable,
		HasMessage: partOfMessage,
		Payload:    make([]byte, 0, payloadCap),
	}
}

// NewControl creates a control packet of the given type.
func NewControl(t protocol.ControlType, body []byte) *Packet {
	return &Packet{
		Control: true,
		Type:    t,
		Payload: body,
	}
}

// WriteSequenceNumber stamps the sequence number field. Per spec.md §4.1
// this is done at transmit time, not at enqueue time, which is why it is
// a plain mutator rather than a constructor argument.
func (p *Packet) WriteSequenceNumber(s protocol.Sequence) {
	p.Sequence = s
}

// WriteMessage stamps the message number, position and part number of a
// data packet that is part of a message.
func (p *Packet) WriteMessage(msgNum protocol.MessageNumber, pos protocol.Position, part uint32) {
	p.HasMessage = true
	p.MessageNumber = msgNum
	p.Position = pos
	p.MessagePartNumber = part
}

// Obfuscate applies transform to the payload in place and records level
// in the header. transform must be invertible and stateless; level 0
// (protocol.NoObfuscation) should never be passed a non-nil transform by
// callers since it is defined as identity.
func (p *Packet) Obfuscate(level protocol.ObfuscationLevel, transform func([]byte)) {
	p.Obfuscation = level
	if transform != nil && level != protocol.NoObfuscation {
		transform(p.Payload)
	}
}

// HeaderSize returns the number of header bytes this packet will occupy
// on the wire given its current Control/HasMessage flags.
func (p *Packet) HeaderSize() int {
	if p.Control {
		return protocol.HeaderWordSize
	}
	if p.HasMessage {
		return protocol.HeaderWordSize + protocol.MessageHeaderSize
	}
	return protocol.HeaderWordSize
}

// Marshal commits and serializes the packet to wire bytes.
func (p *Packet) Marshal() []byte {
	p.committed = true

	buf := make([]byte, p.HeaderSize()+len(p.Payload))

	if p.Control {
		var word uint32 = 1 << 31
		word |= uint32(p.Type&0x7fff) << 16
		be.PutUint32(buf[0:4], word)
		copy(buf[protocol.HeaderWordSize:], p.Payload)
		return buf
	}

	var word uint32
	if p.Reliable {
		word |= 1 << 30
	}
	if p.HasMessage {
		word |= 1 << 29
	}
	word |= uint32(p.Obfuscation&0x3) << 27
	word |= uint32(p.Sequence) & protocol.SequenceMask
	be.PutUint32(buf[0:4], word)

	off := protocol.HeaderWordSize
	if p.HasMessage {
		var word2 uint32
		word2 |= uint32(p.Position&0x3) << 30
		word2 |= uint32(p.MessageNumber) & protocol.MessageNumberMask
		be.PutUint32(buf[off:off+4], word2)
		be.PutUint32(buf[off+4:off+8], p.MessagePartNumber)
		off += protocol.MessageHeaderSize
	}

	copy(buf[off:], p.Payload)
	return buf
}

// FromBytes parses a received datagram into a Packet. It returns
// ErrHeaderTooShort or ErrReservedBits for malformed input; per
// spec.md §4.1 the receiver path drops such packets silently, it does
// not treat them as a reason to tear down the connection.
func FromBytes(buf []byte) (*Packet, error) {
	if len(buf) < protocol.HeaderWordSize {
		return nil, ErrHeaderTooShort
	}

	word := be.Uint32(buf[0:4])
	control := word&(1<<31) != 0

	if control {
		typ := protocol.ControlType((word >> 16) & 0x7fff)
		switch typ {
		case protocol.ControlACK, protocol.ControlHandshake, protocol.ControlHandshakeACK, protocol.ControlHandshakeRequest:
		default:
			return nil, ErrReservedBits
		}
		return &Packet{
			Control:   true,
			Type:      typ,
			Payload:   append([]byte(nil), buf[protocol.HeaderWordSize:]...),
			committed: true,
		}, nil
	}

	p := &Packet{
		Reliable:    word&(1<<30) != 0,
		HasMessage:  word&(1<<29) != 0,
		Obfuscation: protocol.ObfuscationLevel((word >> 27) & 0x3),
		Sequence:    protocol.Sequence(word & protocol.SequenceMask),
		committed:   true,
	}

	off := protocol.HeaderWordSize
	if p.HasMessage {
		if len(buf) < off+protocol.MessageHeaderSize {
			return nil, ErrHeaderTooShort
		}
		word2 := be.Uint32(buf[off : off+4])
		p.Position = protocol.Position((word2 >> 30) & 0x3)
		p.MessageNumber = protocol.MessageNumber(word2 & protocol.MessageNumberMask)
		p.MessagePartNumber = be.Uint32(buf[off+4 : off+8])
		off += protocol.MessageHeaderSize
	}

	p.Payload = append([]byte(nil), buf[off:]...)
	return p, nil
}
