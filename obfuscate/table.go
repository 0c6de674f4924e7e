// Package obfuscate implements the transport's injectable per-connection
// payload transform table (spec.md §4.9, design note §9: "a small
// function table per connection, not process-wide state"). No teacher
// package covers this; the default transforms are simple involutive XOR
// keystreams, grounded on the spec's requirement that they be invertible
// and stateless.
package obfuscate

import "github.com/nullbyte-dev/rudt/protocol"

// Transform mutates a payload in place. It must be involutive (applying
// it twice is the identity) so that the sender's transform doubles as
// the receiver's inverse, and stateless, so it is safe to call
// concurrently from packets belonging to different connections.
type Transform func([]byte)

// Table holds one Transform per obfuscation level, indexed by
// protocol.ObfuscationLevel. Level 0 is always identity.
type Table [4]Transform

// Transform returns the function registered for level, or nil for level
// 0 / an out-of-range level, which callers treat as identity.
func (t Table) Transform(level protocol.ObfuscationLevel) Transform {
	if level == protocol.NoObfuscation || int(level) >= len(t) {
		return nil
	}
	return t[level]
}

// keystreams are fixed per-level XOR keys long enough to avoid an
// obviously short repeat on typical payload sizes. They exist to make
// wire bytes non-obvious to a casual observer, not to provide
// cryptographic confidentiality.
var keystreams = [4][]byte{
	{},
	{0x81, 0xa2, 0x4b, 0xe3, 0x19, 0x7c, 0xd5, 0x06},
	{0x5e, 0xc7, 0x33, 0x9a, 0xf1, 0x28, 0x64, 0xdb, 0x0f, 0x87},
	{0x2d, 0x91, 0xc4, 0x6a, 0x3f, 0xb8, 0x15, 0xe0, 0x77, 0xac, 0x50, 0x39},
}

func xorWith(key []byte) Transform {
	return func(buf []byte) {
		for i := range buf {
			buf[i] ^= key[i%len(key)]
		}
	}
}

// Default returns the transport's built-in obfuscation table: identity
// at level 0 and one fixed XOR keystream per remaining level.
func Default() Table {
	return Table{
		protocol.NoObfuscation: nil,
		protocol.ObfuscationL1: xorWith(keystreams[1]),
		protocol.ObfuscationL2: xorWith(keystreams[2]),
		protocol.ObfuscationL3: xorWith(keystreams[3]),
	}
}
