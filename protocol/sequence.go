package protocol

// Sequence is a 27-bit unsigned sequence number that wraps modulo 2^27.
// Ordering uses forward-direction (cyclic) arithmetic: a < b iff
// (b - a) mod 2^27 lies in the open interval (0, 2^26). Equality and the
// halfway point (exactly 2^26) are boundary cases; both are treated as
// "not less than" so that Less is a strict, anti-symmetric relation
// everywhere except the ambiguous halfway point itself, which spec.md §3
// explicitly calls out as ambiguous and requires to be handled
// consistently rather than correctly in an absolute sense.
type Sequence uint32

const (
	// SequenceBits is the width of the wire field.
	SequenceBits = 27

	// SequenceModulus is 2^27, the point at which a Sequence wraps to 0.
	SequenceModulus = 1 << SequenceBits

	// SequenceMask keeps a uint32 within the valid 27-bit range.
	SequenceMask = SequenceModulus - 1

	// halfway is the ambiguous boundary distance; a distance of exactly
	// this value is defined as "not less than" in either direction.
	halfway = SequenceModulus / 2
)

// Mask truncates s to the valid 27-bit range.
func (s Sequence) Mask() Sequence {
	return s & SequenceMask
}

// Next returns the sequence number following s, wrapping at 2^27.
func (s Sequence) Next() Sequence {
	return (s + 1) & SequenceMask
}

// Add returns s advanced by n, wrapping at 2^27. n may be negative.
func (s Sequence) Add(n int32) Sequence {
	return Sequence(int64(s) + int64(n)).Mask()
}

// Distance returns the forward distance from s to other, i.e. the
// non-negative number of increments needed to reach other starting at s,
// in the range [0, 2^27).
func (s Sequence) Distance(other Sequence) uint32 {
	return uint32((other - s) & SequenceMask)
}

// Less reports whether s precedes other in forward (cyclic) order: the
// forward distance from s to other is in the open interval (0, 2^26).
func (s Sequence) Less(other Sequence) bool {
	d := s.Distance(other)
	return d > 0 && d < halfway
}

// LessOrEqual reports whether s == other or s.Less(other).
func (s Sequence) LessOrEqual(other Sequence) bool {
	return s == other || s.Less(other)
}

// InRange reports whether s lies in the forward-closed interval [lo, hi],
// i.e. lo <= s <= hi in cyclic order (with lo possibly equal to hi).
func (s Sequence) InRange(lo, hi Sequence) bool {
	if lo == hi {
		return s == lo
	}
	return (lo.LessOrEqual(s) && s.LessOrEqual(hi))
}

// MessageNumber is a 30-bit unsigned number assigned per ordered message
// by the sender, monotonic per connection and wrapping modulo 2^30.
type MessageNumber uint32

const (
	MessageNumberBits    = 30
	MessageNumberModulus = 1 << MessageNumberBits
	MessageNumberMask    = MessageNumberModulus - 1
)

// Next returns the message number following m, wrapping at 2^30.
func (m MessageNumber) Next() MessageNumber {
	return (m + 1) & MessageNumberMask
}
