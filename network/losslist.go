package network

import (
	"sync"

	"github.com/nullbyte-dev/rudt/protocol"
)

// lossList is a sorted set of outstanding sequence numbers, used on both
// the send side (sequence numbers declared lost and awaiting
// retransmission) and the receive side (sequence numbers skipped over by an
// out-of-order arrival, awaiting a late or lost retransmission).
//
// Grounded on the original udt SendQueue/Connection member comments
// describing a sorted "loss list"; the teacher has no equivalent, so this
// is a small from-scratch structure kept in the teacher's style of a
// mutex-guarded slice rather than reaching for a heap package the example
// pack never imports for this purpose.
type lossList struct {
	mu   sync.Mutex
	seqs []protocol.Sequence
}

func newLossList() *lossList {
	return &lossList{}
}

// Insert adds s to the list if it is not already present, keeping the
// list sorted in forward cyclic order (protocol.Sequence.Less). Returns
// true if s was newly inserted.
func (l *lossList) Insert(s protocol.Sequence) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.insertLocked(s)
}

func (l *lossList) insertLocked(s protocol.Sequence) bool {
	i := 0
	for ; i < len(l.seqs); i++ {
		if l.seqs[i] == s {
			return false
		}
		if s.Less(l.seqs[i]) {
			break
		}
	}
	l.seqs = append(l.seqs, 0)
	copy(l.seqs[i+1:], l.seqs[i:])
	l.seqs[i] = s
	return true
}

// Remove deletes s from the list if present, returning true if it was.
func (l *lossList) Remove(s protocol.Sequence) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, v := range l.seqs {
		if v == s {
			l.seqs = append(l.seqs[:i], l.seqs[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveRange deletes every sequence number in [lo, hi] (cyclic,
// inclusive) from the list.
func (l *lossList) RemoveRange(lo, hi protocol.Sequence) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.seqs[:0:0]
	for _, v := range l.seqs {
		if !v.InRange(lo, hi) {
			kept = append(kept, v)
		}
	}
	l.seqs = kept
}

// Contains reports whether s is present in the list.
func (l *lossList) Contains(s protocol.Sequence) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, v := range l.seqs {
		if v == s {
			return true
		}
	}
	return false
}

// PopMin removes and returns the element nearest the front of the sorted
// order, along with whether the list was non-empty.
func (l *lossList) PopMin() (protocol.Sequence, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.seqs) == 0 {
		return 0, false
	}
	s := l.seqs[0]
	l.seqs = l.seqs[1:]
	return s, true
}

// Len returns the number of entries currently in the list.
func (l *lossList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seqs)
}

// Snapshot returns a copy of the list's contents in sorted order.
func (l *lossList) Snapshot() []protocol.Sequence {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]protocol.Sequence, len(l.seqs))
	copy(out, l.seqs)
	return out
}
