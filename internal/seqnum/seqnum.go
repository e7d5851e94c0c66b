// Package seqnum centralizes 16-bit modular sequence-number arithmetic.
//
// uTP sequence and ack numbers wrap at 2^16. Every comparison between two
// sequence numbers anywhere in this module must go through Dist, never a
// raw integer comparison, or wraparound silently produces the wrong
// ordering.
package seqnum

// Num is a uTP sequence or ack number, always reduced mod 2^16.
type Num uint16

// Bit16 reduces x into the 16-bit sequence space.
func Bit16(x uint32) Num {
	return Num(uint16(x))
}

// Add returns bit16(n + delta).
func (n Num) Add(delta int32) Num {
	return Num(uint16(int32(n) + delta))
}

// Dist returns bit16(a - b), the forward distance from b to a, in [0, 65535].
// Dist(a, b) == 0 iff a == b. Dist(a, b) + Dist(b, a) == 65536 whenever a != b.
func Dist(a, b Num) uint16 {
	return uint16(a) - uint16(b)
}

// Less reports whether a is strictly "older" than b within a window of
// width less than half the sequence space (the conventional assumption
// for TCP-like modular comparisons): a is older than b when the forward
// distance from a to b is smaller than the distance from b to a.
func Less(a, b Num) bool {
	if a == b {
		return false
	}
	return Dist(b, a) < Dist(a, b)
}

// LessOrEqual reports whether a == b or a is older than b.
func LessOrEqual(a, b Num) bool {
	return a == b || Less(a, b)
}
