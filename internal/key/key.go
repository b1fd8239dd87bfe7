// Package key implements the 16-byte position key and its three total
// orderings (K-rm, K+rm, K-full).
package key

import "encoding/binary"

// GameLevel is the two-bit level tag packed into H[3], above the reverse move.
type GameLevel uint8

const (
	Human GameLevel = iota
	Engine
	Server
)

func (l GameLevel) String() string {
	switch l {
	case Human:
		return "human"
	case Engine:
		return "engine"
	case Server:
		return "server"
	default:
		return "unknown"
	}
}

// GameResult is the two-bit result tag packed into H[3], above the level.
type GameResult uint8

const (
	Win GameResult = iota
	Loss
	Draw
)

func (r GameResult) String() string {
	switch r {
	case Win:
		return "win"
	case Loss:
		return "loss"
	case Draw:
		return "draw"
	default:
		return "unknown"
	}
}

const (
	reverseMoveBits = 27
	reverseMoveMask = (uint32(1) << reverseMoveBits) - 1
	levelShift      = reverseMoveBits
	levelMask       = uint32(3) << levelShift
	resultShift     = reverseMoveBits + 2
	resultMask      = uint32(3) << resultShift
)

// Size is the on-disk byte length of a Key.
const Size = 16

// Key is the 16-byte position key: four 32-bit lanes, H[0] most significant.
// The low 27 bits of H[3] carry a packed reverse move; above that two bits
// of game level and two bits of game result.
type Key struct {
	H [4]uint32
}

// ReverseMove returns the 27-bit packed reverse move carried in H[3].
func (k Key) ReverseMove() uint32 { return k.H[3] & reverseMoveMask }

// Level returns the game-level tag carried in H[3].
func (k Key) Level() GameLevel { return GameLevel((k.H[3] & levelMask) >> levelShift) }

// Result returns the game-result tag carried in H[3].
func (k Key) Result() GameResult { return GameResult((k.H[3] & resultMask) >> resultShift) }

// WithTags returns a copy of k with its reverse-move/level/result bits
// replaced. Used when constructing keys from an external collaborator's
// (board-hash, reverse-move, level, result) tuple.
func (k Key) WithTags(reverseMove uint32, level GameLevel, result GameResult) Key {
	out := k
	out.H[3] = (k.H[3] &^ (reverseMoveMask | levelMask | resultMask)) |
		(reverseMove & reverseMoveMask) |
		(uint32(level)<<levelShift)&levelMask |
		(uint32(result)<<resultShift)&resultMask
	return out
}

// Encode writes the 16-byte little-endian wire form of k into dst, which
// must be at least Size bytes.
func (k Key) Encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], k.H[0])
	binary.LittleEndian.PutUint32(dst[4:8], k.H[1])
	binary.LittleEndian.PutUint32(dst[8:12], k.H[2])
	binary.LittleEndian.PutUint32(dst[12:16], k.H[3])
}

// Decode reads a Key from its 16-byte little-endian wire form.
func Decode(src []byte) Key {
	var k Key
	k.H[0] = binary.LittleEndian.Uint32(src[0:4])
	k.H[1] = binary.LittleEndian.Uint32(src[4:8])
	k.H[2] = binary.LittleEndian.Uint32(src[8:12])
	k.H[3] = binary.LittleEndian.Uint32(src[12:16])
	return k
}

// CompareRM orders two keys under K-rm: lexicographic on H[0..2] only, so
// two keys that differ only in reverse-move/level/result bits compare equal.
func CompareRM(a, b Key) int {
	for i := 0; i < 3; i++ {
		if a.H[i] != b.H[i] {
			if a.H[i] < b.H[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// EqualRM reports whether a and b are K-rm-equal.
func EqualRM(a, b Key) bool { return CompareRM(a, b) == 0 }

// CompareWRM orders two keys under K+rm: K-rm, then tie-break on the
// reverse-move bits of H[3].
func CompareWRM(a, b Key) int {
	if c := CompareRM(a, b); c != 0 {
		return c
	}
	ar, br := a.ReverseMove(), b.ReverseMove()
	switch {
	case ar < br:
		return -1
	case ar > br:
		return 1
	default:
		return 0
	}
}

// EqualWRM reports whether a and b are K+rm-equal.
func EqualWRM(a, b Key) bool { return CompareWRM(a, b) == 0 }

// CompareFull orders two keys under K-full: lexicographic on all four lanes.
func CompareFull(a, b Key) int {
	if c := CompareRM(a, b); c != 0 {
		return c
	}
	switch {
	case a.H[3] < b.H[3]:
		return -1
	case a.H[3] > b.H[3]:
		return 1
	default:
		return 0
	}
}

// EqualFull reports whether a and b are K-full-equal.
func EqualFull(a, b Key) bool { return CompareFull(a, b) == 0 }

// Select classifies an entry found in a K-rm equal-range against the query
// key, per spec §4.7.
type Select int

const (
	// All keeps every K-rm-equal entry.
	All Select = iota
	// Continuations keeps entries that are also K+rm-equal (share the last move).
	Continuations
	// Transpositions keeps K-rm-equal entries that are NOT K+rm-equal.
	Transpositions
)

// Matches reports whether candidate, already known to be K-rm-equal to
// query, should be kept under sel.
func Matches(sel Select, query, candidate Key) bool {
	switch sel {
	case All:
		return true
	case Continuations:
		return EqualWRM(query, candidate)
	case Transpositions:
		return !EqualWRM(query, candidate)
	default:
		return false
	}
}
