// Package countoffset implements the packed (count, first_game_offset)
// encoding used by an entry's 8-byte counts field (spec §3).
package countoffset

import (
	"encoding/binary"
	"math/bits"
)

// Size is the on-disk byte length of a Packed value.
const Size = 8

// maxCountBits is the largest value "C" (bits used by count) may take; at
// C == maxCountBits the offset field is zero-width and therefore lost.
const maxCountBits = 58

// Packed is the 8-byte little-endian encoding of (count, first_game_offset).
// Bits [0:6) store C, the number of bits used by count (1..58). Bits
// [6:6+C) store count. The remaining 58-C high bits store first_game_offset,
// or nothing (⊥) when C == 58.
type Packed uint64

func neededBits(v uint64) int {
	if v == 0 {
		return 1
	}
	return bits.Len64(v)
}

// assemble packs (c, count, offset) without any range checking; callers
// must ensure count fits in c bits and offset fits in 58-c bits.
func assemble(c int, count, offset uint64) Packed {
	return Packed(uint64(c) | (count << 6) | (offset << uint(6+c)))
}

func mask(bitsWide int) uint64 {
	if bitsWide <= 0 {
		return 0
	}
	if bitsWide >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(bitsWide)) - 1
}

// Pack encodes count and, if hasOffset, offset, choosing the smallest C that
// fits both. If no C in [1,58] can fit the offset alongside count, C is set
// to 58 and the offset is dropped (count is always preserved as long as it
// fits in 58 bits; counts larger than that saturate, which in practice never
// happens for a game-occurrence counter).
func Pack(count uint64, offset uint64, hasOffset bool) Packed {
	cBits := neededBits(count)
	if cBits > maxCountBits {
		cBits = maxCountBits
		count = mask(maxCountBits)
	}
	if !hasOffset {
		return assemble(maxCountBits, count&mask(maxCountBits), 0)
	}
	for c := cBits; c <= maxCountBits; c++ {
		offBits := maxCountBits - c
		if offBits == 0 {
			if offset == 0 {
				return assemble(c, count, 0)
			}
			continue
		}
		if offset < (uint64(1) << uint(offBits)) {
			return assemble(c, count, offset)
		}
	}
	// Doesn't fit anywhere: keep count, drop offset.
	return assemble(maxCountBits, count&mask(maxCountBits), 0)
}

// Singleton packs a single occurrence first seen at offset.
func Singleton(offset uint64) Packed {
	return Pack(1, offset, true)
}

func (p Packed) cBits() int {
	return int(uint64(p) & mask(6))
}

// Count returns the packed count.
func (p Packed) Count() uint64 {
	c := p.cBits()
	return (uint64(p) >> 6) & mask(c)
}

// Offset returns the packed first_game_offset and whether it survived
// packing (false means ⊥: the offset bits were needed for count instead).
func (p Packed) Offset() (offset uint64, ok bool) {
	c := p.cBits()
	offBits := maxCountBits - c
	if offBits <= 0 {
		return 0, false
	}
	return (uint64(p) >> uint(6+c)) & mask(offBits), true
}

// Combine merges two packed values: counts add, and the offset becomes the
// smaller of the two (⊥ behaves as +∞, so a present offset always wins over
// an absent one).
func Combine(a, b Packed) Packed {
	count := a.Count() + b.Count()
	ao, aok := a.Offset()
	bo, bok := b.Offset()
	switch {
	case aok && bok:
		if bo < ao {
			ao = bo
		}
		return Pack(count, ao, true)
	case aok:
		return Pack(count, ao, true)
	case bok:
		return Pack(count, bo, true)
	default:
		return Pack(count, 0, false)
	}
}

// Encode writes the 8-byte little-endian wire form of p into dst, which
// must be at least Size bytes.
func (p Packed) Encode(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], uint64(p))
}

// Decode reads a Packed from its 8-byte little-endian wire form.
func Decode(src []byte) Packed {
	return Packed(binary.LittleEndian.Uint64(src[0:8]))
}
