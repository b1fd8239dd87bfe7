// Package rangeindex implements the sibling range-index of spec §4.5: a
// sequence of disjoint contiguous spans over a K-rm-sorted entry sequence,
// each covering either one full K-rm equivalence class or up to G entries,
// used to pre-seed equal-range search (§4.6) without scanning the whole
// segment.
package rangeindex

import (
	"encoding/binary"

	"github.com/gotchess/chessposdb/internal/key"
)

// Size is the on-disk byte length of one Range: two 8-byte bounds plus two
// 16-byte keys.
const Size = 8 + 8 + key.Size + key.Size

// Range is one entry of a range index: the closed interval [Low, High] of
// the segment, all K-rm-equal to something within [LowKey, HighKey].
type Range struct {
	Low, High       uint64
	LowKey, HighKey key.Key
}

// Encode writes the 48-byte little-endian wire form of r into dst.
func (r Range) Encode(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], r.Low)
	binary.LittleEndian.PutUint64(dst[8:16], r.High)
	r.LowKey.Encode(dst[16 : 16+key.Size])
	r.HighKey.Encode(dst[16+key.Size : 16+2*key.Size])
}

// Decode reads a Range from its 48-byte little-endian wire form.
func Decode(src []byte) Range {
	return Range{
		Low:     binary.LittleEndian.Uint64(src[0:8]),
		High:    binary.LittleEndian.Uint64(src[8:16]),
		LowKey:  key.Decode(src[16 : 16+key.Size]),
		HighKey: key.Decode(src[16+key.Size : 16+2*key.Size]),
	}
}

// Contains reports whether k's K-rm value falls within [LowKey, HighKey].
func (r Range) Contains(k key.Key) bool {
	return key.CompareRM(r.LowKey, k) <= 0 && key.CompareRM(k, r.HighKey) <= 0
}

// Find binary-searches ranges (sorted by LowKey under K-rm, per the
// segment invariant) for the one range whose bounds contain k. Ranges must
// be non-overlapping and sorted, as produced by Builder.
func Find(ranges []Range, k key.Key) (Range, bool) {
	lo, hi := 0, len(ranges)
	for lo < hi {
		mid := lo + (hi-lo)/2
		switch {
		case key.CompareRM(k, ranges[mid].LowKey) < 0:
			hi = mid
		case key.CompareRM(k, ranges[mid].HighKey) > 0:
			lo = mid + 1
		default:
			return ranges[mid], true
		}
	}
	return Range{}, false
}
