// Package entry implements the 24-byte (key, packed counts) record that is
// the unit of storage in a segment file (spec §3, §6).
package entry

import (
	"github.com/gotchess/chessposdb/internal/countoffset"
	"github.com/gotchess/chessposdb/internal/key"
)

// Size is the on-disk byte length of an Entry: a 16-byte Key followed by an
// 8-byte packed (count, first_game_offset).
const Size = key.Size + countoffset.Size

// Entry is trivially copyable and has a fixed little-endian layout.
type Entry struct {
	Key    key.Key
	Counts countoffset.Packed
}

// New builds a singleton entry: one occurrence of k, first seen at offset.
func New(k key.Key, offset uint64) Entry {
	return Entry{Key: k, Counts: countoffset.Singleton(offset)}
}

// Combine merges two K-full-equal entries (spec §4.4's dedup step).
func Combine(a, b Entry) Entry {
	return Entry{Key: a.Key, Counts: countoffset.Combine(a.Counts, b.Counts)}
}

// Encode writes the 24-byte little-endian wire form of e into dst, which
// must be at least Size bytes.
func (e Entry) Encode(dst []byte) {
	e.Key.Encode(dst[0:key.Size])
	e.Counts.Encode(dst[key.Size:Size])
}

// Decode reads an Entry from its 24-byte little-endian wire form.
func Decode(src []byte) Entry {
	return Entry{
		Key:    key.Decode(src[0:key.Size]),
		Counts: countoffset.Decode(src[key.Size:Size]),
	}
}

// LessKey reports whether a sorts before b under K-full, ignoring their
// packed counts entirely. Two entries with equal keys compare equal here
// even if their counts differ — used by the k-way merge (spec §4.4),
// where merge-level ties are broken by input index rather than by count.
func LessKey(a, b Entry) bool {
	return key.CompareFull(a.Key, b.Key) < 0
}

// EqualKey reports whether a and b share the same K-full key (irrespective
// of their counts), the condition under which a deduplicating merge
// combines them (spec §4.4, §4.7).
func EqualKey(a, b Entry) bool {
	return key.CompareFull(a.Key, b.Key) == 0
}

// LessFull reports whether a sorts before b under K-full, breaking ties by
// ascending first_game_offset so that, for entries compared during the
// ingest sort stage, the earliest-seen game wins a later dedup pass
// (spec §4.8).
func LessFull(a, b Entry) bool {
	if c := key.CompareFull(a.Key, b.Key); c != 0 {
		return c < 0
	}
	ao, aok := a.Counts.Offset()
	bo, bok := b.Counts.Offset()
	switch {
	case aok && bok:
		return ao < bo
	case aok:
		return true
	case bok:
		return false
	default:
		return false
	}
}
