package segment

import (
	"github.com/gotchess/chessposdb/internal/countoffset"
	"github.com/gotchess/chessposdb/internal/entry"
	"github.com/gotchess/chessposdb/internal/key"
)

// Stats is stats[game_level][game_result] from spec §4.7: one accumulator
// bucket per (level, result) pair, each holding a combined
// (count, first_game_offset).
type Stats [3][3]countoffset.Packed

// NewStats returns a Stats with every bucket seeded to the ⊥ (absent-offset)
// sentinel. A raw zero-valued Packed decodes as cBits()==0, which Offset()
// misreads as "offset 0, present" rather than ⊥ — seeding explicitly with
// Pack(0, 0, false) avoids a zero bucket ever winning Combine's
// smaller-offset tie-break against real data.
func NewStats() Stats {
	var s Stats
	empty := countoffset.Pack(0, 0, false)
	for l := range s {
		for r := range s[l] {
			s[l][r] = empty
		}
	}
	return s
}

// Add folds e's packed counts into bucket [e.Key.Level()][e.Key.Result()].
func (s *Stats) Add(e entry.Entry) {
	l, r := e.Key.Level(), e.Key.Result()
	s[l][r] = countoffset.Combine(s[l][r], e.Counts)
}

// Accumulate folds every entry in entries matching sel against query into
// a fresh Stats bucket set.
func Accumulate(entries []entry.Entry, query key.Key, sel key.Select) Stats {
	s := NewStats()
	for _, e := range entries {
		if key.Matches(sel, query, e.Key) {
			s.Add(e)
		}
	}
	return s
}
