package search

import (
	"github.com/gotchess/chessposdb/internal/entry"
	"github.com/gotchess/chessposdb/internal/key"
	"github.com/gotchess/chessposdb/internal/rangeindex"
)

// keyState is one in-flight key's search bracket.
type keyState struct {
	key                 key.Key
	lo, hi              int64
	lowValue, highValue key.Key
	done                bool
	result              Interval
}

// EqualRangeBatch resolves the equal-range interval of every key in keys
// against r, in the keys' original order. When crossUpdate is true, every
// window read performed while resolving one key is also used to tighten
// the brackets of every other still-pending key whose bracket overlaps it
// (spec §4.6's cross-update optimisation); this never affects correctness,
// only how many reads the remaining keys need.
func EqualRangeBatch(r Reader, idx []rangeindex.Range, keys []key.Key, strategy Strategy, crossUpdate bool) ([]Interval, error) {
	spanLen, err := r.Len()
	if err != nil {
		return nil, err
	}

	states := make([]*keyState, len(keys))
	for i, k := range keys {
		lo, hi, lv, hv, err := seed(r, spanLen, idx, k)
		if err != nil {
			return nil, err
		}
		states[i] = &keyState{key: k, lo: lo, hi: hi, lowValue: lv, highValue: hv}
		if lo >= hi {
			states[i].done = true
			states[i].result = Interval{lo, lo}
		}
	}

	if !crossUpdate {
		for _, st := range states {
			if st.done {
				continue
			}
			iv, err := refine(r, spanLen, st.lo, st.hi, st.lowValue, st.highValue, st.key, strategy)
			if err != nil {
				return nil, err
			}
			st.result, st.done = iv, true
		}
		return collect(states), nil
	}

	W := int64(windowElems())
	for {
		cur := firstPending(states)
		if cur == nil {
			break
		}
		if cur.hi-cur.lo <= W {
			// [cur.lo, cur.hi) is cur's entire remaining bracket, not a
			// sub-window of it (see refine's identical case in search.go).
			buf := make([]entry.Entry, cur.hi-cur.lo)
			n, err := r.ReadAt(buf, cur.lo)
			if err != nil {
				return nil, err
			}
			buf = buf[:n]
			if len(buf) == 0 {
				cur.result, cur.done = Interval{cur.lo, cur.lo}, true
				continue
			}
			a, b := equalRangeInBuffer(buf, cur.key)
			if a == b {
				cur.result, cur.done = Interval{cur.lo + int64(a), cur.lo + int64(a)}, true
				applyCrossUpdate(states, cur, cur.lo, buf)
				continue
			}
			iv, err := resolveMatch(r, spanLen, cur.lo, buf, a, b, cur.key)
			if err != nil {
				return nil, err
			}
			cur.result, cur.done = iv, true
			applyCrossUpdate(states, cur, cur.lo, buf)
			continue
		}

		m := midpoint(strategy, cur.lo, cur.hi, cur.lowValue, cur.highValue, cur.key)
		winLo := m - W/2
		if winLo < cur.lo {
			winLo = cur.lo
		}
		winHi := winLo + W
		if winHi > cur.hi {
			winHi = cur.hi
			winLo = winHi - W
			if winLo < cur.lo {
				winLo = cur.lo
			}
		}
		buf := make([]entry.Entry, winHi-winLo)
		n, err := r.ReadAt(buf, winLo)
		if err != nil {
			return nil, err
		}
		buf = buf[:n]
		if len(buf) == 0 {
			cur.result, cur.done = Interval{cur.lo, cur.lo}, true
			continue
		}

		a, b := equalRangeInBuffer(buf, cur.key)
		if a < b {
			iv, err := resolveMatch(r, spanLen, winLo, buf, a, b, cur.key)
			if err != nil {
				return nil, err
			}
			cur.result, cur.done = iv, true
			applyCrossUpdate(states, cur, winLo, buf)
			continue
		}

		// a == b: no match anywhere in this window. Narrow cur to
		// whichever side could still hold the run, same as refine.
		if a == 0 {
			cur.hi, cur.highValue = winLo, buf[0].Key
		} else {
			cur.lo, cur.lowValue = winHi, buf[len(buf)-1].Key
		}
		applyCrossUpdate(states, cur, winLo, buf)
	}
	return collect(states), nil
}

// applyBuffer tightens (or resolves) st using a buffer already known to
// start at absolute index bufLo. This only ever narrows st's bracket or
// fully resolves it from a genuine two-sided match; it never collapses an
// unresolved edge to the buffer's edge (st isn't necessarily cur this
// round, so there is no immediate growBoundary call to make here — cur's
// own turn in the caller's loop will grow whatever this leaves open).
func applyBuffer(st *keyState, bufLo int64, buf []entry.Entry) {
	if len(buf) == 0 {
		return
	}
	a, b := equalRangeInBuffer(buf, st.key)
	if a == b {
		// No match anywhere in buf: it rules out only the side of st's
		// bracket that buf actually covers, never both at once.
		if a == 0 {
			if bufLo < st.hi {
				st.hi, st.highValue = bufLo, buf[0].Key
			}
			return
		}
		end := bufLo + int64(len(buf))
		if end > st.lo {
			st.lo, st.lowValue = end, buf[len(buf)-1].Key
		}
		return
	}
	loInside := a > 0
	hiInside := b < len(buf)
	if loInside && hiInside {
		st.result, st.done = Interval{bufLo + int64(a), bufLo + int64(b)}, true
		return
	}
	if loInside {
		st.lo, st.lowValue = bufLo+int64(a), st.key
	} else {
		st.lo, st.lowValue = bufLo, buf[0].Key
	}
	if hiInside {
		st.hi, st.highValue = bufLo+int64(b), st.key
	} else {
		st.hi, st.highValue = bufLo+int64(len(buf)), buf[len(buf)-1].Key
	}
}

// applyCrossUpdate uses a buffer fetched while resolving `skip` to tighten
// every other still-pending key whose bracket overlaps [bufLo, bufLo+len).
func applyCrossUpdate(states []*keyState, skip *keyState, bufLo int64, buf []entry.Entry) {
	bufHi := bufLo + int64(len(buf))
	for _, st := range states {
		if st == skip || st.done {
			continue
		}
		lo, hi := st.lo, st.hi
		if lo < bufLo {
			lo = bufLo
		}
		if hi > bufHi {
			hi = bufHi
		}
		if lo >= hi {
			continue
		}
		applyBuffer(st, bufLo, buf)
	}
}

func firstPending(states []*keyState) *keyState {
	for _, st := range states {
		if !st.done {
			return st
		}
	}
	return nil
}

func collect(states []*keyState) []Interval {
	out := make([]Interval, len(states))
	for i, st := range states {
		out[i] = st.result
	}
	return out
}
