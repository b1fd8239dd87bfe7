// Package search implements the equal-range search of spec §4.6: locate,
// within a K-rm-sorted on-disk span, the contiguous interval of entries
// K-rm-equal to a query key, optionally pre-seeded from a rangeindex and
// optionally sharing window reads across a batch of keys (cross-update).
package search

import (
	"github.com/gotchess/chessposdb/internal/entry"
	"github.com/gotchess/chessposdb/internal/key"
	"github.com/gotchess/chessposdb/internal/rangeindex"
)

// Strategy selects how the search picks its next probe point.
type Strategy int

const (
	Interpolation Strategy = iota
	Binary
)

// windowBytes is the target size, in bytes, of a single buffered read
// (spec §4.6: "32KiB").
const windowBytes = 32 * 1024

func windowElems() int {
	w := windowBytes / entry.Size
	if w < 3 {
		return 3
	}
	return w
}

// Reader is the random-access, element-counted source equal-range search
// runs over — satisfied by *typedio.Span[entry.Entry].
type Reader interface {
	Len() (int64, error)
	ReadAt(dst []entry.Entry, off int64) (int, error)
}

// Interval is a half-open [Lo, Hi) range of entry indices.
type Interval struct {
	Lo, Hi int64
}

func (iv Interval) Empty() bool { return iv.Lo >= iv.Hi }

// equalRangeInBuffer returns the [a, b) sub-range of buf (assumed sorted
// under K-rm) that is K-rm-equal to k.
func equalRangeInBuffer(buf []entry.Entry, k key.Key) (a, b int) {
	lo, hi := 0, len(buf)
	for lo < hi {
		mid := (lo + hi) / 2
		if key.CompareRM(buf[mid].Key, k) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	a = lo
	lo, hi = a, len(buf)
	for lo < hi {
		mid := (lo + hi) / 2
		if key.CompareRM(buf[mid].Key, k) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	b = lo
	return a, b
}

// rmValue maps a Key's K-rm-relevant bits onto a rough float64
// approximation (its lane weights overlap, so it does not strictly follow
// K-rm order), used only as the interpolation strategy's arithmetic
// hook; it never affects correctness, only how good a guess the first
// probe is (spec §4.6's "conversion hook to make non-integer keys
// arithmetic").
func rmValue(k key.Key) float64 {
	return float64(k.H[0])*1e18 + float64(k.H[1])*1e9 + float64(k.H[2])
}

func interpolateMidpoint(lo, hi int64, lowValue, highValue, k key.Key) int64 {
	lv, hv, kv := rmValue(lowValue), rmValue(highValue), rmValue(k)
	if hv <= lv {
		return lo + (hi-lo)/2
	}
	frac := (kv - lv) / (hv - lv)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	span := hi - lo - 1
	if span < 0 {
		span = 0
	}
	m := lo + int64(frac*float64(span))
	if m < lo {
		m = lo
	}
	if m >= hi {
		m = hi - 1
	}
	return m
}

func midpoint(strategy Strategy, lo, hi int64, lowValue, highValue, k key.Key) int64 {
	if strategy == Interpolation {
		return interpolateMidpoint(lo, hi, lowValue, highValue, k)
	}
	return lo + (hi-lo)/2
}

// growBoundaryLeft finds the true left boundary of the run of k-equal
// values known to start at or before centerLo, by doubling a probe window
// leftward until a non-equal value is observed, then resolving the exact
// boundary in memory from the last-read buffer.
func growBoundaryLeft(r Reader, centerLo int64, k key.Key) (int64, error) {
	const floor = int64(0)
	step := int64(windowElems())
	probe := centerLo
	for {
		start := probe - step
		if start < floor {
			start = floor
		}
		n := probe - start
		if n <= 0 {
			return floor, nil
		}
		buf := make([]entry.Entry, n)
		read, err := r.ReadAt(buf, start)
		if err != nil {
			return 0, err
		}
		buf = buf[:read]
		allEqual := true
		for _, e := range buf {
			if key.CompareRM(e.Key, k) != 0 {
				allEqual = false
				break
			}
		}
		if allEqual {
			if start == floor {
				return floor, nil
			}
			probe = start
			step *= 2
			continue
		}
		lo2, hi2 := 0, len(buf)
		for lo2 < hi2 {
			mid := (lo2 + hi2) / 2
			if key.CompareRM(buf[mid].Key, k) < 0 {
				lo2 = mid + 1
			} else {
				hi2 = mid
			}
		}
		return start + int64(lo2), nil
	}
}

// growBoundaryRight mirrors growBoundaryLeft, searching rightward up to
// spanLen.
func growBoundaryRight(r Reader, spanLen, centerHi int64, k key.Key) (int64, error) {
	step := int64(windowElems())
	probe := centerHi
	for {
		end := probe + step
		if end > spanLen {
			end = spanLen
		}
		n := end - probe
		if n <= 0 {
			return spanLen, nil
		}
		buf := make([]entry.Entry, n)
		read, err := r.ReadAt(buf, probe)
		if err != nil {
			return 0, err
		}
		buf = buf[:read]
		allEqual := true
		for _, e := range buf {
			if key.CompareRM(e.Key, k) != 0 {
				allEqual = false
				break
			}
		}
		if allEqual {
			if end == spanLen {
				return spanLen, nil
			}
			probe = end
			step *= 2
			continue
		}
		lo2, hi2 := 0, len(buf)
		for lo2 < hi2 {
			mid := (lo2 + hi2) / 2
			if key.CompareRM(buf[mid].Key, k) <= 0 {
				lo2 = mid + 1
			} else {
				hi2 = mid
			}
		}
		return probe + int64(lo2), nil
	}
}

func growOutward(r Reader, spanLen, winLo, winHi int64, k key.Key) (Interval, error) {
	left, err := growBoundaryLeft(r, winLo, k)
	if err != nil {
		return Interval{}, err
	}
	right, err := growBoundaryRight(r, spanLen, winHi, k)
	if err != nil {
		return Interval{}, err
	}
	return Interval{left, right}, nil
}

// seed computes the initial (lo, hi, lowValue, highValue) bracket for key k
// (spec §4.6's pre-seeding step).
func seed(r Reader, spanLen int64, idx []rangeindex.Range, k key.Key) (lo, hi int64, lowValue, highValue key.Key, err error) {
	if len(idx) > 0 {
		rg, ok := rangeindex.Find(idx, k)
		if !ok {
			return spanLen, spanLen, key.Key{}, key.Key{}, nil
		}
		return int64(rg.Low), int64(rg.High) + 1, rg.LowKey, rg.HighKey, nil
	}
	if spanLen == 0 {
		return 0, 0, key.Key{}, key.Key{}, nil
	}
	var ends [1]entry.Entry
	if _, err := r.ReadAt(ends[:], 0); err != nil {
		return 0, 0, key.Key{}, key.Key{}, err
	}
	lowValue = ends[0].Key
	if _, err := r.ReadAt(ends[:], spanLen-1); err != nil {
		return 0, 0, key.Key{}, key.Key{}, err
	}
	highValue = ends[0].Key
	return 0, spanLen, lowValue, highValue, nil
}

// EqualRange locates the interval of entries K-rm-equal to k within r,
// optionally pre-seeded from idx (nil for no index).
func EqualRange(r Reader, idx []rangeindex.Range, k key.Key, strategy Strategy) (Interval, error) {
	spanLen, err := r.Len()
	if err != nil {
		return Interval{}, err
	}
	lo, hi, lowValue, highValue, err := seed(r, spanLen, idx, k)
	if err != nil {
		return Interval{}, err
	}
	return refine(r, spanLen, lo, hi, lowValue, highValue, k, strategy)
}

// resolveMatch turns a confirmed nonempty match buf[a:b] (buf known to span
// [bufLo, bufLo+len(buf))) into a final Interval. An edge of [a,b) that only
// touches the buffer's own edge rather than a genuine value transition is
// not yet the true boundary — the run may continue past it — so that edge
// is grown outward with growBoundaryLeft/growBoundaryRight instead of being
// collapsed to the buffer's edge.
func resolveMatch(r Reader, spanLen, bufLo int64, buf []entry.Entry, a, b int, k key.Key) (Interval, error) {
	loInside, hiInside := a > 0, b < len(buf)
	if loInside && hiInside {
		return Interval{bufLo + int64(a), bufLo + int64(b)}, nil
	}
	if !loInside && !hiInside {
		return growOutward(r, spanLen, bufLo, bufLo+int64(len(buf)), k)
	}
	if loInside {
		trueHi, err := growBoundaryRight(r, spanLen, bufLo+int64(len(buf)), k)
		if err != nil {
			return Interval{}, err
		}
		return Interval{bufLo + int64(a), trueHi}, nil
	}
	trueLo, err := growBoundaryLeft(r, bufLo, k)
	if err != nil {
		return Interval{}, err
	}
	return Interval{trueLo, bufLo + int64(b)}, nil
}

func refine(r Reader, spanLen, lo, hi int64, lowValue, highValue key.Key, k key.Key, strategy Strategy) (Interval, error) {
	W := int64(windowElems())
	for {
		if hi <= lo {
			return Interval{lo, lo}, nil
		}
		if hi-lo <= W {
			// [lo, hi) is the entire remaining bracket, not a sub-window of
			// it, so whatever this read finds is the definitive answer: no
			// match anywhere in it means the key is genuinely absent (or,
			// for an index-seeded bucket spanning one run split across
			// buckets, resolveMatch's grow-outward path below still
			// extends past this bucket's own edges correctly).
			buf := make([]entry.Entry, hi-lo)
			n, err := r.ReadAt(buf, lo)
			if err != nil {
				return Interval{}, err
			}
			buf = buf[:n]
			if len(buf) == 0 {
				return Interval{lo, lo}, nil
			}
			a, b := equalRangeInBuffer(buf, k)
			if a == b {
				return Interval{lo + int64(a), lo + int64(a)}, nil
			}
			return resolveMatch(r, spanLen, lo, buf, a, b, k)
		}

		m := midpoint(strategy, lo, hi, lowValue, highValue, k)
		winLo := m - W/2
		if winLo < lo {
			winLo = lo
		}
		winHi := winLo + W
		if winHi > hi {
			winHi = hi
			winLo = winHi - W
			if winLo < lo {
				winLo = lo
			}
		}

		buf := make([]entry.Entry, winHi-winLo)
		n, err := r.ReadAt(buf, winLo)
		if err != nil {
			return Interval{}, err
		}
		buf = buf[:n]
		if len(buf) == 0 {
			return Interval{lo, lo}, nil
		}

		a, b := equalRangeInBuffer(buf, k)
		if a < b {
			return resolveMatch(r, spanLen, winLo, buf, a, b, k)
		}

		// a == b: no match anywhere in this window. Narrow [lo, hi) to
		// whichever side of the window could still hold the run (the
		// narrowed side is provably excluded by this read) and keep
		// looking, rather than guessing the run touches the window edge.
		if a == 0 {
			hi = winLo
			highValue = buf[0].Key
		} else {
			lo = winHi
			lowValue = buf[len(buf)-1].Key
		}
	}
}
