package rangeindex

import "github.com/gotchess/chessposdb/internal/key"

// Builder implements the three-state range-index construction loop of
// spec §4.5, driven one K-rm value at a time (or in chunks via Append) so
// that the write stage can build a segment's sibling index in the same
// pass that writes the segment itself.
type Builder struct {
	granularity int64

	started bool
	ranges  []Range

	startValue          key.Key
	startIdx            int64
	prevValue           key.Key
	lastIdx             int64
	firstOfNextRange    key.Key
	firstOfNextRangeIdx int64
	endValue            key.Key
}

// NewBuilder creates a Builder with the given granularity G: the maximum
// length, in entries, of an emitted range unless a single K-rm equivalence
// class is longer.
func NewBuilder(granularity int64) *Builder {
	if granularity <= 0 {
		granularity = 1
	}
	return &Builder{granularity: granularity}
}

// AppendValue drives the state machine with the K-rm value of the entry at
// absolute index idx. idx must be strictly increasing across calls.
func (b *Builder) AppendValue(v key.Key, idx int64) {
	b.lastIdx = idx
	if !b.started {
		b.started = true
		b.startValue = v
		b.startIdx = idx
		b.prevValue = v
		return
	}

	if key.CompareRM(v, b.prevValue) == 0 {
		b.prevValue = v
		return
	}

	// The run of values equal to prevValue just ended at idx-1.
	b.firstOfNextRange = v
	b.firstOfNextRangeIdx = idx
	b.endValue = b.prevValue
	b.prevValue = v

	span := idx - b.startIdx + 1
	if span >= b.granularity {
		b.ranges = append(b.ranges, Range{
			Low: uint64(b.startIdx), High: uint64(b.firstOfNextRangeIdx - 1),
			LowKey: b.startValue, HighKey: b.endValue,
		})
		b.startValue = b.firstOfNextRange
		b.startIdx = b.firstOfNextRangeIdx
		b.prevValue = b.firstOfNextRange
	}
}

// Append drives the state machine over a contiguous chunk of K-rm values
// starting at absolute index startIdx.
func (b *Builder) Append(values []key.Key, startIdx int64) {
	for i, v := range values {
		b.AppendValue(v, startIdx+int64(i))
	}
}

// Finalize emits a last range covering whatever entries remain since the
// most recent emitted range (or the very start, if none was ever emitted),
// and returns the complete set of ranges built so far. The Builder must
// not be reused afterward.
func (b *Builder) Finalize() []Range {
	if b.started {
		b.ranges = append(b.ranges, Range{
			Low: uint64(b.startIdx), High: uint64(b.lastIdx),
			LowKey: b.startValue, HighKey: b.prevValue,
		})
	}
	return b.ranges
}

// Build is the non-incremental convenience form: build the complete range
// index for values (the K-rm values of a fully in-memory, K-rm-sorted
// entry sequence) in one call.
func Build(values []key.Key, granularity int64) []Range {
	b := NewBuilder(granularity)
	b.Append(values, 0)
	return b.Finalize()
}
