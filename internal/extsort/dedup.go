package extsort

import "github.com/gotchess/chessposdb/internal/entry"

// Equal reports whether two entries should be combined by a deduplicating
// merge (same key under whichever ordering the merge used).
type Equal func(a, b entry.Entry) bool

// Combine merges two entries already known to be Equal into one.
type Combine func(a, b entry.Entry) entry.Entry

// dedupSink wraps a Sink, combining runs of consecutive Equal entries via
// Combine before forwarding a single merged entry downstream. It assumes
// its upstream delivers entries in sorted order, so that duplicates of the
// same key are always adjacent.
type dedupSink struct {
	inner   Sink
	equal   Equal
	combine Combine
	has     bool
	acc     entry.Entry
}

func newDedupSink(inner Sink, equal Equal, combine Combine) *dedupSink {
	return &dedupSink{inner: inner, equal: equal, combine: combine}
}

func (d *dedupSink) Push(e entry.Entry) error {
	if !d.has {
		d.acc, d.has = e, true
		return nil
	}
	if d.equal(d.acc, e) {
		d.acc = d.combine(d.acc, e)
		return nil
	}
	if err := d.inner.Push(d.acc); err != nil {
		return err
	}
	d.acc = e
	return nil
}

func (d *dedupSink) flush() error {
	if !d.has {
		return nil
	}
	err := d.inner.Push(d.acc)
	d.has = false
	return err
}

// MergeFanoutDedup merges sources exactly like MergeFanout, except the
// final pass that writes to out additionally combines adjacent
// Equal-under-less entries via combine (spec §4.4's deduplicating
// merge-for-each). Intermediate fanout levels are merged without
// deduplication: two equal entries spilled into different groups only
// become adjacent once the outermost merge brings their groups together.
func MergeFanoutDedup(sources []Source, less Less, fanout int, tmp TempFactory, out Sink, equal Equal, combine Combine) error {
	dedup := newDedupSink(out, equal, combine)
	if err := MergeFanout(sources, less, fanout, tmp, dedup); err != nil {
		return err
	}
	return dedup.flush()
}
