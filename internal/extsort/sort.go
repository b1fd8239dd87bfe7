package extsort

import "github.com/gotchess/chessposdb/internal/entry"

// readChunk reads up to n entries from src, returning eof=true if src was
// exhausted while filling this chunk (i.e. fewer than n entries remained).
func readChunk(src Source, n int) (chunk []entry.Entry, eof bool, err error) {
	chunk = make([]entry.Entry, 0, n)
	for len(chunk) < n {
		e, ok, err := src.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return chunk, true, nil
		}
		chunk = append(chunk, e)
	}
	return chunk, false, nil
}

// Sort performs the external sort of spec §4.4: read up to memoryBudget
// entries at a time from src; if everything fit in the first read, sort it
// in memory and write directly to out. Otherwise sort each chunk in memory,
// spill it to a scratch segment via tmp, and fanout-merge the scratch
// segments into out.
func Sort(src Source, memoryBudget int, less Less, fanout int, tmp TempFactory, out Sink) error {
	if memoryBudget <= 0 {
		memoryBudget = 1
	}

	first, eof, err := readChunk(src, memoryBudget)
	if err != nil {
		return err
	}
	if eof {
		sortStable(first, less)
		for _, e := range first {
			if err := out.Push(e); err != nil {
				return err
			}
		}
		return nil
	}

	var scratch []TempSegment
	spillChunk := func(chunk []entry.Entry) (Source, error) {
		sortStable(chunk, less)
		seg, err := tmp()
		if err != nil {
			return nil, err
		}
		for _, e := range chunk {
			if err := seg.Push(e); err != nil {
				return nil, err
			}
		}
		if err := seg.Close(); err != nil {
			return nil, err
		}
		scratch = append(scratch, seg)
		return seg.Source()
	}

	var sources []Source
	src0, err := spillChunk(first)
	if err != nil {
		return cleanupAndReturn(scratch, err)
	}
	sources = append(sources, src0)

	for {
		chunk, eof, err := readChunk(src, memoryBudget)
		if err != nil {
			return cleanupAndReturn(scratch, err)
		}
		if len(chunk) > 0 {
			s, err := spillChunk(chunk)
			if err != nil {
				return cleanupAndReturn(scratch, err)
			}
			sources = append(sources, s)
		}
		if eof {
			break
		}
	}

	err = MergeFanout(sources, less, fanout, tmp, out)
	return cleanupAndReturn(scratch, err)
}
