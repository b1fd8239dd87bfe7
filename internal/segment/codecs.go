package segment

import (
	"github.com/gotchess/chessposdb/internal/entry"
	"github.com/gotchess/chessposdb/internal/rangeindex"
)

// entryCodec adapts entry.Entry to typedio.Codec for segment data files.
type entryCodec struct{}

func (entryCodec) Size() int                       { return entry.Size }
func (entryCodec) Encode(v entry.Entry, dst []byte) { v.Encode(dst) }
func (entryCodec) Decode(src []byte) entry.Entry    { return entry.Decode(src) }

// rangeCodec adapts rangeindex.Range to typedio.Codec for sibling index
// files.
type rangeCodec struct{}

func (rangeCodec) Size() int                             { return rangeindex.Size }
func (rangeCodec) Encode(v rangeindex.Range, dst []byte) { v.Encode(dst) }
func (rangeCodec) Decode(src []byte) rangeindex.Range    { return rangeindex.Decode(src) }
