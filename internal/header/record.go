package header

import "encoding/binary"

// recordSize is the on-disk byte length of an index record: a 16-byte
// little-endian (offset, length, plies) triple pointing into the sibling
// raw-bytes log (spec §6's header store).
const recordSize = 16

// record is one entry in a header store's index file, giving the byte
// range within the raw log that holds one game's opaque bytes.
type record struct {
	offset uint64
	length uint32
	plies  uint32
}

type recordCodec struct{}

func (recordCodec) Size() int { return recordSize }

func (recordCodec) Encode(r record, dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], r.offset)
	binary.LittleEndian.PutUint32(dst[8:12], r.length)
	binary.LittleEndian.PutUint32(dst[12:16], r.plies)
}

func (recordCodec) Decode(src []byte) record {
	return record{
		offset: binary.LittleEndian.Uint64(src[0:8]),
		length: binary.LittleEndian.Uint32(src[8:12]),
		plies:  binary.LittleEndian.Uint32(src[12:16]),
	}
}
