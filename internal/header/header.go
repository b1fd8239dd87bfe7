// Package header implements the minimal append-only game-header store
// referenced, but left unspecified beyond its operations, by spec §6: a
// per-game-level (offset, bytes) log plus a fixed-width index of
// (offset, length, plies) triples so a batch of previously-returned
// ordinals can be resolved back to raw game bytes.
//
// This is intentionally simple — no compression, no compaction — since
// the header store itself is an external collaborator as far as the core
// position store is concerned (spec §1).
package header

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/gotchess/chessposdb/internal/filelayer"
	"github.com/gotchess/chessposdb/internal/ioqueue"
	"github.com/gotchess/chessposdb/internal/key"
	"github.com/gotchess/chessposdb/internal/typedio"
)

const (
	dataFileName  = "header"
	indexFileName = "index"
	idxBufElems   = 64
)

// PackedGameHeader is one game's header-store record, resolved back from
// an ordinal: its opaque bytes (as handed to Add) and its ply count.
type PackedGameHeader struct {
	Bytes []byte
	Plies uint32
}

// Store is the append-only header log and its sibling index for one game
// level (spec's `_human/header, _human/index`, and so on per level).
type Store struct {
	dir   string
	level key.GameLevel

	mu       sync.Mutex
	data     filelayer.File
	dataSize int64

	idx     *typedio.Vector[record]
	idxSpan *typedio.Span[record]
	count   int
}

// LevelDir returns the per-level subdirectory name a Store lives in.
func LevelDir(level key.GameLevel) string {
	return "_" + level.String()
}

func dataPath(dir string, level key.GameLevel) string {
	return filepath.Join(dir, LevelDir(level), dataFileName)
}

func indexPath(dir string, level key.GameLevel) string {
	return filepath.Join(dir, LevelDir(level), indexFileName)
}

// Open opens (creating if absent) the header store for level under dir.
// sched must already know the volume containing dir (spec §4.2).
func Open(sched *ioqueue.Scheduler, dir string, level key.GameLevel) (*Store, error) {
	levelDir := filepath.Join(dir, LevelDir(level))
	if err := os.MkdirAll(levelDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "header: mkdir %s", levelDir)
	}

	dp := dataPath(dir, level)
	data := filelayer.OpenPooled(dp, filelayer.ModeAppend)
	size, err := data.Size()
	if err != nil {
		data.Close()
		return nil, err
	}

	ip := indexPath(dir, level)
	idxAppend := filelayer.OpenPooled(ip, filelayer.ModeAppend)
	// Opening for append creates the index file, so the read-only span
	// below can open it on a fresh store.
	if _, err := idxAppend.Size(); err != nil {
		data.Close()
		return nil, err
	}
	idx := typedio.NewVector[record](sched, idxAppend, recordCodec{}, idxBufElems)

	idxRead := filelayer.OpenPooled(ip, filelayer.ModeRead)
	idxSpan := typedio.Open[record](sched, idxRead, recordCodec{})
	n, err := idxSpan.Len()
	if err != nil {
		idx.Close()
		return nil, err
	}

	return &Store{
		dir: dir, level: level,
		data: data, dataSize: size,
		idx: idx, idxSpan: idxSpan, count: int(n),
	}, nil
}

// Add appends game's opaque bytes to the raw log and a pointer record to
// the index, returning the raw byte offset and the ordinal ("index" in
// spec §6) a later QueryByOffsets call resolves back to game.
func (s *Store) Add(game []byte, plies uint32) (offset uint64, index int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset = uint64(s.dataSize)
	if len(game) > 0 {
		n, err := s.data.Append(game, 1, len(game))
		if err != nil {
			return 0, 0, err
		}
		s.dataSize += int64(n)
	}
	rec := record{offset: offset, length: uint32(len(game)), plies: plies}
	if err := s.idx.Push(rec); err != nil {
		return 0, 0, err
	}
	index = s.count
	s.count++
	return offset, index, nil
}

// QueryByOffsets resolves a batch of ordinals (as returned by Add) back to
// their packed headers, in the same order as offsets. A missing or
// out-of-range ordinal yields a zero-value PackedGameHeader at that
// position rather than failing the whole batch.
func (s *Store) QueryByOffsets(offsets []uint64) ([]PackedGameHeader, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}
	out := make([]PackedGameHeader, len(offsets))
	for i, ord := range offsets {
		rec, err := s.idxSpan.At(int64(ord))
		if err != nil {
			continue
		}
		buf := make([]byte, rec.length)
		if rec.length > 0 {
			if _, err := s.data.ReadAt(buf, int64(rec.offset), 1, int(rec.length)); err != nil {
				return nil, err
			}
		}
		out[i] = PackedGameHeader{Bytes: buf, Plies: rec.plies}
	}
	return out, nil
}

// Count returns the number of games added so far (the next Add's ordinal).
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Flush durably appends anything buffered in the index vector, so a
// concurrent or subsequent QueryByOffsets observes every prior Add.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.idx.Flush(); err != nil {
		return err
	}
	return s.data.Flush()
}

// Clear discards every game in the store, truncating both files. Intended
// for test fixtures and for a fresh re-ingest after a crash rediscovery
// found nothing usable in the segment layer.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.data.Truncate(); err != nil {
		return err
	}
	// Write out records still buffered in the index vector first, so the
	// truncation below discards them too.
	if err := s.idx.Flush(); err != nil {
		return err
	}
	ip := indexPath(s.dir, s.level)
	if err := os.Truncate(ip, 0); err != nil && !os.IsNotExist(err) {
		return err
	}
	s.dataSize = 0
	s.count = 0
	return nil
}

// Replicate copies both files verbatim into dstDir's matching level
// subdirectory, for the database facade's replicate-merge operation.
func (s *Store) Replicate(dstDir string) error {
	if err := s.Flush(); err != nil {
		return err
	}
	dstLevelDir := filepath.Join(dstDir, LevelDir(s.level))
	if err := os.MkdirAll(dstLevelDir, 0755); err != nil {
		return errors.Wrapf(err, "header: mkdir %s", dstLevelDir)
	}
	if err := copyFile(dataPath(s.dir, s.level), dataPath(dstDir, s.level)); err != nil {
		return err
	}
	return copyFile(indexPath(s.dir, s.level), indexPath(dstDir, s.level))
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

// Close flushes and releases both underlying files.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.idx.Close()
	if cerr := s.data.Close(); err == nil {
		err = cerr
	}
	return err
}
