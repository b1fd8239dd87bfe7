// Package external declares the collaborator interfaces spec §6 leaves
// outside the core: PGN parsing, chess move/position logic, and the
// game-header store. The core ingest pipeline is built against these
// interfaces only; external/fake provides a small deterministic
// implementation for tests, and a real PGN parser/chess engine would
// satisfy the same interfaces in production.
package external

import (
	"github.com/gotchess/chessposdb/internal/header"
	"github.com/gotchess/chessposdb/internal/key"
)

// Game is one parsed PGN game header, per spec §6's PGN reader shape. The
// core reads only Result and PlyCount (moves arrive separately through the
// MoveIterator) and hands Raw to the header store verbatim; Date, ECO,
// Event, White, Black and HasPlies are not read by the core.
type Game struct {
	Result   key.GameResult
	Date     string
	ECO      string
	Event    string
	White    string
	Black    string
	PlyCount int
	HasPlies bool // PlyCount is "ply_count?": absent unless HasPlies.
	Raw      []byte
}

// PGNReader yields games one at a time. Next returns ok=false once the
// input is exhausted; a parse failure on one game is reported via err
// without exhausting the reader — spec §7's ParseBackpressure: "an
// upstream PGN reader failed; partial ingest proceeds; callback logs the
// file and moves on."
type PGNReader interface {
	Next() (game Game, moves MoveIterator, ok bool, err error)
	Close() error
}

// MoveIterator yields a game's moves in SAN, one at a time.
type MoveIterator interface {
	Next() (san string, ok bool)
}

// Position is an opaque chess position handle (spec §6's `Pos`). Do
// mutates the position in place, applying move and returning the reverse
// move that would undo it — the 27-bit value a Key packs alongside the
// board hash.
type Position interface {
	Do(move Move) (reverseMove uint32)
}

// Move is an opaque legal move, produced only by ChessState.SANToMove.
type Move interface{}

// ChessState is the move-generation/position-hashing collaborator (spec
// §6's `Position::start()`, `Pos.do(move)`, `Key::from(pos, reverse)`,
// `san_to_move(pos, san)`).
type ChessState interface {
	Start() Position
	SANToMove(pos Position, san string) (Move, error)
	Key(pos Position, reverseMove uint32, level key.GameLevel, result key.GameResult) key.Key
}

// HeaderStore is the append-only game-header log (spec §6). header.Store
// satisfies this structurally. The database facade holds *header.Store
// values directly rather than this interface, and external/fake provides
// no implementation of it.
type HeaderStore interface {
	Add(game []byte, plies uint32) (offset uint64, index int, err error)
	QueryByOffsets(offsets []uint64) ([]header.PackedGameHeader, error)
	Clear() error
	Flush() error
	Replicate(dst string) error
}
