// Package fake is a small, deterministic stand-in for the PGN-reader and
// chess-engine collaborators of spec §6, used to drive the ingest pipeline
// and database facade in tests without a real chess engine.
package fake

import (
	"hash/fnv"

	"github.com/gotchess/chessposdb/external"
	"github.com/gotchess/chessposdb/internal/key"
)

// Position is a fake board state: the running FNV hash of every SAN move
// applied so far, seeded per game. It is enough to make Key deterministic
// and collision-free across distinct move sequences for test purposes; it
// is not a real chess position.
type Position struct {
	lanes [3]uint32
}

// Start returns the fixed fake starting position.
func (ChessState) Start() external.Position {
	return &Position{lanes: [3]uint32{0x9e3779b9, 0x85ebca6b, 0xc2b2ae35}}
}

// move is the fake Move type: just the SAN text, hashed lazily by Do.
type move string

// Do mixes san into p's lanes (a cheap, order-sensitive avalanche, so the
// same moves played in a different order land on different fake boards,
// unlike real chess, where such transpositions reach one position) and
// returns a 27-bit reverse move derived from san alone, so two games
// reaching the same board via the same last move share a continuation.
func (p *Position) Do(m external.Move) uint32 {
	san := string(m.(move))
	h := fnv.New32a()
	_, _ = h.Write([]byte(san))
	mix := h.Sum32()
	p.lanes[0] = p.lanes[0]*2654435761 + mix
	p.lanes[1] ^= p.lanes[0]<<13 | p.lanes[0]>>19
	p.lanes[2] = p.lanes[2]*16777619 ^ p.lanes[1]
	return mix & (1<<27 - 1)
}

// ChessState is the fake external.ChessState.
type ChessState struct{}

// SANToMove accepts any non-empty SAN string; the fake performs no legality
// checking.
func (ChessState) SANToMove(pos external.Position, san string) (external.Move, error) {
	return move(san), nil
}

// Key builds a key.Key from pos's current board hash plus the supplied
// tags, per external.ChessState's contract.
func (ChessState) Key(pos external.Position, reverseMove uint32, level key.GameLevel, result key.GameResult) key.Key {
	p := pos.(*Position)
	k := key.Key{H: [4]uint32{p.lanes[0], p.lanes[1], p.lanes[2], 0}}
	return k.WithTags(reverseMove, level, result)
}

// Game is one fixture game: its header plus the SAN moves that produce it.
type Game struct {
	Header external.Game
	Moves  []string
}

// moveIterator walks one Game's Moves slice.
type moveIterator struct {
	moves []string
	pos   int
}

func (it *moveIterator) Next() (string, bool) {
	if it.pos >= len(it.moves) {
		return "", false
	}
	san := it.moves[it.pos]
	it.pos++
	return san, true
}

// PGNReader replays a fixed, in-memory list of Games, in order. FailAt, if
// set, makes the (0-indexed) game at that position return err instead of a
// game, exercising spec §7's ParseBackpressure path; iteration continues
// past it.
type PGNReader struct {
	games []Game
	pos   int
	// FailAt is a game index that fails once with Err instead of yielding a
	// game, then is skipped.
	FailAt int
	Err    error
	failed bool
}

// NewPGNReader returns a PGNReader that replays games in order.
func NewPGNReader(games []Game) *PGNReader {
	return &PGNReader{games: games, FailAt: -1}
}

func (r *PGNReader) Next() (external.Game, external.MoveIterator, bool, error) {
	if r.pos >= len(r.games) {
		return external.Game{}, nil, false, nil
	}
	i := r.pos
	r.pos++
	if i == r.FailAt && !r.failed {
		r.failed = true
		return external.Game{}, nil, true, r.Err
	}
	g := r.games[i]
	return g.Header, &moveIterator{moves: g.Moves}, true, nil
}

func (r *PGNReader) Close() error { return nil }
