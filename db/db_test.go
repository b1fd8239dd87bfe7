package db

import (
	"testing"

	"github.com/gotchess/chessposdb/external"
	"github.com/gotchess/chessposdb/external/fake"
	"github.com/gotchess/chessposdb/internal/ioqueue"
	"github.com/gotchess/chessposdb/internal/key"
	"github.com/gotchess/chessposdb/internal/search"
)

func newTestScheduler(t *testing.T, dir string) *ioqueue.Scheduler {
	s := ioqueue.NewScheduler(map[string]string{dir: "data"}, 2)
	t.Cleanup(s.Close)
	return s
}

// S1 from spec §8: one PGN with one 4-move game 1.e4 e5 2.Nf3 Nc6,
// result=draw, level=human. After ingest: 5 positions stored (the
// starting position plus one per move played); querying the position
// reached after 1.e4 returns a single draw and a resolvable header.
func TestImportAndQuerySingleGame(t *testing.T) {
	dir := t.TempDir()
	sched := newTestScheduler(t, dir)
	chess := fake.ChessState{}

	d, err := Open(sched, dir, 64, chess)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	reader := fake.NewPGNReader([]fake.Game{
		{
			Header: external.Game{Result: key.Draw, Raw: []byte("1. e4 e5 2. Nf3 Nc6"), PlyCount: 4},
			Moves:  []string{"e4", "e5", "Nf3", "Nc6"},
		},
	})

	stats, err := d.Import([]Block{{Reader: reader, PGNBytes: int64(len("1. e4 e5 2. Nf3 Nc6"))}}, 1<<20, key.Human)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if stats.Games != 1 {
		t.Fatalf("Games = %d, want 1", stats.Games)
	}
	if stats.Positions != 5 {
		t.Fatalf("Positions = %d, want 5", stats.Positions)
	}
	if stats.SkippedGames != 0 {
		t.Fatalf("SkippedGames = %d, want 0", stats.SkippedGames)
	}

	// Recompute the key for the position reached after 1.e4, exactly as
	// extractGame would have: start, then Do("e4").
	pos := chess.Start()
	rm := pos.Do(mustMove(t, chess, pos, "e4"))
	afterE4 := chess.Key(pos, rm, key.Human, key.Draw)

	resp, err := d.Query(QueryRequest{
		Roots: []PositionQuery{{Key: afterE4, Select: key.All}},
	}, search.Interpolation)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Roots) != 1 {
		t.Fatalf("len(resp.Roots) = %d, want 1", len(resp.Roots))
	}

	got := resp.Roots[0].Stats[key.Human][key.Draw]
	if got.Count() != 1 {
		t.Fatalf("count = %d, want 1", got.Count())
	}
	hdr := resp.Roots[0].Headers[key.Human][key.Draw]
	if hdr == nil {
		t.Fatalf("Headers[human][draw] = nil, want a resolved header")
	}
	if string(hdr.Bytes) != "1. e4 e5 2. Nf3 Nc6" {
		t.Fatalf("header bytes = %q, want the game's raw PGN", hdr.Bytes)
	}
}

// A position never reached by any ingested game yields zero counts and no
// header, per spec §7: "query() ... absent positions yield zero counts."
func TestQueryAbsentPositionYieldsZeroCounts(t *testing.T) {
	dir := t.TempDir()
	sched := newTestScheduler(t, dir)
	chess := fake.ChessState{}

	d, err := Open(sched, dir, 64, chess)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	reader := fake.NewPGNReader([]fake.Game{
		{Header: external.Game{Result: key.Win, Raw: []byte("1. d4"), PlyCount: 1}, Moves: []string{"d4"}},
	})
	if _, err := d.Import([]Block{{Reader: reader, PGNBytes: 16}}, 1<<20, key.Human); err != nil {
		t.Fatalf("Import: %v", err)
	}

	pos := chess.Start()
	rm := pos.Do(mustMove(t, chess, pos, "never-played"))
	missing := chess.Key(pos, rm, key.Human, key.Win)

	resp, err := d.Query(QueryRequest{
		Roots: []PositionQuery{{Key: missing, Select: key.All}},
	}, search.Binary)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for l := 0; l < 3; l++ {
		for g := 0; g < 3; g++ {
			if c := resp.Roots[0].Stats[l][g].Count(); c != 0 {
				t.Fatalf("Stats[%d][%d].Count() = %d, want 0", l, g, c)
			}
			if resp.Roots[0].Headers[l][g] != nil {
				t.Fatalf("Headers[%d][%d] = %v, want nil", l, g, resp.Roots[0].Headers[l][g])
			}
		}
	}
}

// A request mixing root and child queries across every Select value is
// reshaped back into the request's exact shape, independent of internal
// batching/grouping order.
func TestQueryRootsAndChildrenPreserveShape(t *testing.T) {
	dir := t.TempDir()
	sched := newTestScheduler(t, dir)
	chess := fake.ChessState{}

	d, err := Open(sched, dir, 64, chess)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	reader := fake.NewPGNReader([]fake.Game{
		{Header: external.Game{Result: key.Win, Raw: []byte("game a"), PlyCount: 2}, Moves: []string{"e4", "e5"}},
		{Header: external.Game{Result: key.Loss, Raw: []byte("game b"), PlyCount: 2}, Moves: []string{"d4", "d5"}},
	})
	if _, err := d.Import([]Block{{Reader: reader, PGNBytes: 64}}, 1<<20, key.Human); err != nil {
		t.Fatalf("Import: %v", err)
	}

	afterE4 := keyAfter(t, chess, key.Human, key.Win, "e4")
	afterD4 := keyAfter(t, chess, key.Human, key.Loss, "d4")

	req := QueryRequest{
		Roots: []PositionQuery{
			{Key: afterE4, Select: key.All},
			{Key: afterD4, Select: key.Continuations},
		},
		Children: [][]PositionQuery{
			{{Key: afterE4, Select: key.Transpositions}},
			nil,
		},
	}
	resp, err := d.Query(req, search.Interpolation)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Roots) != 2 {
		t.Fatalf("len(resp.Roots) = %d, want 2", len(resp.Roots))
	}
	if len(resp.Children) != 2 || len(resp.Children[0]) != 1 || len(resp.Children[1]) != 0 {
		t.Fatalf("resp.Children shape = %+v, want [[1 item] []]", resp.Children)
	}
	if c := resp.Roots[0].Stats[key.Human][key.Win].Count(); c != 1 {
		t.Fatalf("root 0 count = %d, want 1", c)
	}
	if c := resp.Roots[1].Stats[key.Human][key.Loss].Count(); c != 1 {
		t.Fatalf("root 1 count = %d, want 1", c)
	}
}

func mustMove(t *testing.T, chess fake.ChessState, pos external.Position, san string) external.Move {
	t.Helper()
	mv, err := chess.SANToMove(pos, san)
	if err != nil {
		t.Fatalf("SANToMove(%q): %v", san, err)
	}
	return mv
}

func keyAfter(t *testing.T, chess fake.ChessState, level key.GameLevel, result key.GameResult, san string) key.Key {
	t.Helper()
	pos := chess.Start()
	rm := pos.Do(mustMove(t, chess, pos, san))
	return chess.Key(pos, rm, level, result)
}
