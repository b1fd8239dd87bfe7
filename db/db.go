// Package db implements the thin database facade of spec §4.9: one
// partition, one header store per game level, ingest orchestration, and
// query orchestration (sort under K+rm with a reversible permutation,
// populate stats, un-permute, enrich via batched header lookups).
package db

import (
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/gotchess/chessposdb/external"
	"github.com/gotchess/chessposdb/internal/entry"
	"github.com/gotchess/chessposdb/internal/header"
	"github.com/gotchess/chessposdb/internal/ioqueue"
	"github.com/gotchess/chessposdb/internal/key"
	"github.com/gotchess/chessposdb/internal/pipeline"
	"github.com/gotchess/chessposdb/internal/search"
	"github.com/gotchess/chessposdb/internal/segment"
	"github.com/gotchess/chessposdb/manifest"
)

const segmentsDirName = "data"

var gameLevels = [...]key.GameLevel{key.Human, key.Engine, key.Server}

// Database is the facade of spec §4.9: the root path, one partition, and
// one header store per game level. It keeps no game counter of its own:
// each level's header store hands out game ordinals (header.Store.Add).
type Database struct {
	path      string
	sched     *ioqueue.Scheduler
	partition *segment.Partition
	headers   map[key.GameLevel]*header.Store
	chess     external.ChessState
}

// Open opens (creating if absent) a database rooted at path: a manifest, a
// partition under "data/", and one header store per game level. sched must
// already cover path's volume (spec §4.2).
func Open(sched *ioqueue.Scheduler, path string, granularity int64, chess external.ChessState) (*Database, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, errors.Wrapf(err, "db: create root %s", path)
	}

	if !manifest.Exists(path) {
		if err := manifest.Save(path, manifest.Manifest{
			Name:                  filepathBase(path),
			RequiresPositionIndex: true,
			IndexGranularity:      granularity,
		}); err != nil {
			return nil, err
		}
	} else {
		m, err := manifest.Load(path)
		if err != nil {
			return nil, err
		}
		if err := manifest.CheckCompatible(m, granularity, true); err != nil {
			return nil, err
		}
	}

	partition, err := segment.OpenPartition(sched, segmentsDir(path), granularity)
	if err != nil {
		return nil, err
	}

	headers := make(map[key.GameLevel]*header.Store, len(gameLevels))
	for _, lvl := range gameLevels {
		h, err := header.Open(sched, path, lvl)
		if err != nil {
			return nil, err
		}
		headers[lvl] = h
	}

	return &Database{path: path, sched: sched, partition: partition, headers: headers, chess: chess}, nil
}

func segmentsDir(path string) string { return path + string(os.PathSeparator) + segmentsDirName }

func filepathBase(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if os.IsPathSeparator(path[i]) {
			return path[i+1:]
		}
	}
	return path
}

// Close releases every open handle.
func (db *Database) Close() error {
	var firstErr error
	for _, h := range db.headers {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := db.partition.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// MergeAll merges every present segment into one, in place (spec §4.7's
// merge_all). Header stores are untouched: merge only ever combines
// segment-layer entries, never game headers.
func (db *Database) MergeAll() error {
	return db.partition.MergeAll()
}

// ReplicateMergeAll writes a merged copy of the whole database (every
// segment plus every level's header store) under dstPath, leaving this
// database untouched (spec §4.7's replicate_merge_all).
func (db *Database) ReplicateMergeAll(dstPath string) error {
	if err := db.partition.ReplicateMergeAll(segmentsDir(dstPath)); err != nil {
		return err
	}
	for _, lvl := range gameLevels {
		if err := db.headers[lvl].Replicate(dstPath); err != nil {
			return err
		}
	}
	m, err := manifest.Load(db.path)
	if err != nil {
		return err
	}
	m.Name = filepathBase(dstPath)
	return manifest.Save(dstPath, m)
}

// Stat summarizes the database's current on-disk shape for the CLI's
// "stat" command: segment count and per-level game counts.
type Stat struct {
	Segments int
	Games    map[key.GameLevel]int
}

// Stat reports the current segment count and per-level game counts.
func (db *Database) Stat() Stat {
	games := make(map[key.GameLevel]int, len(gameLevels))
	for _, lvl := range gameLevels {
		games[lvl] = db.headers[lvl].Count()
	}
	return Stat{Segments: len(db.partition.Segments()), Games: games}
}

// ImportStats aggregates one import() call's results (spec §7:
// "import() returns ImportStats{games, skipped_games, positions} aggregated
// across workers").
type ImportStats struct {
	Games        int
	SkippedGames int
	Positions    int
}

func (s *ImportStats) merge(o ImportStats) {
	s.Games += o.Games
	s.SkippedGames += o.SkippedGames
	s.Positions += o.Positions
}

// Block is one parse-stage unit of work: a PGN reader plus (for the
// parallel strategy) its approximate share of total PGN bytes, used only
// for forced-id scheduling (spec §4.8).
type Block struct {
	Reader   external.PGNReader
	PGNBytes int64
}

// entrySize mirrors entry.Size, named locally to keep the memory-budget
// formula below legible.
const entrySize = entry.Size

// bufferCapacity computes C, the per-buffer entry capacity, from a memory
// budget and a buffer count B: "C = memory / (sizeof(Entry) × (B + 4B))"
// (spec §4.9) — the 4B term reserves headroom for the sort/merge stages'
// own scratch so the whole import stays within the caller's memory budget,
// not just the buffer pool itself.
func bufferCapacity(memory int64, buffers int) int {
	if buffers < 1 {
		buffers = 1
	}
	denom := int64(entrySize) * int64(buffers+4*buffers)
	if denom <= 0 {
		return 1
	}
	c := memory / denom
	if c < 1 {
		c = 1
	}
	return int(c)
}

// Import ingests every block's games into level's segment partition and
// header store, choosing the sequential strategy for one block and the
// parallel, forced-id strategy for more than one (spec §4.9).
func (db *Database) Import(blocks []Block, memory int64, level key.GameLevel) (ImportStats, error) {
	if len(blocks) == 0 {
		return ImportStats{}, nil
	}
	buffers := len(blocks)
	bufCap := bufferCapacity(memory, buffers)
	pl := pipeline.New(db.partition, buffers, bufCap, buffers)

	idCursors := make([]*idCursor, len(blocks))
	if len(blocks) > 1 {
		pgnBytes := make([]int64, len(blocks))
		for i, b := range blocks {
			pgnBytes[i] = b.PGNBytes
		}
		base := db.partition.ReserveIDRange(0)
		bases := pipeline.ForcedIDPlan(base, pgnBytes, bufCap, minPGNBytesPerMove)
		for i, b := range bases {
			idCursors[i] = &idCursor{next: b}
		}
	}

	results := make([]ImportStats, len(blocks))
	errs := make([]error, len(blocks))
	done := make(chan int, len(blocks))
	for i, b := range blocks {
		i, b := i, b
		go func() {
			results[i], errs[i] = db.parseBlock(pl, b.Reader, level, idCursors[i])
			done <- i
		}()
	}
	for range blocks {
		<-done
	}
	pl.WaitForCompletion()

	var total ImportStats
	var firstErr error
	for i := range blocks {
		total.merge(results[i])
		if errs[i] != nil && firstErr == nil {
			firstErr = errs[i]
		}
	}
	if firstErr != nil {
		return total, firstErr
	}
	if err := db.partition.CollectFutureFiles(); err != nil {
		return total, err
	}
	if err := db.headers[level].Flush(); err != nil {
		return total, err
	}
	return total, nil
}

// minPGNBytesPerMove is a deliberately low estimate of the PGN bytes one
// ply takes ("e4 " is 3 bytes, the shortest standard encoding; 2 leaves
// extra room), used by ForcedIDPlan to upper-bound how many segments a
// block could possibly produce.
const minPGNBytesPerMove = 2

// idCursor hands out successive forced segment ids within one parallel
// parse block's reserved range (spec §4.8): the block reserves a whole
// span of ids up front, but each buffer it fills and submits needs its own
// distinct id within that span, not the span's base id repeated. A nil
// *idCursor means this block has no reserved range (the single-block,
// sequential-strategy case), so every take() call returns nil.
type idCursor struct {
	next int
}

func (c *idCursor) take() *int {
	if c == nil {
		return nil
	}
	id := c.next
	c.next++
	return &id
}

// parseBlock is the parse-stage worker for one PGN reader: it extracts
// every position reached in each game via chess and submits full buffers
// to pl, targeting successive ids from ids if this block has a reserved
// forced-id range (spec §4.8's forced-id block).
func (db *Database) parseBlock(pl *pipeline.Pipeline, reader external.PGNReader, level key.GameLevel, ids *idCursor) (ImportStats, error) {
	var stats ImportStats
	hstore := db.headers[level]

	buf := pl.AcquireBuffer()
	var futures []*pipeline.Future
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		fut, err := pl.SubmitUnordered(buf, ids.take())
		if err != nil {
			return err
		}
		futures = append(futures, fut)
		buf = pl.AcquireBuffer()
		return nil
	}

	for {
		g, moves, ok, rerr := reader.Next()
		if !ok {
			break
		}
		if rerr != nil {
			stats.SkippedGames++
			continue
		}

		n, err := db.extractGame(hstore, level, g, moves, &buf, pl, ids, &futures)
		if err != nil {
			return stats, err
		}
		stats.Games++
		stats.Positions += n
	}
	if err := flush(); err != nil {
		return stats, err
	}
	for _, fut := range futures {
		if _, err := fut.Get(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// extractGame adds g's raw bytes to hstore, then walks its moves building
// one entry per position reached (spec §1: "a stream of (position_key,
// reverse_move, game_level, game_result, game_offset) tuples"), appending
// to *buf and submitting/reacquiring it via pl whenever it fills. It
// returns the number of positions extracted, the starting position
// included: no move leads to it, so it is keyed with a zero reverse move.
func (db *Database) extractGame(
	hstore *header.Store, level key.GameLevel, g external.Game, moves external.MoveIterator,
	buf *[]entry.Entry, pl *pipeline.Pipeline, ids *idCursor, futures *[]*pipeline.Future,
) (int, error) {
	plies := uint32(g.PlyCount)
	_, gameIdx, err := hstore.Add(g.Raw, plies)
	if err != nil {
		return 0, err
	}
	gameOffset := uint64(gameIdx)

	pos := db.chess.Start()
	var rm uint32 // zero for the starting position
	positions := 0
	for {
		k := db.chess.Key(pos, rm, level, g.Result)
		*buf = append(*buf, entry.New(k, gameOffset))
		positions++

		if len(*buf) == cap(*buf) {
			fut, err := pl.SubmitUnordered(*buf, ids.take())
			if err != nil {
				return positions, err
			}
			*futures = append(*futures, fut)
			*buf = pl.AcquireBuffer()
		}

		san, ok := moves.Next()
		if !ok {
			break
		}
		mv, err := db.chess.SANToMove(pos, san)
		if err != nil {
			// A single illegal/unparseable move invalidates the rest of this
			// game's positions, but not the games already buffered.
			break
		}
		rm = pos.Do(mv)
	}
	return positions, nil
}

// PositionQuery is one query point: a position key plus the select mode
// controlling which K-rm-equal entries count toward it (spec §4.7).
type PositionQuery struct {
	Key    key.Key
	Select key.Select
}

// QueryRequest groups each root position query with its children's
// queries (spec §4.9: "gather position queries (root + children per
// request)"), so one partition pass can batch a whole request's keys while
// preserving which result belongs to which root or child.
type QueryRequest struct {
	Roots    []PositionQuery
	Children [][]PositionQuery // Children[i] are the children of Roots[i]; may be nil or short
}

// PositionResult pairs one query's aggregated stats with the packed game
// header of the earliest-seen game in every populated (level, result)
// bucket (spec §4.9's "enrich by batched header lookups").
type PositionResult struct {
	Stats   segment.Stats
	Headers [3][3]*header.PackedGameHeader
}

// QueryResponse is shaped like its QueryRequest (spec §7: "query() always
// returns a response shaped like the request").
type QueryResponse struct {
	Roots    []PositionResult
	Children [][]PositionResult
}

// resultSlot records where one flattened query's result belongs in the
// response: childIdx == -1 means it is req.Roots[rootIdx] itself.
type resultSlot struct {
	rootIdx  int
	childIdx int
}

// Query resolves every position in req against the partition, grouping by
// Select (Partition.QueryBatch takes one select per call), sorting each
// group's keys under K+rm with a reversible permutation so
// search.EqualRangeBatch's cross-update optimisation sees keys close on
// disk adjacently, then un-permuting and enriching with batched header
// lookups (spec §4.9).
func (db *Database) Query(req QueryRequest, strategy search.Strategy) (QueryResponse, error) {
	var keys []key.Key
	var sels []key.Select
	var slots []resultSlot

	for ri, rq := range req.Roots {
		keys = append(keys, rq.Key)
		sels = append(sels, rq.Select)
		slots = append(slots, resultSlot{ri, -1})
	}
	for ri, children := range req.Children {
		for ci, cq := range children {
			keys = append(keys, cq.Key)
			sels = append(sels, cq.Select)
			slots = append(slots, resultSlot{ri, ci})
		}
	}

	stats := make([]segment.Stats, len(keys))
	for _, sel := range [...]key.Select{key.All, key.Continuations, key.Transpositions} {
		var group []int
		for i, s := range sels {
			if s == sel {
				group = append(group, i)
			}
		}
		if len(group) == 0 {
			continue
		}

		groupKeys := make([]key.Key, len(group))
		for gi, i := range group {
			groupKeys[gi] = keys[i]
		}

		perm := make([]int, len(group))
		for i := range perm {
			perm[i] = i
		}
		sort.Slice(perm, func(a, b int) bool {
			return key.CompareWRM(groupKeys[perm[a]], groupKeys[perm[b]]) < 0
		})

		sortedKeys := make([]key.Key, len(group))
		for si, pi := range perm {
			sortedKeys[si] = groupKeys[pi]
		}

		sortedStats, err := db.partition.QueryBatch(sortedKeys, sel, strategy, true)
		if err != nil {
			return QueryResponse{}, err
		}

		for si, pi := range perm {
			stats[group[pi]] = sortedStats[si]
		}
	}

	return db.buildResponse(req, slots, stats)
}

// buildResponse reshapes the flattened, order-matching stats slice back
// into req's root/children shape and enriches every populated bucket with
// its earliest game's packed header, batching one query_by_offsets call
// per game level across the whole response.
func (db *Database) buildResponse(req QueryRequest, slots []resultSlot, stats []segment.Stats) (QueryResponse, error) {
	resp := QueryResponse{
		Roots:    make([]PositionResult, len(req.Roots)),
		Children: make([][]PositionResult, len(req.Children)),
	}
	for ri, children := range req.Children {
		resp.Children[ri] = make([]PositionResult, len(children))
	}

	results := make([]*PositionResult, len(slots))
	for i, slot := range slots {
		var r *PositionResult
		if slot.childIdx < 0 {
			r = &resp.Roots[slot.rootIdx]
		} else {
			r = &resp.Children[slot.rootIdx][slot.childIdx]
		}
		r.Stats = stats[i]
		results[i] = r
	}

	wantedOffsets := make(map[key.GameLevel]map[uint64]struct{}, len(gameLevels))
	for _, lvl := range gameLevels {
		wantedOffsets[lvl] = make(map[uint64]struct{})
	}
	for _, r := range results {
		for l := 0; l < 3; l++ {
			for g := 0; g < 3; g++ {
				off, ok := r.Stats[l][g].Offset()
				if !ok {
					continue
				}
				wantedOffsets[key.GameLevel(l)][off] = struct{}{}
			}
		}
	}

	resolved := make(map[key.GameLevel]map[uint64]header.PackedGameHeader, len(gameLevels))
	for _, lvl := range gameLevels {
		set := wantedOffsets[lvl]
		if len(set) == 0 {
			continue
		}
		offsets := make([]uint64, 0, len(set))
		for off := range set {
			offsets = append(offsets, off)
		}
		sort.Slice(offsets, func(a, b int) bool { return offsets[a] < offsets[b] })

		hdrs, err := db.headers[lvl].QueryByOffsets(offsets)
		if err != nil {
			return QueryResponse{}, err
		}
		m := make(map[uint64]header.PackedGameHeader, len(offsets))
		for i, off := range offsets {
			m[off] = hdrs[i]
		}
		resolved[lvl] = m
	}

	for _, r := range results {
		for l := 0; l < 3; l++ {
			for g := 0; g < 3; g++ {
				off, ok := r.Stats[l][g].Offset()
				if !ok {
					continue
				}
				lvl := key.GameLevel(l)
				if h, ok := resolved[lvl][off]; ok {
					hCopy := h
					r.Headers[l][g] = &hCopy
				}
			}
		}
	}

	return resp, nil
}
