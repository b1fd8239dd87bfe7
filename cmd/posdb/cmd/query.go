package cmd

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/pkg/errors"
	"v.io/x/lib/cmdline"

	"github.com/gotchess/chessposdb/db"
	"github.com/gotchess/chessposdb/external"
	"github.com/gotchess/chessposdb/external/fake"
	"github.com/gotchess/chessposdb/internal/ioqueue"
	"github.com/gotchess/chessposdb/internal/key"
	"github.com/gotchess/chessposdb/internal/search"
)

func parseSelect(s string) (key.Select, error) {
	switch s {
	case "all":
		return key.All, nil
	case "continuations":
		return key.Continuations, nil
	case "transpositions":
		return key.Transpositions, nil
	default:
		return 0, fmt.Errorf("unknown select %q (want all, continuations, or transpositions)", s)
	}
}

func parseStrategy(s string) (search.Strategy, error) {
	switch s {
	case "interpolation":
		return search.Interpolation, nil
	case "binary":
		return search.Binary, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q (want interpolation or binary)", s)
	}
}

// keyFromMoves replays a comma-separated SAN move list through the fake
// chess state, returning the key of the position reached after the last
// move (spec §6's Position::start/Pos.do/Key::from, stood in for here; a
// production build wires a real external.ChessState).
func keyFromMoves(chess external.ChessState, moves string, level key.GameLevel, result key.GameResult) (key.Key, error) {
	pos := chess.Start()
	var rm uint32
	for _, san := range strings.Split(moves, ",") {
		san = strings.TrimSpace(san)
		if san == "" {
			continue
		}
		mv, err := chess.SANToMove(pos, san)
		if err != nil {
			return key.Key{}, errors.Wrapf(err, "query: %q", san)
		}
		rm = pos.Do(mv)
	}
	return chess.Key(pos, rm, level, result), nil
}

func newCmdQuery() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "query",
		Short:    "Query aggregated stats for one position",
		ArgsName: "db-path",
	}
	movesFlag := cmd.Flags.String("moves", "", "Comma-separated SAN move list locating the query position from the start position")
	levelFlag := cmd.Flags.String("level", "human", "Game level tag to query under: human, engine, or server")
	resultFlag := cmd.Flags.String("result", "draw", "Game result tag to query under: win, loss, or draw")
	selectFlag := cmd.Flags.String("select", "all", "Select mode: all, continuations, or transpositions")
	strategyFlag := cmd.Flags.String("strategy", "interpolation", "Search strategy: interpolation or binary")
	granularityFlag := cmd.Flags.Int64("granularity", 64, "Range-index granularity; must match the database's manifest")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("query takes one db-path argument, but got %v", argv)
		}
		level, err := parseLevel(*levelFlag)
		if err != nil {
			return err
		}
		result, err := parseResult(*resultFlag)
		if err != nil {
			return err
		}
		sel, err := parseSelect(*selectFlag)
		if err != nil {
			return err
		}
		strategy, err := parseStrategy(*strategyFlag)
		if err != nil {
			return err
		}

		sched := ioqueue.NewScheduler(map[string]string{argv[0]: "data"}, ioqueue.DefaultWorkers)
		defer sched.Close()

		chess := fake.ChessState{}
		database, err := db.Open(sched, argv[0], *granularityFlag, chess)
		if err != nil {
			return err
		}
		defer database.Close()

		k, err := keyFromMoves(chess, *movesFlag, level, result)
		if err != nil {
			return err
		}

		resp, err := database.Query(db.QueryRequest{
			Roots: []db.PositionQuery{{Key: k, Select: sel}},
		}, strategy)
		if err != nil {
			return err
		}
		printPositionResult(resp.Roots[0])
		return nil
	})
	return cmd
}

func parseResult(s string) (key.GameResult, error) {
	switch s {
	case "win":
		return key.Win, nil
	case "loss":
		return key.Loss, nil
	case "draw":
		return key.Draw, nil
	default:
		return 0, fmt.Errorf("unknown result %q (want win, loss, or draw)", s)
	}
}

func printPositionResult(r db.PositionResult) {
	levels := [3]key.GameLevel{key.Human, key.Engine, key.Server}
	results := [3]key.GameResult{key.Win, key.Loss, key.Draw}
	for _, lvl := range levels {
		for _, res := range results {
			bucket := r.Stats[lvl][res]
			if bucket.Count() == 0 {
				continue
			}
			offset, _ := bucket.Offset()
			fmt.Printf("%s/%s: count=%d first_game_offset=%d\n", lvl, res, bucket.Count(), offset)
			if h := r.Headers[lvl][res]; h != nil {
				fmt.Printf("  first_game (%d plies): %s\n", h.Plies, h.Bytes)
			}
		}
	}
}
