package cmd

import (
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"v.io/x/lib/cmdline"

	"github.com/gotchess/chessposdb/db"
	"github.com/gotchess/chessposdb/external/fake"
	"github.com/gotchess/chessposdb/internal/ioqueue"
	"github.com/gotchess/chessposdb/internal/key"
)

func parseLevel(s string) (key.GameLevel, error) {
	switch s {
	case "human":
		return key.Human, nil
	case "engine":
		return key.Engine, nil
	case "server":
		return key.Server, nil
	default:
		return 0, fmt.Errorf("unknown level %q (want human, engine, or server)", s)
	}
}

func newCmdImport() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "import",
		Short:    "Ingest PGN files into a position database",
		ArgsName: "db-path pgn-file...",
	}
	levelFlag := cmd.Flags.String("level", "human", "Game level to tag every imported position with: human, engine, or server")
	memoryFlag := cmd.Flags.Int64("memory", 256<<20, "Memory budget, in bytes, divided across the ingest pipeline's entry buffers")
	granularityFlag := cmd.Flags.Int64("granularity", 64, "Range-index granularity for a freshly created database")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) < 2 {
			return fmt.Errorf("import takes a db-path followed by one or more pgn files, but got %v", argv)
		}
		level, err := parseLevel(*levelFlag)
		if err != nil {
			return err
		}

		sched := ioqueue.NewScheduler(map[string]string{argv[0]: "data"}, ioqueue.DefaultWorkers)
		defer sched.Close()

		database, err := db.Open(sched, argv[0], *granularityFlag, fake.ChessState{})
		if err != nil {
			return err
		}
		defer database.Close()

		blocks, err := loadPGNBlocks(argv[1:])
		if err != nil {
			return err
		}

		stats, err := database.Import(blocks, *memoryFlag, level)
		if err != nil {
			return err
		}
		fmt.Printf("games=%d skipped_games=%d positions=%d\n", stats.Games, stats.SkippedGames, stats.Positions)
		return nil
	})
	return cmd
}
