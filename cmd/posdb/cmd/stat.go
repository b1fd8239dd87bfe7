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

func newCmdStat() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "stat",
		Short:    "Show a database's segment count and per-level game counts",
		ArgsName: "db-path",
	}
	granularityFlag := cmd.Flags.Int64("granularity", 64, "Range-index granularity; must match the database's manifest")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("stat takes one db-path argument, but got %v", argv)
		}
		sched := ioqueue.NewScheduler(map[string]string{argv[0]: "data"}, ioqueue.DefaultWorkers)
		defer sched.Close()

		database, err := db.Open(sched, argv[0], *granularityFlag, fake.ChessState{})
		if err != nil {
			return err
		}
		defer database.Close()

		s := database.Stat()
		fmt.Printf("segments=%d\n", s.Segments)
		for _, lvl := range [...]key.GameLevel{key.Human, key.Engine, key.Server} {
			fmt.Printf("%s_games=%d\n", lvl, s.Games[lvl])
		}
		return nil
	})
	return cmd
}
