package cmd

import (
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"v.io/x/lib/cmdline"

	"github.com/gotchess/chessposdb/db"
	"github.com/gotchess/chessposdb/external/fake"
	"github.com/gotchess/chessposdb/internal/ioqueue"
)

func newCmdMerge() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "merge",
		Short:    "Merge every segment of a database into one, in place",
		ArgsName: "db-path",
	}
	granularityFlag := cmd.Flags.Int64("granularity", 64, "Range-index granularity; must match the database's manifest")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("merge takes one db-path argument, but got %v", argv)
		}
		sched := ioqueue.NewScheduler(map[string]string{argv[0]: "data"}, ioqueue.DefaultWorkers)
		defer sched.Close()

		database, err := db.Open(sched, argv[0], *granularityFlag, fake.ChessState{})
		if err != nil {
			return err
		}
		defer database.Close()

		return database.MergeAll()
	})
	return cmd
}
