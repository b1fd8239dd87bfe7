package cmd

import (
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"v.io/x/lib/cmdline"

	"github.com/gotchess/chessposdb/db"
	"github.com/gotchess/chessposdb/external/fake"
	"github.com/gotchess/chessposdb/internal/ioqueue"
)

func newCmdReplicate() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "replicate",
		Short:    "Write a merged copy of a database to a new path, leaving the source untouched",
		ArgsName: "src-db-path dst-db-path",
	}
	granularityFlag := cmd.Flags.Int64("granularity", 64, "Range-index granularity; must match the source database's manifest")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("replicate takes src-db-path and dst-db-path, but got %v", argv)
		}
		sched := ioqueue.NewScheduler(map[string]string{argv[0]: "data"}, ioqueue.DefaultWorkers)
		defer sched.Close()

		database, err := db.Open(sched, argv[0], *granularityFlag, fake.ChessState{})
		if err != nil {
			return err
		}
		defer database.Close()

		return database.ReplicateMergeAll(argv[1])
	})
	return cmd
}
