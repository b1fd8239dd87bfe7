// Package cmd implements the posdb CLI's subcommands, following the
// v.io/x/lib/cmdline + grailbio/base/cmdutil pattern bio-pamtool's command
// tree uses.
package cmd

import (
	"log"

	"v.io/x/lib/cmdline"
)

func Run() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "posdb",
			Short:    "Content-addressed chess position database",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdImport(),
				newCmdQuery(),
				newCmdMerge(),
				newCmdReplicate(),
				newCmdStat(),
			},
		})
}
