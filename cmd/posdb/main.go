// Command posdb is the CLI front end for the chess position database:
// import, query, merge, replicate, and stat subcommands over a database
// rooted at a filesystem path (spec §4.9's facade, §6's CLI surface).
package main

import "github.com/gotchess/chessposdb/cmd/posdb/cmd"

func main() {
	cmd.Run()
}
