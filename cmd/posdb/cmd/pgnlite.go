package cmd

// Movetext tokenizing good enough to drive the ingest pipeline end to end
// from the command line. Real PGN parsing (disambiguation, variations,
// comments, NAGs) is an external collaborator per spec §6 — this is not
// that parser, just enough text handling to exercise the pipeline without
// one. A production build wires a real github.com/gotchess/chessposdb/external.PGNReader here instead.

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/gotchess/chessposdb/db"
	"github.com/gotchess/chessposdb/external"
	"github.com/gotchess/chessposdb/external/fake"
	"github.com/gotchess/chessposdb/internal/key"
)

var (
	moveNumberRe = regexp.MustCompile(`^\d+\.+$`)
	resultTokens = map[string]key.GameResult{
		"1-0":     key.Win,
		"0-1":     key.Loss,
		"1/2-1/2": key.Draw,
	}
)

// loadPGNBlocks reads every path as a loose sequence of games: tag-pair
// lines (starting with '[') are dropped, and the remaining movetext is
// split into games at each result token. Move-number prefixes ("12." or
// "12...") are stripped from the following SAN token if fused, or dropped
// outright if standalone.
func loadPGNBlocks(paths []string) ([]db.Block, error) {
	blocks := make([]db.Block, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "posdb: read %s", p)
		}
		games := splitGames(string(data))
		blocks = append(blocks, db.Block{
			Reader:   fake.NewPGNReader(games),
			PGNBytes: int64(len(data)),
		})
	}
	return blocks, nil
}

func splitGames(text string) []fake.Game {
	var games []fake.Game
	var moves []string
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		for _, tok := range strings.Fields(line) {
			tok = stripMoveNumber(tok)
			if tok == "" {
				continue
			}
			if result, ok := resultTokens[tok]; ok {
				if len(moves) > 0 {
					games = append(games, fake.Game{
						Header: fakeHeader(result, moves),
						Moves:  moves,
					})
				}
				moves = nil
				continue
			}
			moves = append(moves, tok)
		}
	}
	if len(moves) > 0 {
		games = append(games, fake.Game{Header: fakeHeader(key.Draw, moves), Moves: moves})
	}
	return games
}

func fakeHeader(result key.GameResult, moves []string) external.Game {
	return external.Game{
		Result:   result,
		PlyCount: len(moves),
		HasPlies: true,
		Raw:      []byte(strings.Join(moves, " ")),
	}
}

func stripMoveNumber(tok string) string {
	if moveNumberRe.MatchString(tok) {
		return ""
	}
	if i := strings.IndexByte(tok, '.'); i >= 0 && i < len(tok)-1 {
		prefix := tok[:i]
		allDigits := prefix != ""
		for _, r := range prefix {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			return strings.TrimLeft(tok[i:], ".")
		}
	}
	return tok
}
