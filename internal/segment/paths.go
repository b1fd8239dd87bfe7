package segment

import (
	"path/filepath"
	"strconv"
	"strings"
)

const indexSuffix = "_index"

func dataPath(dir string, id int) string {
	return filepath.Join(dir, strconv.Itoa(id))
}

func siblingIndexPath(dataPath string) string {
	return dataPath + indexSuffix
}

// isIndexName reports whether name names a sibling index file rather than
// segment data — the spec's rule that "any name containing index is
// non-data" (§9's resolved Open Question).
func isIndexName(name string) bool {
	return strings.Contains(name, "index")
}

func parseSegmentID(name string) (int, bool) {
	id, err := strconv.Atoi(name)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
