package segment

import (
	"os"
	"sort"

	"github.com/grailbio/base/log"
)

// discovered is one data-file candidate found while listing dir.
type discovered struct {
	id   int
	size int64
}

// discoverIDs lists dir for segment data files, skipping sibling index
// files, zero-size files, and any data file missing its sibling index —
// each skip other than a plain index file logs a warning (spec §9's
// resolved Open Question on partition rediscovery). The returned ids are
// sorted ascending.
func discoverIDs(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var found []discovered
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if isIndexName(name) {
			continue
		}
		id, ok := parseSegmentID(name)
		if !ok {
			log.Error.Printf("segment: skipping unrecognized directory entry %q in %s", name, dir)
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, err
		}
		if info.Size() == 0 {
			log.Error.Printf("segment: skipping zero-size segment file %d in %s", id, dir)
			continue
		}
		if _, err := os.Stat(siblingIndexPath(dataPath(dir, id))); err != nil {
			log.Error.Printf("segment: skipping segment %d in %s: missing sibling index: %v", id, dir, err)
			continue
		}
		found = append(found, discovered{id: id, size: info.Size()})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].id < found[j].id })
	ids := make([]int, len(found))
	for i, d := range found {
		ids[i] = d.id
	}
	return ids, nil
}
