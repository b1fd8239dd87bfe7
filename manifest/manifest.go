// Package manifest reads and writes the root-level manifest.json (spec
// §6's on-disk layout) that records how a database root was built, so a
// later open can refuse to touch a root laid out incompatibly with the
// running binary — grounded on the discovery-guard role
// encoding/pam/pamutil.ReadShardIndex/ListIndexes play for a PAM directory,
// adapted here to a single small JSON file rather than a recordio index.
package manifest

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// FileName is the manifest's fixed location under a database root.
const FileName = "manifest.json"

// Manifest is the root-level descriptor of a database directory.
type Manifest struct {
	Name                  string `json:"name"`
	RequiresPositionIndex bool   `json:"requires_position_index"`
	IndexGranularity      int64  `json:"index_granularity"`
	CreatedAt             string `json:"created_at"` // RFC 3339; caller-supplied, never time.Now() here
}

// Path returns the manifest path under root.
func Path(root string) string {
	if root == "" {
		return FileName
	}
	return root + string(os.PathSeparator) + FileName
}

// Load reads and parses root's manifest.
func Load(root string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(Path(root))
	if err != nil {
		return m, errors.Wrapf(err, "manifest: read %s", Path(root))
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, errors.Wrapf(err, "manifest: parse %s", Path(root))
	}
	return m, nil
}

// Save writes m to root's manifest, creating or overwriting it.
func Save(root string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "manifest: encode")
	}
	if err := os.WriteFile(Path(root), data, 0644); err != nil {
		return errors.Wrapf(err, "manifest: write %s", Path(root))
	}
	return nil
}

// Exists reports whether root already has a manifest.
func Exists(root string) bool {
	_, err := os.Stat(Path(root))
	return err == nil
}

// Kind classifies manifest-compatibility errors (spec §7 style).
type Kind int

const (
	// IncompatibleGranularity means an existing manifest's index
	// granularity differs from the one the caller was opened with.
	IncompatibleGranularity Kind = iota
	// MissingPositionIndex means the manifest declares
	// requires_position_index but the caller was asked to skip building one.
	MissingPositionIndex
)

func (k Kind) String() string {
	switch k {
	case IncompatibleGranularity:
		return "incompatible index granularity"
	case MissingPositionIndex:
		return "manifest requires a position index"
	default:
		return "unknown"
	}
}

// Error is the typed error CheckCompatible raises.
type Error struct {
	Kind Kind
	Want int64
	Got  int64
}

func (e *Error) Error() string {
	return e.Kind.String()
}

// CheckCompatible verifies that opening a root with granularity and
// buildIndex matches what m declares, so an accidental granularity change
// or a requires_position_index root opened in no-index mode fails loudly
// at startup instead of producing a silently-unreadable range index later.
func CheckCompatible(m Manifest, granularity int64, buildIndex bool) error {
	if m.IndexGranularity != granularity {
		return &Error{Kind: IncompatibleGranularity, Want: m.IndexGranularity, Got: granularity}
	}
	if m.RequiresPositionIndex && !buildIndex {
		return &Error{Kind: MissingPositionIndex}
	}
	return nil
}
