// Package config loads the startup configuration of spec §6: a single
// JSON document, read once and never mutated afterward. There are no
// environment-variable overrides by design.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/gotchess/chessposdb/internal/filelayer"
	"github.com/gotchess/chessposdb/internal/ioqueue"
)

// Config is the core's entire startup configuration (spec §6). Every field
// has a sane default (see Default) so a caller can load a partial JSON
// document and get a working configuration for anything it omits.
type Config struct {
	// IndexGranularity is the number of entries spanned by one range-index
	// bucket ("entries per range").
	IndexGranularity int64 `json:"index_granularity"`
	// MaxMergeBufferSize bounds, in bytes, the in-memory buffer used by the
	// k-way external merge.
	MaxMergeBufferSize int64 `json:"max_merge_buffer_size"`
	// PGNParserMemory is the memory budget, in bytes, import() divides
	// across reusable entry buffers and its parse workers.
	PGNParserMemory int64 `json:"pgn_parser_memory"`
	// VolumeMap maps a path prefix to an ioqueue pool id, as consumed
	// directly by ioqueue.NewScheduler.
	VolumeMap map[string]string `json:"volume_map"`
	// MergeFanout is the number of runs the k-way external merge reads
	// concurrently.
	MergeFanout int `json:"merge_fanout"`
	// WorkersPerVolume is the worker-pool size ioqueue.NewScheduler gives
	// each distinct volume.
	WorkersPerVolume int `json:"workers_per_volume"`
	// FilePoolCapacity is the process-global cap on simultaneously open
	// pooled OS file handles.
	FilePoolCapacity int `json:"file_pool_capacity"`
}

// Default returns the configuration used when no JSON document overrides a
// field, matching the defaults named throughout spec §4.
func Default() Config {
	return Config{
		IndexGranularity:   64,
		MaxMergeBufferSize: 64 << 20,
		PGNParserMemory:    256 << 20,
		VolumeMap:          map[string]string{},
		MergeFanout:        192,
		WorkersPerVolume:   ioqueue.DefaultWorkers,
		FilePoolCapacity:   filelayer.DefaultPoolCapacity,
	}
}

// Load reads a JSON configuration document from path, overlaying it onto
// Default() so an omitted field keeps its default rather than zeroing out.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "config: read %s", path)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parse %s", path)
	}
	return cfg, nil
}
