// Package sstable implements the sorted-table file format: an
// immutable, ascending-by-key JSON-lines data file plus a sibling
// sparse block index, along with the writer, reader, streaming cursor,
// and point-lookup search that operate on it.
package sstable

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/sensorlsm/engine/internal/wal"
)

// IndexEntry is one sparse-index line: the first key, byte offset, and
// record count of one block.
type IndexEntry struct {
	Block       int    `json:"block"`
	FirstKey    string `json:"first_key"`
	Offset      int64  `json:"offset"`
	RecordCount int    `json:"record_count"`
}

const dataSuffix = ".jsonl"
const indexSuffix = ".index.jsonl"

// levelDir returns the on-disk directory for a level, e.g. "<root>/L0".
func levelDir(root string, level int) string {
	return filepath.Join(root, fmt.Sprintf("L%d", level))
}

func dataPath(root string, level int, fileID string) string {
	return filepath.Join(levelDir(root, level), fileID+dataSuffix)
}

func indexPath(root string, level int, fileID string) string {
	return filepath.Join(levelDir(root, level), fileID+indexSuffix)
}

// isDataFile reports whether name is a sorted-table data file (".jsonl"
// but not the compound ".index.jsonl" suffix, and not the WAL, which
// lives alongside L0's data files and shares their plain ".jsonl"
// suffix).
func isDataFile(name string) bool {
	if name == wal.FileName {
		return false
	}
	return strings.HasSuffix(name, dataSuffix) && !strings.HasSuffix(name, indexSuffix)
}

func fileIDFromDataName(name string) string {
	return strings.TrimSuffix(name, dataSuffix)
}

// appendLine writes v as one JSON line terminated by \n.
func appendLine(w *bufio.Writer, v any) (int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	if err != nil {
		return n, err
	}
	if err := w.WriteByte('\n'); err != nil {
		return n + 1, err
	}
	return n + 1, nil
}
