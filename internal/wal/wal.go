// Package wal implements the write-ahead log: an append-only
// JSON-lines record of memtable mutations, replayed on startup and
// truncated once its contents are durably reflected in a flushed L0
// file.
package wal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/sensorlsm/engine/internal/record"
)

// FileName is the WAL's fixed name under L0/.
const FileName = "wal.jsonl"

// WAL is the append-only durability log at <dataRoot>/L0/wal.jsonl.
type WAL struct {
	path string
	file *os.File
	w    *bufio.Writer
}

// Open returns a WAL bound to dataRoot, creating L0/ on demand. The
// underlying file is opened lazily on the first Append.
func Open(dataRoot string) *WAL {
	return &WAL{path: filepath.Join(dataRoot, "L0", FileName)}
}

// Path returns the WAL's file path.
func (w *WAL) Path() string {
	return w.path
}

// Exists reports whether a WAL file is currently present on disk.
func (w *WAL) Exists() bool {
	_, err := os.Stat(w.path)
	return err == nil
}

// Append writes one {"key","value"} JSON line and flushes it to the OS.
// An OS-level flush is sufficient durability for this engine's
// contract — no fsync per record is mandated.
func (w *WAL) Append(key string, value any) error {
	if w.file == nil {
		if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
			return fmt.Errorf("wal: create directory: %w", err)
		}
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("wal: open: %w", err)
		}
		w.file = f
		w.w = bufio.NewWriter(f)
	}

	b, err := json.Marshal(record.Record{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("wal: marshal record: %w", err)
	}
	if _, err := w.w.Write(b); err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	return nil
}

// Delete unlinks the WAL file. Idempotent: a missing file is not an
// error.
func (w *WAL) Delete() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
		w.w = nil
	}
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("wal: delete: %w", err)
	}
	return nil
}

// Replay reads every record in the WAL in write order and invokes apply
// for each. A missing WAL file is not an error — it simply means there
// is nothing to replay.
func Replay(dataRoot string, apply func(record.Record) error) error {
	path := filepath.Join(dataRoot, "L0", FileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("wal: open for replay: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("wal: decode entry: %w", err)
		}
		if err := apply(rec); err != nil {
			return fmt.Errorf("wal: apply entry for key %q: %w", rec.Key, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("wal: scan: %w", err)
	}
	return nil
}
