// Package lsm implements the LSM coordinator: the single entry point
// that threads the sequence issuer, write-ahead log, memtable, and
// sorted-table reader/writer/compactor into the engine's
// save/search/delete/compact/level_counts/memtable_keys/truncate/restore
// surface.
package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sensorlsm/engine/internal/compaction"
	"github.com/sensorlsm/engine/internal/lsn"
	"github.com/sensorlsm/engine/internal/memtable"
	"github.com/sensorlsm/engine/internal/record"
	"github.com/sensorlsm/engine/internal/sstable"
	"github.com/sensorlsm/engine/internal/wal"
)

// MaxLevel is the highest on-disk tier this engine ever searches or
// compacts into: no level beyond L1 is compacted.
const MaxLevel = 1

// Config configures an Engine's on-disk layout and tuning knobs.
type Config struct {
	DataRoot         string
	Memtable         memtable.Config
	BlocksPerFile    int
	MinFilesPerLevel compaction.MinFilesPerLevel
}

// DefaultConfig returns sane defaults rooted at dataRoot.
func DefaultConfig(dataRoot string) Config {
	return Config{
		DataRoot:      dataRoot,
		Memtable:      memtable.DefaultConfig(),
		BlocksPerFile: 4,
		MinFilesPerLevel: func(level int) int {
			if level == 1 {
				return 2
			}
			return 1
		},
	}
}

// LevelCount is one level_counts() row.
type LevelCount struct {
	Level int
	Count int
}

// Engine is the storage engine's coordinator. Not safe for concurrent
// use — the engine is single-writer.
type Engine struct {
	config Config
	mt     *memtable.Table
	issuer *lsn.Issuer
	w      *wal.WAL
	reader *sstable.Reader
	writer *sstable.Writer
	comp   *compaction.Compactor

	lastID map[int]string
}

// Open constructs an Engine rooted at config.DataRoot, replaying any WAL
// left behind by a prior crash.
func Open(config Config) (*Engine, error) {
	if err := os.MkdirAll(config.DataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("lsm: create data root: %w", err)
	}

	issuer := lsn.NewIssuer()
	reader := &sstable.Reader{Root: config.DataRoot}
	writer := &sstable.Writer{Root: config.DataRoot, IDGen: issuer.Next}

	e := &Engine{
		config: config,
		mt:     memtable.New(config.Memtable),
		issuer: issuer,
		w:      wal.Open(config.DataRoot),
		reader: reader,
		writer: writer,
		comp: &compaction.Compactor{
			Reader:           reader,
			Writer:           writer,
			BlockSize:        config.Memtable.BlockSize,
			BlocksPerFile:    config.BlocksPerFile,
			MinFilesPerLevel: config.MinFilesPerLevel,
		},
		lastID: map[int]string{0: lsn.Max, 1: ""},
	}

	l1IDs, err := reader.ListFileIDs(1, lsn.Max)
	if err != nil {
		return nil, fmt.Errorf("lsm: list L1 files: %w", err)
	}
	if len(l1IDs) > 0 {
		sort.Strings(l1IDs)
		e.lastID[1] = l1IDs[len(l1IDs)-1]
	}

	if err := e.Restore(); err != nil {
		return nil, err
	}

	return e, nil
}

// Restore replays the WAL, if one exists, line by line into the current
// memtable, assigning a fresh LSN per record. A missing WAL is not an
// error.
func (e *Engine) Restore() error {
	return wal.Replay(e.config.DataRoot, func(r record.Record) error {
		newLSN := e.issuer.Next()
		if record.IsTombstone(r.Value) {
			e.mt.Delete(r.Key, newLSN)
			return nil
		}
		return e.mt.Insert(r.Key, r.Value, newLSN)
	})
}

// flushIfFull is the pre-save check: if the memtable is full, flush it
// to a new L0 file, install a fresh memtable, and unlink the WAL.
func (e *Engine) flushIfFull() error {
	if !e.mt.Full() {
		return nil
	}

	// lastID[0] stays at lsn.Max: L0 visibility is controlled by which
	// files exist, not by advancing a cursor.
	if _, _, err := e.writer.Write(0, e.mt.BlockSize(), e.mt.Records()); err != nil {
		return fmt.Errorf("lsm: flush memtable: %w", err)
	}

	e.mt = memtable.New(e.config.Memtable)
	if err := e.w.Delete(); err != nil {
		return fmt.Errorf("lsm: delete wal after flush: %w", err)
	}
	return nil
}

// Save flushes the memtable if full, validates and normalizes rawInput,
// appends to the WAL, then inserts with a fresh LSN.
func (e *Engine) Save(customerID, rawInput string) error {
	if err := e.flushIfFull(); err != nil {
		return err
	}

	reading, err := record.ParseSensorCSV(rawInput)
	if err != nil {
		return err
	}
	key := record.MakeKey(customerID, reading.Device)
	value := reading.ToValue()

	if err := e.w.Append(key, value); err != nil {
		return fmt.Errorf("lsm: append to wal: %w", err)
	}

	return e.mt.Insert(key, value, e.issuer.Next())
}

// Search queries the memtable first, then each on-disk level in order,
// stopping at the first hit (including a tombstone).
func (e *Engine) Search(key string) (value any, source string, found bool) {
	if v, _, ok := e.mt.Search(key); ok {
		if record.IsTombstone(v) {
			return nil, "MT-x", false
		}
		return v, "MT", true
	}

	for level := 0; level <= MaxLevel; level++ {
		v, ok, err := e.reader.Search(key, level, e.lastID[level])
		if err != nil || !ok {
			continue
		}
		tag := fmt.Sprintf("L%d", level)
		if record.IsTombstone(v) {
			return nil, tag + "-x", false
		}
		return v, tag, true
	}

	return nil, "", false
}

// Delete tombstones the memtable entry and appends the tombstone to
// the WAL.
func (e *Engine) Delete(key string) error {
	newLSN := e.issuer.Next()
	if err := e.w.Append(key, record.Tombstone); err != nil {
		return fmt.Errorf("lsm: append tombstone to wal: %w", err)
	}
	e.mt.Delete(key, newLSN)
	return nil
}

// Compact drives the compactor, removes the consumed L0 file, prunes
// superseded L1 files, and advances the L1 visibility cursor.
func (e *Engine) Compact() error {
	res, err := e.comp.CompactLevelZero(e.lastID[1])
	if err != nil {
		return fmt.Errorf("lsm: compact: %w", err)
	}
	if res.ConsumedL0 != "" {
		e.writer.RemoveFile(0, res.ConsumedL0)
	}

	newest, err := e.writer.PreserveFiles(1, res.SurvivingL1)
	if err != nil {
		return fmt.Errorf("lsm: prune superseded L1 files: %w", err)
	}
	e.lastID[1] = newest
	return nil
}

// LevelCounts returns the memtable's live count, plus (unless
// memtableOnly) the summed record count over every index entry of
// every visible file at each level.
func (e *Engine) LevelCounts(memtableOnly bool) (memtableCount int, levels []LevelCount, err error) {
	memtableCount = e.mt.Count()
	if memtableOnly {
		return memtableCount, nil, nil
	}

	var counts []LevelCount
	for level := 0; level <= MaxLevel; level++ {
		ids, ferr := e.reader.ListFileIDs(level, e.lastID[level])
		if ferr != nil {
			return memtableCount, nil, fmt.Errorf("lsm: list level %d files: %w", level, ferr)
		}
		total := 0
		for _, id := range ids {
			idx, ierr := e.reader.ReadIndex(level, id)
			if ierr != nil {
				return memtableCount, nil, fmt.Errorf("lsm: read index for %s: %w", id, ierr)
			}
			for _, entry := range idx {
				total += entry.RecordCount
			}
		}
		counts = append(counts, LevelCount{Level: level, Count: total})
	}
	return memtableCount, counts, nil
}

// MemtableKeys returns the ordered sequence of live keys currently
// buffered in memory.
func (e *Engine) MemtableKeys() []string {
	var keys []string
	for k := range e.mt.OrderedKeys() {
		keys = append(keys, k)
	}
	return keys
}

// Truncate removes every file in the level directories (L0/ and L1/),
// resets the memtable, and deletes the WAL. confirm must be exactly "Y" or
// Truncate is a no-op.
func (e *Engine) Truncate(confirm string) error {
	if confirm != "Y" {
		return nil
	}

	for level := 0; level <= MaxLevel; level++ {
		dir := filepath.Join(e.config.DataRoot, fmt.Sprintf("L%d", level))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("lsm: read level %d directory: %w", level, err)
		}
		for _, ent := range entries {
			if ent.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, ent.Name())); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("lsm: remove %s: %w", ent.Name(), err)
			}
		}
	}

	e.mt = memtable.New(e.config.Memtable)
	e.lastID = map[int]string{0: lsn.Max, 1: ""}
	if err := e.w.Delete(); err != nil {
		return fmt.Errorf("lsm: delete wal on truncate: %w", err)
	}
	return nil
}
