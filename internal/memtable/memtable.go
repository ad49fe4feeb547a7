// Package memtable implements the in-memory ordered write buffer: a
// skip list keyed by LSN-aware inserts and tombstone deletes, with
// ordered iteration for flushing to L0.
package memtable

import (
	"fmt"
	"iter"

	"github.com/sensorlsm/engine/internal/record"
)

// Config configures a Table.
type Config struct {
	// MaxLevel bounds the skip list's height.
	MaxLevel int
	// BlockSize is the number of records per block when this table is
	// flushed to an L0 sorted table.
	BlockSize int
	// MaxCount triggers a flush once the live key count reaches it.
	MaxCount int
}

// DefaultConfig returns the engine's default memtable sizing.
func DefaultConfig() Config {
	return Config{
		MaxLevel:  16,
		BlockSize: 64,
		MaxCount:  100,
	}
}

// Stats tracks the operational counters a single-writer memtable needs.
type Stats struct {
	PutCount    uint64
	DeleteCount uint64
	FlushCount  uint64
}

// WriteSequenceError reports that an insert presented an LSN older than
// the one already stored for the same key. It is fatal to the caller:
// the engine never recovers from it internally.
type WriteSequenceError struct {
	Key       string
	Stored    string
	Attempted string
}

func (e *WriteSequenceError) Error() string {
	return fmt.Sprintf("memtable: write sequence violation for key %q: stored lsn %q > attempted lsn %q", e.Key, e.Stored, e.Attempted)
}

// Table is the ordered in-memory index. It is not safe for concurrent
// use — the engine is single-writer.
type Table struct {
	config    Config
	list      *skipList
	liveCount int
	stats     Stats
	scratch   []*node // reused update-path buffer for skipList.upsert
}

// New creates an empty Table.
func New(config Config) *Table {
	return &Table{
		config:  config,
		list:    newSkipList(config.MaxLevel),
		scratch: make([]*node, config.MaxLevel),
	}
}

// Insert installs value under key at lsn. If key already exists with a
// newer stored LSN, it fails with WriteSequenceError; otherwise it
// overwrites the value, reviving a tombstone if one was present and
// incrementing liveCount accordingly.
func (t *Table) Insert(key string, value any, lsn string) error {
	n, created := t.list.upsert(key, t.scratch)
	if !created {
		if n.lsn > lsn {
			return &WriteSequenceError{Key: key, Stored: n.lsn, Attempted: lsn}
		}
		wasTombstone := n.deleted
		n.value = value
		n.lsn = lsn
		n.deleted = false
		if wasTombstone {
			t.liveCount++
		}
	} else {
		n.value = value
		n.lsn = lsn
		t.liveCount++
	}
	t.stats.PutCount++
	return nil
}

// Delete overwrites key's value with the tombstone sentinel, decrementing
// liveCount if the key was live, or inserts a fresh tombstone node if the
// key was absent so the deletion still reaches L0 on flush.
func (t *Table) Delete(key string, lsn string) {
	n, created := t.list.upsert(key, t.scratch)
	if created {
		n.value = record.Tombstone
		n.lsn = lsn
		n.deleted = true
	} else {
		if !n.deleted {
			t.liveCount--
		}
		n.value = record.Tombstone
		n.lsn = lsn
		n.deleted = true
	}
	t.stats.DeleteCount++
}

// Search returns the stored value and LSN for key, including tombstones
// — the caller (the LSM coordinator) is responsible for translating a
// tombstone hit into "not found".
func (t *Table) Search(key string) (value any, lsn string, found bool) {
	n := t.list.get(key)
	if n == nil {
		return nil, "", false
	}
	return n.value, n.lsn, true
}

// Count returns the number of live (non-tombstoned) keys.
func (t *Table) Count() int {
	return t.liveCount
}

// Full reports whether the table has reached its configured MaxCount.
func (t *Table) Full() bool {
	return t.liveCount >= t.config.MaxCount
}

// OrderedKeys returns a lazy ascending sequence of live keys.
func (t *Table) OrderedKeys() iter.Seq[string] {
	return func(yield func(string) bool) {
		t.list.ascend(func(n *node) bool {
			return yield(n.key)
		})
	}
}

// Records returns a lazy ascending sequence over every node, tombstones
// included — flushing to L0 must carry deletions forward so later
// searches against the sorted tables still see them.
func (t *Table) Records() iter.Seq[record.Record] {
	return func(yield func(record.Record) bool) {
		t.list.ascendAll(func(n *node) bool {
			return yield(record.Record{Key: n.key, Value: n.value})
		})
	}
}

// BlockSize returns the configured flush block size.
func (t *Table) BlockSize() int {
	return t.config.BlockSize
}
