package sstable

import (
	"fmt"

	"github.com/sensorlsm/engine/internal/record"
)

// Cursor streams one file's records a block at a time, holding at most
// one block in memory. Priority is a caller-supplied tie-break: lower
// wins when two cursors carry the same key during a k-way merge.
type Cursor struct {
	reader   *Reader
	level    int
	fileID   string
	Priority int

	index   []IndexEntry
	blockNo int
	block   []record.Record
	pos     int

	cur   record.Record
	ok    bool
	atEnd bool
}

// MakeCursor opens fileID at level for streaming and positions the
// cursor at the first record, if any.
func (r *Reader) MakeCursor(level int, fileID string, priority int) (*Cursor, error) {
	idx, err := r.ReadIndex(level, fileID)
	if err != nil {
		return nil, fmt.Errorf("sstable: make cursor: %w", err)
	}
	c := &Cursor{reader: r, level: level, fileID: fileID, Priority: priority, index: idx}
	if len(idx) == 0 {
		c.atEnd = true
		return c, nil
	}
	if err := c.loadBlock(0); err != nil {
		return nil, err
	}
	c.advanceWithinBlock()
	return c, nil
}

func (c *Cursor) loadBlock(blockNo int) error {
	recs, err := c.reader.ReadBlock(c.level, c.fileID, c.index[blockNo])
	if err != nil {
		return fmt.Errorf("sstable: cursor load block %d of %s: %w", blockNo, c.fileID, err)
	}
	c.blockNo = blockNo
	c.block = recs
	c.pos = 0
	return nil
}

// advanceWithinBlock sets cur/ok from the current block position,
// rolling over to the next block (or ending the cursor) as needed.
func (c *Cursor) advanceWithinBlock() {
	for {
		if c.pos < len(c.block) {
			c.cur = c.block[c.pos]
			c.ok = true
			return
		}
		if c.blockNo+1 >= len(c.index) {
			c.ok = false
			c.atEnd = true
			return
		}
		if err := c.loadBlock(c.blockNo + 1); err != nil {
			c.ok = false
			c.atEnd = true
			return
		}
	}
}

// Valid reports whether the cursor currently holds a record.
func (c *Cursor) Valid() bool {
	return c.ok
}

// Record returns the record currently under the cursor. Valid must be
// true.
func (c *Cursor) Record() record.Record {
	return c.cur
}

// Advance moves to the next record, returning false once the file is
// exhausted.
func (c *Cursor) Advance() bool {
	if c.atEnd {
		c.ok = false
		return false
	}
	c.pos++
	c.advanceWithinBlock()
	return c.ok
}
