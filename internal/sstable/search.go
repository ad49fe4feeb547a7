package sstable

import (
	"fmt"
	"sort"

	"github.com/sensorlsm/engine/internal/lsn"
)

// Search performs a point lookup within one level.
//
// For level 0 (possibly overlapping files) lastID is ignored for
// visibility filtering — L0's visibility is the coordinator's concern,
// driven by flushes, not this function's. For level >= 1
// (non-overlapping files) lastID gates which files are visible, per the
// level's visibility cursor.
func (r *Reader) Search(key string, level int, lastID string) (value any, found bool, err error) {
	cursor := lastID
	if level == 0 {
		cursor = lsn.Max
	}

	ids, err := r.ListFileIDs(level, cursor)
	if err != nil {
		return nil, false, err
	}
	if len(ids) == 0 {
		return nil, false, nil
	}

	if level == 0 {
		return r.searchL0(key, ids)
	}
	return r.searchLn(key, level, ids)
}

// searchL0 iterates files newest-first, stopping at the first hit
// (including a tombstone).
func (r *Reader) searchL0(key string, ids []string) (any, bool, error) {
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	for _, id := range ids {
		val, found, err := r.searchFile(0, id, key)
		if err != nil {
			return nil, false, err
		}
		if found {
			return val, true, nil
		}
	}
	return nil, false, nil
}

// searchLn binary-searches the one non-overlapping file that can
// possibly contain key, by the first key of each file.
func (r *Reader) searchLn(key string, level int, ids []string) (any, bool, error) {
	type fileStart struct {
		firstKey string
		fileID   string
	}
	starts := make([]fileStart, 0, len(ids))
	for _, id := range ids {
		idx, err := r.ReadIndex(level, id)
		if err != nil {
			return nil, false, err
		}
		if len(idx) == 0 {
			continue
		}
		starts = append(starts, fileStart{firstKey: idx[0].FirstKey, fileID: id})
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].firstKey < starts[j].firstKey })

	// Rightmost file whose firstKey <= key.
	i := sort.Search(len(starts), func(i int) bool { return starts[i].firstKey > key }) - 1
	if i < 0 {
		return nil, false, nil
	}

	return r.searchFile(level, starts[i].fileID, key)
}

// searchFile is the per-file lookup: binary-search the rightmost block
// whose first key is <= key, then linearly scan that one block.
func (r *Reader) searchFile(level int, fileID, key string) (any, bool, error) {
	idx, err := r.ReadIndex(level, fileID)
	if err != nil {
		return nil, false, fmt.Errorf("sstable: search file %s: %w", fileID, err)
	}
	if len(idx) == 0 || key < idx[0].FirstKey {
		return nil, false, nil
	}

	i := sort.Search(len(idx), func(i int) bool { return idx[i].FirstKey > key }) - 1
	if i < 0 {
		return nil, false, nil
	}

	recs, err := r.ReadBlock(level, fileID, idx[i])
	if err != nil {
		return nil, false, err
	}

	for _, rec := range recs {
		if rec.Key == key {
			return rec.Value, true, nil
		}
		if rec.Key > key {
			break
		}
	}
	return nil, false, nil
}
