package sstable

import (
	"bufio"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"

	"github.com/sensorlsm/engine/internal/lsn"
	"github.com/sensorlsm/engine/internal/record"
)

// Reader lists and reads sorted-table files rooted at Root.
type Reader struct {
	Root string
}

// ListFileIDs returns every file id at level whose id is <= cursor. An
// empty cursor means nothing is visible (the lsn.Min convention). Order
// is unspecified; callers sort as needed.
func (r *Reader) ListFileIDs(level int, cursor string) ([]string, error) {
	if cursor == "" {
		cursor = lsn.Min
	}

	dir := levelDir(r.Root, level)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sstable: read level directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !isDataFile(e.Name()) {
			continue
		}
		id := fileIDFromDataName(e.Name())
		if id <= cursor {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ReadIndex returns every block's index entry for fileID, in file order.
func (r *Reader) ReadIndex(level int, fileID string) ([]IndexEntry, error) {
	f, err := os.Open(indexPath(r.Root, level, fileID))
	if err != nil {
		return nil, fmt.Errorf("sstable: open index file: %w", err)
	}
	defer f.Close()

	var entries []IndexEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e IndexEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("sstable: decode index entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("sstable: scan index file: %w", err)
	}
	return entries, nil
}

// ReadBlock seeks to entry.Offset and decodes entry.RecordCount records
// in block order.
func (r *Reader) ReadBlock(level int, fileID string, entry IndexEntry) ([]record.Record, error) {
	f, err := os.Open(dataPath(r.Root, level, fileID))
	if err != nil {
		return nil, fmt.Errorf("sstable: open data file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(entry.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("sstable: seek to block offset: %w", err)
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	records := make([]record.Record, 0, entry.RecordCount)
	for i := 0; i < entry.RecordCount; i++ {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return nil, fmt.Errorf("sstable: corrupt block: %w", err)
			}
			return nil, fmt.Errorf("sstable: corrupt block: expected %d records, found %d", entry.RecordCount, i)
		}
		var rec record.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("sstable: decode record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetKeyRange returns a file's [first_key, last_key], reading only the
// index for first_key and the final block's last record for last_key.
// This is the only reader operation that touches file bodies during
// compaction planning.
func (r *Reader) GetKeyRange(level int, fileID string) (first, last string, ok bool, err error) {
	idx, err := r.ReadIndex(level, fileID)
	if err != nil {
		return "", "", false, err
	}
	if len(idx) == 0 {
		return "", "", false, nil
	}

	first = idx[0].FirstKey

	lastBlock := idx[len(idx)-1]
	recs, err := r.ReadBlock(level, fileID, lastBlock)
	if err != nil {
		return "", "", false, err
	}
	if len(recs) == 0 {
		return "", "", false, nil
	}
	last = recs[len(recs)-1].Key

	return first, last, true, nil
}
