package sstable

import (
	"bufio"
	"fmt"
	"iter"
	"log"
	"os"
	"sort"

	"github.com/sensorlsm/engine/internal/record"
)

// Writer streams ordered record sequences into new immutable sorted
// table files. IDGen supplies a fresh file id per output file — the
// coordinator wires this to an lsn.Issuer, since file ids and LSNs
// share the same sortable-token contract.
type Writer struct {
	Root  string
	IDGen func() string
}

// Write consumes records and streams them into one freshly allocated
// file under L<level>/, grouping every blockSize records into a block
// with one sparse index entry per block. If records is empty, no files
// are created and fileID is returned empty — the caller must handle
// that.
func (w *Writer) Write(level int, blockSize int, records iter.Seq[record.Record]) (path string, fileID string, err error) {
	if blockSize <= 0 {
		blockSize = 1
	}

	dir := levelDir(w.Root, level)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("sstable: create level directory: %w", err)
	}

	id := w.IDGen()
	dPath := dataPath(w.Root, level, id)
	iPath := indexPath(w.Root, level, id)

	dataFile, err := os.Create(dPath)
	if err != nil {
		return "", "", fmt.Errorf("sstable: create data file: %w", err)
	}
	defer dataFile.Close()
	indexFile, err := os.Create(iPath)
	if err != nil {
		return "", "", fmt.Errorf("sstable: create index file: %w", err)
	}
	defer indexFile.Close()

	dw := bufio.NewWriter(dataFile)
	iw := bufio.NewWriter(indexFile)

	wrote, err := writeBlocks(dw, iw, blockSize, records)
	if err != nil {
		return "", "", err
	}
	if err := dw.Flush(); err != nil {
		return "", "", fmt.Errorf("sstable: flush data file: %w", err)
	}
	if err := iw.Flush(); err != nil {
		return "", "", fmt.Errorf("sstable: flush index file: %w", err)
	}

	if wrote == 0 {
		_ = dataFile.Close()
		_ = indexFile.Close()
		os.Remove(dPath)
		os.Remove(iPath)
		return "", "", nil
	}

	return dPath, id, nil
}

// writeBlocks drains records into dw, one block of blockSize records at
// a time, emitting a matching IndexEntry to iw per block (including the
// final, possibly short, trailing block). Returns the total records
// written.
func writeBlocks(dw, iw *bufio.Writer, blockSize int, records iter.Seq[record.Record]) (int, error) {
	total := 0
	block := 0
	inBlock := 0
	var blockFirstKey string
	var blockOffset int64
	var offset int64
	var writeErr error

	flushBlock := func() error {
		if inBlock == 0 {
			return nil
		}
		entry := IndexEntry{Block: block, FirstKey: blockFirstKey, Offset: blockOffset, RecordCount: inBlock}
		if _, err := appendLine(iw, entry); err != nil {
			return fmt.Errorf("sstable: write index entry: %w", err)
		}
		block++
		inBlock = 0
		return nil
	}

	records(func(r record.Record) bool {
		if inBlock == 0 {
			blockFirstKey = r.Key
			blockOffset = offset
		}
		n, err := appendLine(dw, r)
		if err != nil {
			writeErr = fmt.Errorf("sstable: write record: %w", err)
			return false
		}
		offset += int64(n)
		inBlock++
		total++

		if inBlock >= blockSize {
			if err := flushBlock(); err != nil {
				writeErr = err
				return false
			}
		}
		return true
	})
	if writeErr != nil {
		return total, writeErr
	}
	if err := flushBlock(); err != nil {
		return total, err
	}
	return total, nil
}

// WriteSplit streams one long ordered sequence into multiple output
// files. splitKeys must be sorted ascending; a new output file starts
// whenever the next record's key is >= splitKeys[i] (i then advances),
// or whenever the current buffer reaches blocksPerFile * blockSize
// records. Returns produced file ids in creation order.
func (w *Writer) WriteSplit(level int, records iter.Seq[record.Record], splitKeys []string, blockSize, blocksPerFile int) ([]string, error) {
	sorted := append([]string(nil), splitKeys...)
	sort.Strings(sorted)

	maxBuffered := blocksPerFile * blockSize
	if maxBuffered <= 0 {
		maxBuffered = blockSize
	}

	var ids []string
	var buf []record.Record
	splitIdx := 0

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		batch := buf
		_, id, err := w.Write(level, blockSize, func(yield func(record.Record) bool) {
			for _, r := range batch {
				if !yield(r) {
					return
				}
			}
		})
		if err != nil {
			return err
		}
		if id != "" {
			ids = append(ids, id)
		}
		buf = nil
		return nil
	}

	var outerErr error
	records(func(r record.Record) bool {
		for splitIdx < len(sorted) && r.Key >= sorted[splitIdx] {
			if err := flush(); err != nil {
				outerErr = err
				return false
			}
			splitIdx++
		}
		buf = append(buf, r)
		if len(buf) >= maxBuffered {
			if err := flush(); err != nil {
				outerErr = err
				return false
			}
		}
		return true
	})
	if outerErr != nil {
		return nil, outerErr
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return ids, nil
}

// RemoveFile best-effort unlinks a file's data and index parts. Missing
// files are not an error; any other unlink failure is logged and skipped.
func (w *Writer) RemoveFile(level int, fileID string) {
	for _, p := range []string{dataPath(w.Root, level, fileID), indexPath(w.Root, level, fileID)} {
		if err := removeIfExists(p); err != nil {
			log.Printf("Warning: failed to remove %s: %v", p, err)
		}
	}
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// PreserveFiles scans level's directory and removes every file present
// but not listed in fileIDs, returning the largest id in fileIDs.
// fileIDs need not be sorted.
func (w *Writer) PreserveFiles(level int, fileIDs []string) (string, error) {
	keep := make(map[string]bool, len(fileIDs))
	newest := ""
	for _, id := range fileIDs {
		keep[id] = true
		if id > newest {
			newest = id
		}
	}

	dir := levelDir(w.Root, level)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return newest, nil
		}
		return newest, fmt.Errorf("sstable: read level directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !isDataFile(e.Name()) {
			continue
		}
		id := fileIDFromDataName(e.Name())
		if !keep[id] {
			w.RemoveFile(level, id)
		}
	}

	return newest, nil
}
