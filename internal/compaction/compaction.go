// Package compaction implements the sorted-table compactor: selecting
// the oldest L0 file, finding the L1 files it overlaps, planning split
// boundaries, and streaming a k-way merge of L0 and the overlapping L1
// files into new, non-overlapping L1 files. This engine only ever
// compacts L0 into L1 — there is no multi-level cascade.
package compaction

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/sensorlsm/engine/internal/lsn"
	"github.com/sensorlsm/engine/internal/record"
	"github.com/sensorlsm/engine/internal/sstable"
)

// MinFilesPerLevel reports how many output files a compaction into the
// given level should aim to produce. Only level 1 is meaningful for this
// two-tier engine.
type MinFilesPerLevel func(level int) int

// Compactor drives one compaction pass.
type Compactor struct {
	Reader           *sstable.Reader
	Writer           *sstable.Writer
	BlockSize        int
	BlocksPerFile    int
	MinFilesPerLevel MinFilesPerLevel
}

// Result is the outcome of CompactLevelZero.
type Result struct {
	// ConsumedL0 is the L0 file id that was merged away, or "" if there
	// was nothing to compact.
	ConsumedL0 string
	// SurvivingL1 is every L1 file id that remains visible after this
	// compaction: untouched files plus newly written ones.
	SurvivingL1 []string
}

// CompactLevelZero selects the oldest L0 file and merges it with every
// L1 file whose key range overlaps it, producing a new set of
// non-overlapping L1 files.
func (c *Compactor) CompactLevelZero(lastL1ID string) (Result, error) {
	l0IDs, err := c.Reader.ListFileIDs(0, lsn.Max)
	if err != nil {
		return Result{}, fmt.Errorf("compaction: list L0 files: %w", err)
	}
	l1IDs, err := c.Reader.ListFileIDs(1, lastL1ID)
	if err != nil {
		return Result{}, fmt.Errorf("compaction: list L1 files: %w", err)
	}
	sort.Strings(l1IDs)

	if len(l0IDs) == 0 {
		return Result{ConsumedL0: "", SurvivingL1: l1IDs}, nil
	}

	sort.Strings(l0IDs)
	l0ID := l0IDs[0]

	l0Min, l0Max, ok, err := c.Reader.GetKeyRange(0, l0ID)
	if err != nil {
		return Result{}, fmt.Errorf("compaction: read L0 key range: %w", err)
	}
	if !ok {
		// An empty selected file contains nothing to merge; treat it as
		// consumed with no L1 impact.
		return Result{ConsumedL0: l0ID, SurvivingL1: l1IDs}, nil
	}

	var overlapping, untouched []string
	for _, id := range l1IDs {
		min, max, ok, err := c.Reader.GetKeyRange(1, id)
		if err != nil {
			return Result{}, fmt.Errorf("compaction: read L1 key range %s: %w", id, err)
		}
		if !ok {
			continue
		}
		if min <= l0Max && max >= l0Min {
			overlapping = append(overlapping, id)
		} else {
			untouched = append(untouched, id)
		}
	}

	splitKeys, err := c.planSplitKeys(l0ID, overlapping)
	if err != nil {
		return Result{}, err
	}

	merged, err := c.merge(l0ID, overlapping)
	if err != nil {
		return Result{}, err
	}

	newIDs, err := c.Writer.WriteSplit(1, merged, splitKeys, c.BlockSize, c.BlocksPerFile)
	if err != nil {
		return Result{}, fmt.Errorf("compaction: write split: %w", err)
	}

	surviving := append(append([]string{}, untouched...), newIDs...)
	return Result{ConsumedL0: l0ID, SurvivingL1: surviving}, nil
}

// planSplitKeys gathers every block's first key from the L0 file and
// every overlapping L1 file, sorts them, and picks n-1 evenly spaced
// boundaries where n = MinFilesPerLevel(1).
func (c *Compactor) planSplitKeys(l0ID string, overlapping []string) ([]string, error) {
	n := 1
	if c.MinFilesPerLevel != nil {
		n = c.MinFilesPerLevel(1)
	}
	if n <= 1 {
		return nil, nil
	}

	var boundaries []string
	l0Idx, err := c.Reader.ReadIndex(0, l0ID)
	if err != nil {
		return nil, fmt.Errorf("compaction: read L0 index: %w", err)
	}
	for _, e := range l0Idx {
		boundaries = append(boundaries, e.FirstKey)
	}
	for _, id := range overlapping {
		idx, err := c.Reader.ReadIndex(1, id)
		if err != nil {
			return nil, fmt.Errorf("compaction: read L1 index %s: %w", id, err)
		}
		for _, e := range idx {
			boundaries = append(boundaries, e.FirstKey)
		}
	}
	sort.Strings(boundaries)

	total := len(boundaries)
	seen := make(map[string]bool)
	var splits []string
	for i := 1; i < n; i++ {
		idx := (i*total + n/2) / n
		if idx >= total {
			idx = total - 1
		}
		if idx < 0 {
			continue
		}
		k := boundaries[idx]
		if !seen[k] {
			seen[k] = true
			splits = append(splits, k)
		}
	}
	sort.Strings(splits)
	return splits, nil
}

// mergeSource is one cursor participating in the k-way merge, tagged
// with a priority: 0 for the L0 file (wins ties), 1 for every L1 file.
type mergeSource struct {
	cursor   *sstable.Cursor
	priority int
}

// mergeHeap orders sources by (key, priority) so the smallest key with
// the lowest priority is always at the root.
type mergeHeap []*mergeSource

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	ki, kj := h[i].cursor.Record().Key, h[j].cursor.Record().Key
	if ki != kj {
		return ki < kj
	}
	return h[i].priority < h[j].priority
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)        { *h = append(*h, x.(*mergeSource)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// merge builds one cursor per input file (L0 at priority 0, each
// overlapping L1 file at priority 1) and returns a lazy k-way merge
// sequence: lowest key wins, ties broken by lowest priority, and a key
// equal to the previously emitted one is dropped as already superseded.
func (c *Compactor) merge(l0ID string, overlapping []string) (func(func(record.Record) bool), error) {
	var sources []*mergeSource

	l0Cursor, err := c.Reader.MakeCursor(0, l0ID, 0)
	if err != nil {
		return nil, fmt.Errorf("compaction: cursor for L0 file %s: %w", l0ID, err)
	}
	if l0Cursor.Valid() {
		sources = append(sources, &mergeSource{cursor: l0Cursor, priority: 0})
	}
	for _, id := range overlapping {
		cur, err := c.Reader.MakeCursor(1, id, 1)
		if err != nil {
			return nil, fmt.Errorf("compaction: cursor for L1 file %s: %w", id, err)
		}
		if cur.Valid() {
			sources = append(sources, &mergeSource{cursor: cur, priority: 1})
		}
	}

	return func(yield func(record.Record) bool) {
		h := mergeHeap(sources)
		heap.Init(&h)

		lastKey := ""
		haveLast := false

		for h.Len() > 0 {
			src := h[0]
			rec := src.cursor.Record()

			emit := !haveLast || rec.Key != lastKey
			if emit {
				if !yield(rec) {
					return
				}
				lastKey = rec.Key
				haveLast = true
			}

			if src.cursor.Advance() {
				heap.Fix(&h, 0)
			} else {
				heap.Pop(&h)
			}
		}
	}, nil
}
