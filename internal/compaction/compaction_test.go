package compaction

import (
	"fmt"
	"testing"

	"github.com/sensorlsm/engine/internal/lsn"
	"github.com/sensorlsm/engine/internal/record"
	"github.com/sensorlsm/engine/internal/sstable"
)

func newIDGen(issuer *lsn.Issuer) func() string {
	return func() string { return issuer.Next() }
}

func writeL0(t *testing.T, root string, issuer *lsn.Issuer, recs []record.Record) string {
	t.Helper()
	w := &sstable.Writer{Root: root, IDGen: newIDGen(issuer)}
	_, id, err := w.Write(0, 4, func(yield func(record.Record) bool) {
		for _, r := range recs {
			if !yield(r) {
				return
			}
		}
	})
	if err != nil {
		t.Fatalf("writeL0: %v", err)
	}
	return id
}

func TestCompactLevelZeroNoFiles(t *testing.T) {
	root := t.TempDir()
	reader := &sstable.Reader{Root: root}
	writer := &sstable.Writer{Root: root, IDGen: newIDGen(lsn.NewIssuer())}
	c := &Compactor{Reader: reader, Writer: writer, BlockSize: 4, BlocksPerFile: 10}

	res, err := c.CompactLevelZero("")
	if err != nil {
		t.Fatalf("CompactLevelZero: %v", err)
	}
	if res.ConsumedL0 != "" {
		t.Fatalf("expected no consumed file, got %q", res.ConsumedL0)
	}
}

func TestCompactPreservesKeySetAndNonOverlap(t *testing.T) {
	root := t.TempDir()
	issuer := lsn.NewIssuer()
	reader := &sstable.Reader{Root: root}
	writer := &sstable.Writer{Root: root, IDGen: newIDGen(issuer)}

	var recs []record.Record
	for i := 0; i < 40; i++ {
		recs = append(recs, record.Record{Key: fmt.Sprintf("k%03d", i), Value: map[string]any{"n": i}})
	}
	l0ID := writeL0(t, root, issuer, recs)

	c := &Compactor{
		Reader:        reader,
		Writer:        writer,
		BlockSize:     4,
		BlocksPerFile: 100,
		MinFilesPerLevel: func(level int) int {
			if level == 1 {
				return 2
			}
			return 1
		},
	}

	res, err := c.CompactLevelZero("")
	if err != nil {
		t.Fatalf("CompactLevelZero: %v", err)
	}
	if res.ConsumedL0 != l0ID {
		t.Fatalf("expected consumed %q, got %q", l0ID, res.ConsumedL0)
	}
	if len(res.SurvivingL1) != 2 {
		t.Fatalf("expected 2 output L1 files, got %d (%v)", len(res.SurvivingL1), res.SurvivingL1)
	}

	// Every inserted key must be findable in exactly one L1 file, and
	// L1 files must not overlap.
	type rng struct{ first, last string }
	var ranges []rng
	for _, id := range res.SurvivingL1 {
		first, last, ok, err := reader.GetKeyRange(1, id)
		if err != nil || !ok {
			t.Fatalf("GetKeyRange(%s): ok=%v err=%v", id, ok, err)
		}
		ranges = append(ranges, rng{first, last})
	}
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			a, b := ranges[i], ranges[j]
			if !(a.last < b.first || b.last < a.first) {
				t.Fatalf("overlapping L1 ranges: %v and %v", a, b)
			}
		}
	}

	for _, want := range recs {
		found := false
		for _, id := range res.SurvivingL1 {
			if _, ok, err := reader.Search(want.Key, 1, id); err == nil && ok {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("key %q not found in any L1 file after compaction", want.Key)
		}
	}
}

func TestCompactDropsSupersededDuplicates(t *testing.T) {
	root := t.TempDir()
	issuer := lsn.NewIssuer()
	reader := &sstable.Reader{Root: root}
	writer := &sstable.Writer{Root: root, IDGen: newIDGen(issuer)}

	// Seed L1 with an old value for "dup".
	_, l1ID, err := writer.Write(1, 4, func(yield func(record.Record) bool) {
		yield(record.Record{Key: "dup", Value: map[string]any{"v": "old"}})
	})
	if err != nil {
		t.Fatalf("seed L1: %v", err)
	}

	// L0 carries a newer value for the same key.
	l0ID := writeL0(t, root, issuer, []record.Record{
		{Key: "dup", Value: map[string]any{"v": "new"}},
	})

	c := &Compactor{Reader: reader, Writer: writer, BlockSize: 4, BlocksPerFile: 10}
	res, err := c.CompactLevelZero(l1ID)
	if err != nil {
		t.Fatalf("CompactLevelZero: %v", err)
	}
	if res.ConsumedL0 != l0ID {
		t.Fatalf("expected consumed %q, got %q", l0ID, res.ConsumedL0)
	}

	found := false
	for _, id := range res.SurvivingL1 {
		val, ok, err := reader.Search("dup", 1, id)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if ok {
			found = true
			m := val.(map[string]any)
			if m["v"] != "new" {
				t.Fatalf("expected newer value to win, got %v", m)
			}
		}
	}
	if !found {
		t.Fatalf("key dup not found after compaction")
	}
}
