package wal

import (
	"testing"

	"github.com/sensorlsm/engine/internal/record"
)

func TestAppendAndReplay(t *testing.T) {
	root := t.TempDir()
	w := Open(root)

	if w.Exists() {
		t.Fatalf("new WAL should not exist on disk yet")
	}

	if err := w.Append("a", map[string]any{"n": 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append("b", record.Tombstone); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !w.Exists() {
		t.Fatalf("WAL should exist after Append")
	}

	var got []record.Record
	if err := Replay(root, func(r record.Record) error {
		got = append(got, r)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 replayed records, got %d", len(got))
	}
	if got[0].Key != "a" || got[1].Key != "b" {
		t.Fatalf("unexpected replay order: %+v", got)
	}
	if !record.IsTombstone(got[1].Value) {
		t.Fatalf("expected second entry to be a tombstone, got %v", got[1].Value)
	}
}

func TestReplayMissingFileIsNotError(t *testing.T) {
	root := t.TempDir()
	if err := Replay(root, func(record.Record) error { return nil }); err != nil {
		t.Fatalf("Replay on absent WAL should not error: %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	root := t.TempDir()
	w := Open(root)
	if err := w.Delete(); err != nil {
		t.Fatalf("Delete on nonexistent WAL: %v", err)
	}
	if err := w.Append("a", map[string]any{}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := w.Delete(); err != nil {
		t.Fatalf("second Delete should be idempotent: %v", err)
	}
	if w.Exists() {
		t.Fatalf("WAL should not exist after Delete")
	}
}
