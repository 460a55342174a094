package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/uhyunpark/hyperswap/pkg/state"
)

func TestReplayWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.wal")
	wal, err := NewFileWAL(path)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	if err := wal.Append([]state.Write{{Key: []byte("a"), Value: []byte("1")}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := wal.Append([]state.Write{{Key: []byte("a"), Value: []byte("2")}, {Key: []byte("b"), Value: []byte("3")}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	wal.Close()

	// torn tail from a crash mid-write
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString(`{"writes":[{"k":`)
	f.Close()

	store := NewMemoryStore()
	n, err := ReplayWAL(path, store)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n != 2 {
		t.Errorf("replayed %d records, want 2", n)
	}
	if v, _ := store.Get([]byte("a")); string(v) != "2" {
		t.Errorf("a = %q, want 2", v)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("wal not truncated, size %d", info.Size())
	}
}

func TestReplayWALMissingFile(t *testing.T) {
	n, err := ReplayWAL(filepath.Join(t.TempDir(), "none.wal"), NewMemoryStore())
	if err != nil || n != 0 {
		t.Errorf("replay missing = %d, %v", n, err)
	}
}
