package storage

import (
	"bytes"
	"testing"

	"github.com/uhyunpark/hyperswap/pkg/state"
)

func TestPebbleStoreApplyAndGet(t *testing.T) {
	s, err := NewInMemoryPebbleStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	err = s.Apply([]state.Write{
		{Key: []byte("a"), Value: []byte{1}},
		{Key: []byte("b"), Value: []byte{2}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := s.Get([]byte("a"))
	if err != nil || !bytes.Equal(got, []byte{1}) {
		t.Fatalf("get a = %x, %v", got, err)
	}

	if err := s.Apply([]state.Write{{Key: []byte("a"), Delete: true}}); err != nil {
		t.Fatalf("apply delete: %v", err)
	}
	got, err = s.Get([]byte("a"))
	if err != nil || got != nil {
		t.Fatalf("deleted key = %x, %v", got, err)
	}

	got, _ = s.Get([]byte("missing"))
	if got != nil {
		t.Errorf("missing key returned %x", got)
	}
}

func TestPebbleStoreReopenKeepsState(t *testing.T) {
	dir := t.TempDir()
	s, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Apply([]state.Write{{Key: []byte("k"), Value: []byte("v")}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if v, err := s.Get([]byte("k")); err != nil || string(v) != "v" {
		t.Errorf("get after reopen = %q, %v", v, err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Apply([]state.Write{{Key: []byte("k"), Value: []byte("v")}})
	if v, _ := s.Get([]byte("k")); string(v) != "v" {
		t.Fatalf("get = %q", v)
	}
	_ = s.Apply([]state.Write{{Key: []byte("k"), Delete: true}})
	if s.Len() != 0 {
		t.Errorf("len = %d after delete", s.Len())
	}
}
