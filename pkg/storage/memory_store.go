package storage

import (
	"bytes"
	"sync"

	"github.com/uhyunpark/hyperswap/pkg/state"
)

// MemoryStore is an in-process Backend.
type MemoryStore struct {
	mu sync.Mutex
	kv map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{kv: make(map[string][]byte)}
}

func (s *MemoryStore) Get(key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[string(key)]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

func (s *MemoryStore) Apply(writes []state.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		if w.Delete {
			delete(s.kv, string(w.Key))
			continue
		}
		s.kv[string(w.Key)] = bytes.Clone(w.Value)
	}
	return nil
}

// Len reports the number of live keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.kv)
}

func (s *MemoryStore) Close() error { return nil }

var _ state.Backend = (*MemoryStore)(nil)
