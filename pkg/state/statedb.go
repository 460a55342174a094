// Package state holds the journaled key/value ledger every contract reads and
// writes through. Writes stay in memory until Commit; any suffix of them can
// be undone with RevertToSnapshot.
package state

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Write is one entry of a committed write set.
type Write struct {
	Key    []byte `json:"k"`
	Value  []byte `json:"v,omitempty"`
	Delete bool   `json:"d,omitempty"`
}

// Backend is the durable store under a StateDB.
type Backend interface {
	// Get returns nil, nil when the key is absent.
	Get(key []byte) ([]byte, error)
	// Apply writes the whole set atomically.
	Apply(writes []Write) error
}

type entry struct {
	value   []byte
	deleted bool
}

type change struct {
	key     string
	prev    entry
	hadPrev bool
}

// StateDB is not safe for concurrent use; vm.Machine serializes access.
type StateDB struct {
	backend Backend
	dirty   map[string]entry
	journal []change

	// first backend read error, reported by Commit
	dbErr error
}

func New(backend Backend) *StateDB {
	return &StateDB{
		backend: backend,
		dirty:   make(map[string]entry),
	}
}

// Key builds the ledger key of a storage slot owned by addr.
func Key(addr common.Address, slot string) []byte {
	k := make([]byte, 0, common.AddressLength+len(slot))
	k = append(k, addr.Bytes()...)
	return append(k, slot...)
}

// Get returns the current value of a slot, nil if unset.
func (s *StateDB) Get(addr common.Address, slot string) []byte {
	key := string(Key(addr, slot))
	if e, ok := s.dirty[key]; ok {
		if e.deleted {
			return nil
		}
		return e.value
	}
	v, err := s.backend.Get([]byte(key))
	if err != nil {
		if s.dbErr == nil {
			s.dbErr = err
		}
		return nil
	}
	return v
}

// Set stores value in a slot. An empty value clears the slot.
func (s *StateDB) Set(addr common.Address, slot string, value []byte) {
	key := string(Key(addr, slot))
	prev, had := s.dirty[key]
	s.journal = append(s.journal, change{key: key, prev: prev, hadPrev: had})

	if len(value) == 0 {
		s.dirty[key] = entry{deleted: true}
		return
	}
	s.dirty[key] = entry{value: bytes.Clone(value)}
}

// Snapshot returns a revision id for RevertToSnapshot.
func (s *StateDB) Snapshot() int {
	return len(s.journal)
}

// RevertToSnapshot undoes every write made after rev was taken.
func (s *StateDB) RevertToSnapshot(rev int) {
	if rev < 0 || rev > len(s.journal) {
		return
	}
	for i := len(s.journal) - 1; i >= rev; i-- {
		c := s.journal[i]
		if c.hadPrev {
			s.dirty[c.key] = c.prev
		} else {
			delete(s.dirty, c.key)
		}
	}
	s.journal = s.journal[:rev]
}

// Pending returns the uncommitted write set ordered by key.
func (s *StateDB) Pending() []Write {
	writes := make([]Write, 0, len(s.dirty))
	for k, e := range s.dirty {
		w := Write{Key: []byte(k)}
		if e.deleted {
			w.Delete = true
		} else {
			w.Value = e.value
		}
		writes = append(writes, w)
	}
	sort.Slice(writes, func(i, j int) bool {
		return bytes.Compare(writes[i].Key, writes[j].Key) < 0
	})
	return writes
}

// Commit flushes the pending write set to the backend and clears the journal.
func (s *StateDB) Commit() error {
	if s.dbErr != nil {
		err := s.dbErr
		s.Discard()
		return err
	}
	writes := s.Pending()
	if len(writes) > 0 {
		if err := s.backend.Apply(writes); err != nil {
			s.Discard()
			return err
		}
	}
	s.dirty = make(map[string]entry)
	s.journal = s.journal[:0]
	return nil
}

// Discard drops every uncommitted write.
func (s *StateDB) Discard() {
	s.dirty = make(map[string]entry)
	s.journal = s.journal[:0]
	s.dbErr = nil
}

// Error returns the first backend read error since the last commit or discard.
func (s *StateDB) Error() error {
	return s.dbErr
}
