package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/uhyunpark/hyperswap/pkg/state"
)

// PebbleStore keeps the ledger in a Pebble database.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	return openPebble(path, &pebble.Options{})
}

// NewInMemoryPebbleStore opens a store on an in-memory filesystem.
func NewInMemoryPebbleStore() (*PebbleStore, error) {
	return openPebble("", &pebble.Options{FS: vfs.NewMem()})
}

func openPebble(path string, opts *pebble.Options) (*PebbleStore, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// Get implements state.Backend.
func (s *PebbleStore) Get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(stateKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	defer closer.Close()
	return bytes.Clone(val), nil
}

// Apply implements state.Backend. The whole set lands in one synced batch.
func (s *PebbleStore) Apply(writes []state.Write) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, w := range writes {
		var err error
		if w.Delete {
			err = batch.Delete(stateKey(w.Key), nil)
		} else {
			err = batch.Set(stateKey(w.Key), w.Value, nil)
		}
		if err != nil {
			return fmt.Errorf("failed to stage write: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

var _ state.Backend = (*PebbleStore)(nil)
