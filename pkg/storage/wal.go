package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/uhyunpark/hyperswap/pkg/state"
)

// walRecord is one JSON line of the log.
type walRecord struct {
	Writes []state.Write `json:"writes"`
}

type NopWAL struct{}

func NewNopWAL() *NopWAL                       { return &NopWAL{} }
func (w *NopWAL) Append(_ []state.Write) error { return nil }
func (w *NopWAL) Truncate() error              { return nil }

type FileWAL struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileWAL(path string) (*FileWAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWAL{f: f}, nil
}

// Append writes one committed write set and syncs the file.
func (w *FileWAL) Append(writes []state.Write) error {
	line, err := json.Marshal(walRecord{Writes: writes})
	if err != nil {
		return fmt.Errorf("failed to encode wal record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(line); err != nil {
		return fmt.Errorf("failed to append wal record: %w", err)
	}
	return w.f.Sync()
}

// Truncate drops every record; called once the in-flight write set has been
// applied to the backend or reported as failed.
func (w *FileWAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Truncate(0)
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// ReplayWAL re-applies every record in the log at path to backend and then
// truncates the log. Values are absolute, so replaying a record the backend
// already holds is harmless. A torn final line is ignored.
func ReplayWAL(path string, backend state.Backend) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	applied := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		var rec walRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			break
		}
		if err := backend.Apply(rec.Writes); err != nil {
			f.Close()
			return applied, fmt.Errorf("failed to replay wal record %d: %w", applied, err)
		}
		applied++
	}
	scanErr := sc.Err()
	f.Close()
	if scanErr != nil {
		return applied, scanErr
	}
	return applied, os.Truncate(path, 0)
}
