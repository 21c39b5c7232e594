// Package history persists conversation turns in a local badger store
// so replies keep their context across turns and daemon restarts.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"go.aimuz.me/voxd/internal/types"
)

const keyPrefix = "turn/"

// Store is a durable, time-ordered log of conversation turns.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store at path. An empty path opens an
// in-memory store.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one turn. Keys embed the wall-clock nanosecond so
// lexicographic key order is chronological order.
func (s *Store) Append(turn types.Turn) error {
	if turn.At.IsZero() {
		turn.At = time.Now()
	}
	value, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}
	key := fmt.Sprintf("%s%020d/%s", keyPrefix, turn.At.UnixNano(), uuid.NewString())

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Recent returns up to n most recent turns in chronological order.
func (s *Store) Recent(n int) ([]types.Turn, error) {
	var out []types.Turn
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past the whole prefix range.
		seek := append([]byte(keyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix([]byte(keyPrefix)) && len(out) < n; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var turn types.Turn
				if err := json.Unmarshal(val, &turn); err != nil {
					return fmt.Errorf("unmarshal turn: %w", err)
				}
				out = append(out, turn)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Collected newest-first; flip to chronological.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Len returns the number of stored turns.
func (s *Store) Len() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Trim enforces the retention bound: once the store exceeds keep turns,
// the oldest are deleted until only to remain.
func (s *Store) Trim(keep, to int) error {
	n, err := s.Len()
	if err != nil {
		return err
	}
	if n <= keep {
		return nil
	}
	excess := n - to

	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		deleted := 0
		var victims [][]byte
		for it.Rewind(); it.ValidForPrefix([]byte(keyPrefix)) && deleted < excess; it.Next() {
			victims = append(victims, it.Item().KeyCopy(nil))
			deleted++
		}
		for _, key := range victims {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete turn: %w", err)
			}
		}
		return nil
	})
}
