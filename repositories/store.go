package repositories

import (
	"chatto/errors"
	"encoding/binary"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const (
	maxTxnRetries     = 32
	sequenceBandwidth = 100
)

// update runs fn in a read-write transaction and retries it when badger
// reports a conflict with a concurrent commit. fn must not keep state
// across attempts.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err := db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return errors.ErrTransactionConflicts
}

func getRecord(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return Unmarshal(val, v)
	})
}

func setRecord(txn *badger.Txn, key []byte, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func encodeUint64(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// IDGenerator hands out monotonic int64 ids backed by badger sequences.
type IDGenerator struct {
	mu        sync.Mutex
	db        *badger.DB
	sequences map[string]*badger.Sequence
}

func NewIDGenerator(db *badger.DB) *IDGenerator {
	return &IDGenerator{db: db, sequences: make(map[string]*badger.Sequence)}
}

func (g *IDGenerator) Next(name string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	seq, ok := g.sequences[name]
	if !ok {
		var err error
		seq, err = g.db.GetSequence([]byte(name), sequenceBandwidth)
		if err != nil {
			return 0, err
		}
		g.sequences[name] = seq
	}
	n, err := seq.Next()
	if err != nil {
		return 0, err
	}
	// Sequences start at zero, ids start at one.
	return int64(n) + 1, nil
}

// Release returns the unused leased ranges. Call before closing the DB.
func (g *IDGenerator) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var firstErr error
	for name, seq := range g.sequences {
		if err := seq.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(g.sequences, name)
	}
	return firstErr
}
