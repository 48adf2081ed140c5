package session

import (
	"chatto/domain"
	"chatto/errors"
	"chatto/repositories"
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore writes each session with a badger TTL so expired entries vanish
// on their own.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, now: time.Now}
}

func key(id string) []byte {
	return []byte(repositories.PrefixSession + id)
}

func (b *BadgerStore) Create(_ context.Context, s domain.Session) error {
	remaining, err := ttl(s, b.now())
	if err != nil {
		return err
	}
	data, err := repositories.Marshal(s)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key(s.ID.String()), data).WithTTL(remaining))
	})
}

func (b *BadgerStore) Get(_ context.Context, id string) (domain.Session, error) {
	var s domain.Session
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return repositories.Unmarshal(val, &s)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Session{}, errors.ErrSessionNotFound
	}
	return s, err
}

func (b *BadgerStore) Delete(_ context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
}
