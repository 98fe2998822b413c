package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/Tyrowin/livechat/internal/chat"
)

var logKey = []byte("chat:log")

// BadgerStore keeps the whole log as one value in BadgerDB. Every Persist
// is a single transaction, which gives the all-or-nothing replacement the
// file store gets from rename.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a badger database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("%w: open badger %s: %w", chat.ErrStorageUnavailable, dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already opened database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Load reads the log value.
func (s *BadgerStore) Load(_ context.Context) ([]chat.Entry, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(logKey)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return []chat.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: badger read: %w", chat.ErrStorageUnavailable, err)
	}
	if len(data) == 0 {
		return []chat.Entry{}, nil
	}

	var entries []chat.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: badger decode: %w", chat.ErrStorageUnavailable, err)
	}
	if entries == nil {
		entries = []chat.Entry{}
	}
	return entries, nil
}

// Persist overwrites the log value with snapshot.
func (s *BadgerStore) Persist(ctx context.Context, snapshot []chat.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshot == nil {
		snapshot = []chat.Entry{}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", chat.ErrStorageUnavailable, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(logKey, data)
	})
	if err != nil {
		return fmt.Errorf("%w: badger write: %w", chat.ErrStorageUnavailable, err)
	}
	return nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
