package connection

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const outboxPrefix = "outbox:"

// BadgerOutbox stores queue entries in BadgerDB keyed by sequence number, so
// iteration order is enqueue order.
type BadgerOutbox struct {
	db *badger.DB
}

// OpenBadgerOutbox opens (or creates) an outbox at path. An empty path opens
// an in-memory database.
func OpenBadgerOutbox(path string) (*BadgerOutbox, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	return &BadgerOutbox{db: db}, nil
}

func outboxKey(seq uint64) []byte {
	key := make([]byte, len(outboxPrefix)+8)
	copy(key, outboxPrefix)
	binary.BigEndian.PutUint64(key[len(outboxPrefix):], seq)
	return key
}

// Load returns stored entries in enqueue order.
func (o *BadgerOutbox) Load() ([]Entry, error) {
	var entries []Entry
	err := o.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(outboxPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				entries = append(entries, e)
				return nil
			})
			if err != nil {
				return fmt.Errorf("decode outbox entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load outbox: %w", err)
	}
	return entries, nil
}

// Put stores an entry.
func (o *BadgerOutbox) Put(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal outbox entry: %w", err)
	}
	return o.db.Update(func(txn *badger.Txn) error {
		return txn.Set(outboxKey(e.Seq), data)
	})
}

// Delete removes an entry.
func (o *BadgerOutbox) Delete(e Entry) error {
	return o.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(outboxKey(e.Seq))
	})
}

// Close closes the database.
func (o *BadgerOutbox) Close() error {
	return o.db.Close()
}
