package kv

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"
)

// BadgerOptions configures the BadgerDB-backed store.
type BadgerOptions struct {
	// DataDir is the directory for storing data files. Required unless
	// InMemory is true.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode. Useful for tests.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but more durable;
	// the engine's own end-of-tick Flush call is normally sufficient, so
	// this defaults to false.
	SyncWrites bool

	// Logger routes BadgerDB's internal logging. If nil, logging is
	// silenced (BadgerDB is chatty at Info level by default).
	Logger badger.Logger
}

// BadgerStore is the production, durable Store implementation.
//
// Project stores and the process-wide registry store are both opened as
// a BadgerStore, each against its own data directory — BadgerDB does not
// support multiple independent logical databases sharing one directory,
// so one project per directory (or "<project_id>.badger" subdirectory)
// is the unit of isolation.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (creating if absent) a BadgerDB-backed store.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithSyncWrites(opts.SyncWrites)
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Put(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append([]byte(nil), key...), append([]byte(nil), value...))
	})
}

func (s *BadgerStore) Get(key []byte) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *BadgerStore) Delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (s *BadgerStore) PrefixScan(prefix []byte) (Iterator, error) {
	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	it.Seek(prefix)
	return &badgerIterator{txn: txn, it: it, prefix: prefix, started: false}, nil
}

func (s *BadgerStore) Flush() error {
	return s.db.Sync()
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerIterator adapts badger.Iterator to the kv.Iterator contract.
type badgerIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	started bool
	cur     Entry
	err     error
}

func (b *badgerIterator) Next() bool {
	if b.err != nil {
		return false
	}
	if !b.started {
		b.started = true
	} else {
		b.it.Next()
	}
	if !b.it.ValidForPrefix(b.prefix) {
		return false
	}
	item := b.it.Item()
	key := append([]byte(nil), item.Key()...)
	var value []byte
	if err := item.Value(func(val []byte) error {
		value = append([]byte(nil), val...)
		return nil
	}); err != nil {
		b.err = err
		return false
	}
	b.cur = Entry{Key: key, Value: value}
	return true
}

func (b *badgerIterator) Entry() Entry { return b.cur }
func (b *badgerIterator) Err() error   { return b.err }

func (b *badgerIterator) Close() error {
	b.it.Close()
	b.txn.Discard()
	return nil
}

var _ Store = (*BadgerStore)(nil)

// KeyHasPrefix reports whether key starts with prefix. Exposed for callers
// composing prefix filters on top of PrefixScan results.
func KeyHasPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}
