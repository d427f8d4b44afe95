package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = leveldb.ErrNotFound

// Reader exposes point lookups against committed or staged data.
type Reader interface {
	Get(key []byte) ([]byte, error)
}

// KV is the read/write surface shared by the database and its transactions.
type KV interface {
	Reader
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// Tx stages writes until Commit. Discard drops everything staged so far. Only
// one transaction can be open at a time; Begin blocks until the in-flight one
// is committed or discarded.
type Tx interface {
	KV
	Commit() error
	Discard()
}

// Database is a generic interface for a key-value store.
// This allows the ledger to use any database backend (in-memory or persistent).
type Database interface {
	KV
	Begin() (Tx, error)
	Close() // A way to gracefully shut down the database connection.
}

// LevelDB is a key-value store backed by LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// NewMemDB opens a LevelDB instance over volatile memory storage. Semantics,
// including transactions, match the on-disk database.
func NewMemDB() *LevelDB {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		// Memory storage cannot fail to open.
		panic(fmt.Sprintf("storage: open memory db: %v", err))
	}
	return &LevelDB{db: db}
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	return ldb.db.Get(key, nil)
}

// Delete removes the key if present.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

// Begin opens an atomic transaction.
func (ldb *LevelDB) Begin() (Tx, error) {
	tr, err := ldb.db.OpenTransaction()
	if err != nil {
		return nil, fmt.Errorf("storage: open transaction: %w", err)
	}
	return &levelTx{tr: tr}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

type levelTx struct {
	tr   *leveldb.Transaction
	done bool
}

var errTxClosed = errors.New("storage: transaction already closed")

func (t *levelTx) Get(key []byte) ([]byte, error) {
	if t.done {
		return nil, errTxClosed
	}
	return t.tr.Get(key, nil)
}

func (t *levelTx) Put(key []byte, value []byte) error {
	if t.done {
		return errTxClosed
	}
	return t.tr.Put(key, value, nil)
}

func (t *levelTx) Delete(key []byte) error {
	if t.done {
		return errTxClosed
	}
	return t.tr.Delete(key, nil)
}

func (t *levelTx) Commit() error {
	if t.done {
		return errTxClosed
	}
	t.done = true
	return t.tr.Commit()
}

// Discard is safe to call after Commit, which lets callers defer it.
func (t *levelTx) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.tr.Discard()
}
