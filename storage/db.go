package storage

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// This allows the ledger to use any database backend (in-memory or persistent).
// TrieDB exposes the same store as a go-ethereum trie database so the state
// trie and plain metadata keys share one backend.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	TrieDB() *triedb.Database
	Close() // A way to gracefully shut down the database connection.
}

// trieBackend lazily builds the trie database over a key-value store.
type trieBackend struct {
	once   sync.Once
	disk   ethdb.Database
	trieDB *triedb.Database
}

func (b *trieBackend) init(kv ethdb.KeyValueStore) *triedb.Database {
	b.once.Do(func() {
		b.disk = rawdb.NewDatabase(kv)
		b.trieDB = triedb.NewDatabase(b.disk, triedb.HashDefaults)
	})
	return b.trieDB
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	kv   *memorydb.Database
	trie trieBackend
}

func NewMemDB() *MemDB {
	return &MemDB{kv: memorydb.New()}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	return db.kv.Put(key, value)
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	ok, err := db.kv.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return db.kv.Get(key)
}

func (db *MemDB) Has(key []byte) (bool, error) { return db.kv.Has(key) }

func (db *MemDB) Delete(key []byte) error { return db.kv.Delete(key) }

func (db *MemDB) TrieDB() *triedb.Database { return db.trie.init(db.kv) }

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db   *gethleveldb.Database
	trie trieBackend
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := gethleveldb.NewCustom(path, "lancechain", func(o *opt.Options) {
		o.OpenFilesCacheCapacity = 64
		o.BlockCacheCapacity = 16 * opt.MiB
		o.WriteBuffer = 8 * opt.MiB
	})
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (ldb *LevelDB) Has(key []byte) (bool, error) { return ldb.db.Has(key) }

func (ldb *LevelDB) Delete(key []byte) error { return ldb.db.Delete(key) }

func (ldb *LevelDB) TrieDB() *triedb.Database { return ldb.trie.init(ldb.db) }

// Close flushes the trie database and closes the connection.
func (ldb *LevelDB) Close() {
	if ldb.trie.trieDB != nil {
		ldb.trie.trieDB.Close()
	}
	ldb.db.Close()
}
