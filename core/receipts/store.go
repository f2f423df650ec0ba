package receipts

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"lancechain/core/types"
)

var (
	bucketReceipts = []byte("receipts")
	bucketHeights  = []byte("heights")

	// ErrNotFound is returned when no receipt exists for the key.
	ErrNotFound = errors.New("receipt not found")
)

// Store persists receipts of accepted transactions keyed by transaction hash,
// with a secondary height index.
type Store struct {
	db *bolt.DB
}

// Open initialises the BoltDB-backed store at path.
func Open(path string, options *bolt.Options) (*Store, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketReceipts, bucketHeights} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying Bolt database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func normalizeHash(hash string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(hash), "0x"))
}

func heightKey(height uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], height)
	return key[:]
}

// Put stores receipt, replacing any receipt with the same hash.
func (s *Store) Put(receipt *types.Receipt) error {
	if receipt == nil {
		return errors.New("receipts: nil receipt")
	}
	raw, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	hash := normalizeHash(receipt.TxHash)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketReceipts).Put([]byte(hash), raw); err != nil {
			return err
		}
		return tx.Bucket(bucketHeights).Put(heightKey(receipt.Height), []byte(hash))
	})
}

// Get returns the receipt for txHash (hex, with or without 0x).
func (s *Store) Get(txHash string) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketReceipts).Get([]byte(normalizeHash(txHash)))
		if raw == nil {
			return ErrNotFound
		}
		receipt = new(types.Receipt)
		return json.Unmarshal(raw, receipt)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// GetByHeight returns the receipt of the transaction sealed at height.
func (s *Store) GetByHeight(height uint64) (*types.Receipt, error) {
	var hash string
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketHeights).Get(heightKey(height))
		if raw == nil {
			return ErrNotFound
		}
		hash = string(raw)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(hash)
}

// LatestHeight returns the highest indexed height, or false when empty.
func (s *Store) LatestHeight() (uint64, bool, error) {
	var (
		height uint64
		found  bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		key, _ := tx.Bucket(bucketHeights).Cursor().Last()
		if key == nil {
			return nil
		}
		height = binary.BigEndian.Uint64(key)
		found = true
		return nil
	})
	return height, found, err
}
