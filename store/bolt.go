package store

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"

	"github.com/gorrillazz/gorrpay/types"
)

var bucketIntents = []byte("intents")

// BoltStore persists intents in a BoltDB file. Id allocation uses the bucket
// sequence inside the same transaction as the write, so ids stay fresh and
// never reused even across restarts.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (and initialises) a BoltDB-backed intent store at path.
func NewBoltStore(path string, options *bolt.Options) (*BoltStore, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, storeError(err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIntents)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, storeError(err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) Create(intent *types.PaymentIntent) (*types.PaymentIntent, error) {
	stored := intent.Clone()
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIntents)
		id, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		stored.ID = id
		encoded, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return bucket.Put(intentKey(id), encoded)
	})
	if err != nil {
		return nil, storeError(err)
	}
	return stored, nil
}

func (s *BoltStore) Get(id uint64) (*types.PaymentIntent, error) {
	var intent *types.PaymentIntent
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketIntents).Get(intentKey(id))
		if raw == nil {
			return errIntentNotFound(id)
		}
		decoded := new(types.PaymentIntent)
		if err := json.Unmarshal(raw, decoded); err != nil {
			return err
		}
		intent = decoded
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return intent, nil
}

func (s *BoltStore) Mutate(id uint64, fn func(*types.PaymentIntent) error) (*types.PaymentIntent, error) {
	var intent *types.PaymentIntent
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIntents)
		raw := bucket.Get(intentKey(id))
		if raw == nil {
			return errIntentNotFound(id)
		}
		decoded := new(types.PaymentIntent)
		if err := json.Unmarshal(raw, decoded); err != nil {
			return err
		}
		if err := fn(decoded); err != nil {
			return err
		}
		encoded, err := json.Marshal(decoded)
		if err != nil {
			return err
		}
		if err := bucket.Put(intentKey(id), encoded); err != nil {
			return err
		}
		intent = decoded
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return intent, nil
}

func (s *BoltStore) ListByMerchant(merchant common.Address) ([]*types.PaymentIntent, error) {
	out := make([]*types.PaymentIntent, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		// Keys are big-endian ids, so a forward cursor walk yields
		// ascending id order.
		cursor := tx.Bucket(bucketIntents).Cursor()
		for key, raw := cursor.First(); key != nil; key, raw = cursor.Next() {
			decoded := new(types.PaymentIntent)
			if err := json.Unmarshal(raw, decoded); err != nil {
				return err
			}
			if decoded.Merchant == merchant {
				out = append(out, decoded)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return out, nil
}

func intentKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

// storeError passes typed errors through and wraps raw bbolt/codec failures.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := types.AsError(err); ok {
		return err
	}
	return &types.Error{Kind: types.KindProtocol, Code: types.ErrStoreError, Message: "intent store: " + err.Error()}
}
