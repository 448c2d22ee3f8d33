package store

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gorrillazz/gorrpay/types"
)

// MemoryStore keeps intents in process memory behind a RWMutex. Snapshots
// returned to callers are clones, so stored state can only change through
// Create and Mutate.
type MemoryStore struct {
	mu      sync.RWMutex
	counter uint64
	intents map[uint64]*types.PaymentIntent
}

// NewMemoryStore returns an empty in-memory intent store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{intents: make(map[uint64]*types.PaymentIntent)}
}

func (s *MemoryStore) Create(intent *types.PaymentIntent) (*types.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	stored := intent.Clone()
	stored.ID = s.counter
	s.intents[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) Get(id uint64) (*types.PaymentIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intent, ok := s.intents[id]
	if !ok {
		return nil, errIntentNotFound(id)
	}
	return intent.Clone(), nil
}

func (s *MemoryStore) Mutate(id uint64, fn func(*types.PaymentIntent) error) (*types.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.intents[id]
	if !ok {
		return nil, errIntentNotFound(id)
	}

	// fn runs against a clone so a failed mutation leaves the stored
	// record untouched.
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.intents[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) ListByMerchant(merchant common.Address) ([]*types.PaymentIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.PaymentIntent, 0)
	for _, intent := range s.intents {
		if intent.Merchant == merchant {
			out = append(out, intent.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
