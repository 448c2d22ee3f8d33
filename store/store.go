// Package store defines the read/write contract of the authoritative payment
// intent store, plus an in-memory and a BoltDB-backed implementation.
package store

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/gorrillazz/gorrpay/types"
)

// IntentStore is the contract the gateway requires of an intent store.
//
// Implementations must guarantee:
//   - Create atomically allocates a fresh, never-reused id, even under
//     concurrent creation calls.
//   - Mutate applies fn as a single atomic transition; on error nothing is
//     written. Concurrent mutations of the same id serialise.
//   - Get and ListByMerchant return snapshots that are never a torn mix of
//     pre- and post-mutation fields; callers may retain and modify them.
//   - Records are never physically deleted.
type IntentStore interface {
	// Create persists intent, assigning its ID. The intent's other fields
	// must already be populated by the caller.
	Create(intent *types.PaymentIntent) (*types.PaymentIntent, error)

	// Get returns a snapshot of the intent with the given id.
	Get(id uint64) (*types.PaymentIntent, error)

	// Mutate loads the intent, applies fn to it, and persists the result,
	// all as one atomic step. A fn error aborts the write and is returned
	// unchanged.
	Mutate(id uint64, fn func(*types.PaymentIntent) error) (*types.PaymentIntent, error)

	// ListByMerchant returns snapshots of every intent registered by the
	// merchant, ordered by ascending id.
	ListByMerchant(merchant common.Address) ([]*types.PaymentIntent, error)
}

func errIntentNotFound(id uint64) error {
	return types.NewNotFoundError(types.ErrIntentNotFound, "payment intent %d not found", id)
}
