// Package gateway implements the payment intent lifecycle: creation with a
// fixed fee split, correlation-driven settlement, refunds, and derived-status
// reads.
package gateway

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gorrillazz/gorrpay/correlation"
	"github.com/gorrillazz/gorrpay/fees"
	"github.com/gorrillazz/gorrpay/logger"
	"github.com/gorrillazz/gorrpay/metrics"
	"github.com/gorrillazz/gorrpay/store"
	"github.com/gorrillazz/gorrpay/types"
)

// Settlement carries the on-chain metadata recorded when an intent is marked
// paid from a confirmed transaction.
type Settlement struct {
	TxHash      string
	BlockNumber uint64
	BlockTime   uint64
}

// Gateway composes the intent store with the fee and status rules. All
// mutations go through the store's atomic Mutate, so concurrent duplicate
// calls observe one consistent final state.
type Gateway struct {
	store   store.IntentStore
	log     logger.Logger
	metrics metrics.Recorder
	nowFn   func() uint64
}

// New creates a gateway over the supplied intent store.
func New(st store.IntentStore) *Gateway {
	return &Gateway{
		store:   st,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetLogger configures the logger. Passing nil resets to a no-op.
func (g *Gateway) SetLogger(log logger.Logger) {
	if log == nil {
		g.log = logger.NoopLogger{}
		return
	}
	g.log = log
}

// SetMetrics configures the metrics recorder. Passing nil resets to a no-op.
func (g *Gateway) SetMetrics(rec metrics.Recorder) {
	if rec == nil {
		g.metrics = metrics.NoopRecorder{}
		return
	}
	g.metrics = rec
}

// SetNowFunc overrides the clock, primarily for deterministic tests.
func (g *Gateway) SetNowFunc(now func() uint64) {
	if now == nil {
		g.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	g.nowFn = now
}

func (g *Gateway) now() uint64 {
	return g.nowFn()
}

// CreateIntent registers a merchant's expected payment. The fee split is
// computed once here from the fee rate in force and never recomputed.
func (g *Gateway) CreateIntent(
	merchant common.Address,
	gross *big.Int,
	token types.Token,
	feeBps uint32,
	ttl time.Duration,
) (*types.CreateIntentResult, error) {
	started := time.Now()

	if merchant == (common.Address{}) {
		return nil, types.NewValidationError(types.ErrInvalidAddress, "merchant address is required")
	}
	if !token.IsValid() {
		return nil, types.NewValidationError(types.ErrUnknownToken, "unknown token %q", token)
	}
	if ttl <= 0 {
		return nil, types.NewValidationError(types.ErrInvalidAmount, "intent ttl must be positive")
	}
	split, err := fees.ComputeSplit(gross, feeBps)
	if err != nil {
		return nil, err
	}

	now := g.now()
	// Round the TTL up to whole seconds so the expiry always lands strictly
	// after creation.
	ttlSecs := uint64((ttl + time.Second - 1) / time.Second)
	intent, err := g.store.Create(&types.PaymentIntent{
		Merchant:    merchant,
		GrossAmount: new(big.Int).Set(gross),
		FeeBps:      feeBps,
		FeeAmount:   split.Fee,
		NetAmount:   split.Net,
		Token:       token,
		CreatedAt:   now,
		Expiry:      now + ttlSecs,
	})
	if err != nil {
		return nil, err
	}

	g.log.Info("payment intent created", map[string]any{
		"id":       intent.ID,
		"merchant": intent.Merchant.Hex(),
		"gross":    intent.GrossAmount.String(),
		"fee":      intent.FeeAmount.String(),
		"net":      intent.NetAmount.String(),
		"token":    intent.Token.String(),
		"expiry":   intent.Expiry,
	})
	g.metrics.IncCounter("intent_created", map[string]string{"token": token.String()})
	g.metrics.ObserveLatency("create_intent", time.Since(started), map[string]string{"token": token.String()})

	return &types.CreateIntentResult{ID: intent.ID, Intent: View(intent, now)}, nil
}

// MarkPaidFromTransaction correlates a confirmed transfer with an intent via
// the marker in its data payload and records the settlement.
//
// A payload without a marker is an ordinary transfer: the call reports
// correlated=false with no error. The transfer only settles the intent when
// recipient is the intent's merchant; a marker naming someone else's intent
// is rejected. Marking an already-paid intent again is an idempotent
// success, tolerating replayed confirmations. A refunded intent can never
// transition back to paid.
func (g *Gateway) MarkPaidFromTransaction(
	txPayload []byte,
	payer common.Address,
	recipient common.Address,
	confirmed *big.Int,
	settle *Settlement,
) (*types.IntentView, bool, error) {
	id, ok := correlation.Decode(txPayload)
	if !ok {
		return nil, false, nil
	}

	if confirmed == nil || confirmed.Sign() <= 0 {
		return nil, true, types.NewValidationError(types.ErrInvalidAmount, "confirmed amount must be positive")
	}

	started := time.Now()
	now := g.now()
	intent, err := g.store.Mutate(id, func(intent *types.PaymentIntent) error {
		if recipient != intent.Merchant {
			return types.NewStateConflictError(types.ErrWrongRecipient,
				"transfer to %s cannot settle payment intent %d of merchant %s",
				recipient.Hex(), id, intent.Merchant.Hex())
		}
		if intent.Refunded {
			return types.NewStateConflictError(types.ErrIntentAlreadyRefunded, "payment intent %d already refunded", id)
		}
		if intent.Paid {
			// Replayed confirmation: keep the first settlement record.
			return nil
		}
		if confirmed.Cmp(intent.GrossAmount) < 0 {
			return types.NewStateConflictError(types.ErrInsufficientAmount,
				"confirmed amount %s below invoice value %s", confirmed, intent.GrossAmount)
		}
		intent.Payer = payer
		intent.Paid = true
		if settle != nil {
			intent.TxHash = settle.TxHash
			intent.BlockNumber = settle.BlockNumber
			intent.PaidAt = settle.BlockTime
		}
		if intent.PaidAt == 0 {
			intent.PaidAt = now
		}
		return nil
	})
	if err != nil {
		return nil, true, err
	}

	g.log.Info("payment intent settled", map[string]any{
		"id":    intent.ID,
		"payer": intent.Payer.Hex(),
		"gross": intent.GrossAmount.String(),
		"token": intent.Token.String(),
	})
	g.metrics.IncCounter("intent_paid", map[string]string{"token": intent.Token.String()})
	g.metrics.ObserveLatency("mark_paid", time.Since(started), map[string]string{"token": intent.Token.String()})

	view := View(intent, now)
	return &view, true, nil
}

// PayIntent marks an intent paid without an on-chain transfer. It exists for
// admin and test tooling; the real settlement path is MarkPaidFromTransaction.
// Same state rules apply, with the gross amount assumed confirmed.
func (g *Gateway) PayIntent(id uint64, payer common.Address) (*types.IntentView, error) {
	now := g.now()
	intent, err := g.store.Mutate(id, func(intent *types.PaymentIntent) error {
		if intent.Refunded {
			return types.NewStateConflictError(types.ErrIntentAlreadyRefunded, "payment intent %d already refunded", id)
		}
		if intent.Paid {
			return nil
		}
		intent.Payer = payer
		intent.Paid = true
		intent.PaidAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.log.Info("payment intent soft-paid", map[string]any{"id": id, "payer": payer.Hex()})
	g.metrics.IncCounter("intent_paid", map[string]string{"token": intent.Token.String()})

	view := View(intent, now)
	return &view, nil
}

// RefundIntent records a gateway-side refund. Value movement is an external
// collaborator's responsibility. Refunding an unpaid intent is a state
// conflict; refunding twice is an idempotent success.
func (g *Gateway) RefundIntent(id uint64) (*types.IntentView, error) {
	now := g.now()
	intent, err := g.store.Mutate(id, func(intent *types.PaymentIntent) error {
		if !intent.Paid {
			return types.NewStateConflictError(types.ErrNotPaid, "payment intent %d is not paid", id)
		}
		if intent.Refunded {
			return nil
		}
		intent.Refunded = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.log.Info("payment intent refunded", map[string]any{"id": id})
	g.metrics.IncCounter("intent_refunded", map[string]string{"token": intent.Token.String()})

	view := View(intent, now)
	return &view, nil
}

// GetIntent returns the intent view projected against the current clock.
func (g *Gateway) GetIntent(id uint64) (*types.IntentView, error) {
	intent, err := g.store.Get(id)
	if err != nil {
		return nil, err
	}
	view := View(intent, g.now())
	return &view, nil
}

// ListMerchantIntents returns every intent registered by the merchant,
// ordered by ascending id, each projected against the current clock.
func (g *Gateway) ListMerchantIntents(merchant common.Address) ([]types.IntentView, error) {
	intents, err := g.store.ListByMerchant(merchant)
	if err != nil {
		return nil, err
	}
	now := g.now()
	views := make([]types.IntentView, 0, len(intents))
	for _, intent := range intents {
		views = append(views, View(intent, now))
	}
	return views, nil
}

// View projects a stored intent into its wire shape at the given unix time.
// Expired and Status are always recomputed here, never read from storage.
func View(intent *types.PaymentIntent, now uint64) types.IntentView {
	expired := intent.Expired(now)
	return types.IntentView{
		ID:          intent.ID,
		Merchant:    intent.Merchant.Hex(),
		Payer:       intent.Payer.Hex(),
		GrossAmount: intent.GrossAmount.String(),
		FeeBps:      intent.FeeBps,
		FeeAmount:   intent.FeeAmount.String(),
		NetAmount:   intent.NetAmount.String(),
		Token:       intent.Token.String(),
		CreatedAt:   intent.CreatedAt,
		Expiry:      intent.Expiry,
		Paid:        intent.Paid,
		Refunded:    intent.Refunded,
		Expired:     expired,
		Status:      fees.DeriveStatus(intent.Paid, intent.Refunded, expired),
		TxHash:      intent.TxHash,
		BlockNumber: intent.BlockNumber,
		PaidAt:      intent.PaidAt,
	}
}
