// Package watcher consumes a feed of confirmed chain transactions, decodes
// correlation markers from their data payloads, and marks the referenced
// intents paid. It never blocks waiting for confirmation itself; the feed
// only carries transactions the chain already considers confirmed.
package watcher

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gorrillazz/gorrpay/gateway"
	"github.com/gorrillazz/gorrpay/logger"
	"github.com/gorrillazz/gorrpay/metrics"
	"github.com/gorrillazz/gorrpay/types"
)

// ConfirmedTx is a value transfer the chain has confirmed. The feed is
// eventually consistent and at-least-once: the same transaction may be
// delivered more than once.
type ConfirmedTx struct {
	Hash        string
	From        common.Address
	To          common.Address
	Value       *big.Int
	Data        []byte
	BlockNumber uint64
	BlockTime   uint64
}

// Watcher correlates confirmed transfers with payment intents.
type Watcher struct {
	gateway *gateway.Gateway
	log     logger.Logger
	metrics metrics.Recorder
}

// New creates a watcher over the given gateway.
func New(gw *gateway.Gateway) *Watcher {
	return &Watcher{
		gateway: gw,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
}

// SetLogger configures the logger. Passing nil resets to a no-op.
func (w *Watcher) SetLogger(log logger.Logger) {
	if log == nil {
		w.log = logger.NoopLogger{}
		return
	}
	w.log = log
}

// SetMetrics configures the metrics recorder. Passing nil resets to a no-op.
func (w *Watcher) SetMetrics(rec metrics.Recorder) {
	if rec == nil {
		w.metrics = metrics.NoopRecorder{}
		return
	}
	w.metrics = rec
}

// Run consumes the feed until it closes or the context is cancelled.
// Individual settlement failures are logged and skipped; they never stop the
// feed.
func (w *Watcher) Run(ctx context.Context, feed <-chan ConfirmedTx) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx, ok := <-feed:
			if !ok {
				return nil
			}
			w.Process(tx)
		}
	}
}

// Process handles a single confirmed transaction. Transfers without a
// correlation marker are skipped silently; replayed confirmations of an
// already-settled intent are successes. Transfers whose recipient is not the
// intent's merchant are rejected by the gateway.
func (w *Watcher) Process(tx ConfirmedTx) {
	view, correlated, err := w.gateway.MarkPaidFromTransaction(tx.Data, tx.From, tx.To, tx.Value, &gateway.Settlement{
		TxHash:      tx.Hash,
		BlockNumber: tx.BlockNumber,
		BlockTime:   tx.BlockTime,
	})
	if !correlated {
		return
	}
	if err != nil {
		w.log.Warn("correlated transaction rejected", map[string]any{
			"tx":    tx.Hash,
			"from":  tx.From.Hex(),
			"value": valueString(tx.Value),
			"code":  types.CodeOf(err),
			"error": err.Error(),
		})
		w.metrics.IncCounter("settlement_rejected", map[string]string{"token": ""})
		return
	}

	w.log.Info("intent settled from chain", map[string]any{
		"id":     view.ID,
		"tx":     tx.Hash,
		"block":  tx.BlockNumber,
		"status": view.Status.String(),
	})
	w.metrics.IncCounter("settlement_applied", map[string]string{"token": view.Token})
}

func valueString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
