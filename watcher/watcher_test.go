package watcher

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/gorrillazz/gorrpay/correlation"
	"github.com/gorrillazz/gorrpay/gateway"
	"github.com/gorrillazz/gorrpay/store"
	"github.com/gorrillazz/gorrpay/types"
)

var (
	merchantAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	payerAddr    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func newTestGateway(t *testing.T) *gateway.Gateway {
	t.Helper()
	gw := gateway.New(store.NewMemoryStore())
	gw.SetNowFunc(func() uint64 { return 1_700_000_000 })
	return gw
}

func confirmedTx(id uint64, value int64) ConfirmedTx {
	return ConfirmedTx{
		Hash:        "0xdeadbeef",
		From:        payerAddr,
		To:          merchantAddr,
		Value:       big.NewInt(value),
		Data:        correlation.Encode(id),
		BlockNumber: 42,
		BlockTime:   1_700_000_100,
	}
}

func TestProcessSettlesCorrelatedTransfer(t *testing.T) {
	gw := newTestGateway(t)
	created, err := gw.CreateIntent(merchantAddr, big.NewInt(1_000_000), types.TokenGORR, 250, time.Hour)
	require.NoError(t, err)

	w := New(gw)
	w.Process(confirmedTx(created.ID, 1_000_000))

	view, err := gw.GetIntent(created.ID)
	require.NoError(t, err)
	require.True(t, view.Paid)
	require.Equal(t, payerAddr.Hex(), view.Payer)
	require.Equal(t, "0xdeadbeef", view.TxHash)
	require.Equal(t, uint64(42), view.BlockNumber)
	require.Equal(t, uint64(1_700_000_100), view.PaidAt)
}

func TestProcessIgnoresOrdinaryTransfers(t *testing.T) {
	gw := newTestGateway(t)
	created, err := gw.CreateIntent(merchantAddr, big.NewInt(1_000_000), types.TokenGORR, 250, time.Hour)
	require.NoError(t, err)

	w := New(gw)
	w.Process(ConfirmedTx{Hash: "0x1", From: payerAddr, Value: big.NewInt(5), Data: []byte("transfer memo")})
	w.Process(ConfirmedTx{Hash: "0x2", From: payerAddr, Value: big.NewInt(5)})

	view, err := gw.GetIntent(created.ID)
	require.NoError(t, err)
	require.False(t, view.Paid)
}

func TestProcessRejectsTransferToWrongRecipient(t *testing.T) {
	gw := newTestGateway(t)
	created, err := gw.CreateIntent(merchantAddr, big.NewInt(1_000_000), types.TokenGORR, 250, time.Hour)
	require.NoError(t, err)

	// Funds went to a third party; the marker alone must not settle.
	tx := confirmedTx(created.ID, 1_000_000)
	tx.To = common.HexToAddress("0x5555555555555555555555555555555555555555")
	w := New(gw)
	w.Process(tx)

	view, err := gw.GetIntent(created.ID)
	require.NoError(t, err)
	require.False(t, view.Paid)
}

func TestProcessToleratesReplaysAndRejections(t *testing.T) {
	gw := newTestGateway(t)
	created, err := gw.CreateIntent(merchantAddr, big.NewInt(1_000_000), types.TokenGORR, 250, time.Hour)
	require.NoError(t, err)

	w := New(gw)
	// Underpayment is rejected and leaves the intent pending.
	w.Process(confirmedTx(created.ID, 10))
	view, err := gw.GetIntent(created.ID)
	require.NoError(t, err)
	require.False(t, view.Paid)

	// A full payment settles; replaying it changes nothing.
	w.Process(confirmedTx(created.ID, 1_000_000))
	w.Process(confirmedTx(created.ID, 1_000_000))

	view, err = gw.GetIntent(created.ID)
	require.NoError(t, err)
	require.True(t, view.Paid)
	require.Equal(t, types.StatusPaid, view.Status)

	// Transfers naming unknown intents are dropped without stopping anything.
	w.Process(confirmedTx(9999, 50))
}

func TestRunDrainsFeed(t *testing.T) {
	gw := newTestGateway(t)
	first, err := gw.CreateIntent(merchantAddr, big.NewInt(100), types.TokenGORR, 250, time.Hour)
	require.NoError(t, err)
	second, err := gw.CreateIntent(merchantAddr, big.NewInt(200), types.TokenUSDCc, 250, time.Hour)
	require.NoError(t, err)

	feed := make(chan ConfirmedTx, 3)
	feed <- confirmedTx(first.ID, 100)
	feed <- ConfirmedTx{Hash: "0xnoise", From: payerAddr, Value: big.NewInt(1), Data: []byte("noise")}
	feed <- confirmedTx(second.ID, 200)
	close(feed)

	w := New(gw)
	require.NoError(t, w.Run(context.Background(), feed))

	for _, id := range []uint64{first.ID, second.ID} {
		view, err := gw.GetIntent(id)
		require.NoError(t, err)
		require.True(t, view.Paid)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	gw := newTestGateway(t)
	w := New(gw)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, make(chan ConfirmedTx)) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
