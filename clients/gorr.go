package clients

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gorrillazz/gorrpay/types"
)

// Protocol method names served by a gorrillazz node.
const (
	methodCreatePaymentIntent  = "gorr_createPaymentIntent"
	methodGetPaymentIntent     = "gorr_getPaymentIntent"
	methodListMerchantPayments = "gorr_listMerchantPayments"
	methodPayInvoice           = "gorr_payInvoice"
	methodRefundInvoice        = "gorr_refundInvoice"
	methodGetBalances          = "gorr_getBalances"
	methodGetReceipt           = "eth_getTransactionReceipt"
)

// CreatePaymentIntent registers an expected payment for a merchant. The
// amount travels as a decimal string in the smallest asset unit.
func (c *Client) CreatePaymentIntent(
	ctx context.Context,
	merchant common.Address,
	amount *big.Int,
	token types.Token,
) (*types.CreateIntentResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, types.NewValidationError(types.ErrInvalidAmount, "amount must be positive")
	}
	result := new(types.CreateIntentResult)
	params := []interface{}{merchant.Hex(), amount.String(), token.String()}
	if err := c.call(ctx, methodCreatePaymentIntent, params, result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetPaymentIntent fetches the current view of an intent. Status and expiry
// are derived server-side at call time.
func (c *Client) GetPaymentIntent(ctx context.Context, id uint64) (*types.IntentView, error) {
	view := new(types.IntentView)
	if err := c.call(ctx, methodGetPaymentIntent, []interface{}{id}, view); err != nil {
		return nil, err
	}
	return view, nil
}

// ListMerchantPayments returns every intent registered by the merchant,
// ordered by ascending id.
func (c *Client) ListMerchantPayments(ctx context.Context, merchant common.Address) ([]types.IntentView, error) {
	views := make([]types.IntentView, 0)
	if err := c.call(ctx, methodListMerchantPayments, []interface{}{merchant.Hex()}, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// PayInvoice marks an intent paid without an on-chain transfer (admin/test
// tooling path).
func (c *Client) PayInvoice(ctx context.Context, id uint64, payer common.Address) (*types.IntentView, error) {
	view := new(types.IntentView)
	if err := c.call(ctx, methodPayInvoice, []interface{}{id, payer.Hex()}, view); err != nil {
		return nil, err
	}
	return view, nil
}

// RefundInvoice records a gateway-side refund for a paid intent.
func (c *Client) RefundInvoice(ctx context.Context, id uint64) (*types.IntentView, error) {
	view := new(types.IntentView)
	if err := c.call(ctx, methodRefundInvoice, []interface{}{id}, view); err != nil {
		return nil, err
	}
	return view, nil
}

// GetBalances returns the native and stable balances of an address as
// hex-wei strings.
func (c *Client) GetBalances(ctx context.Context, address common.Address) (*types.Balances, error) {
	balances := new(types.Balances)
	if err := c.call(ctx, methodGetBalances, []interface{}{address.Hex()}, balances); err != nil {
		return nil, err
	}
	return balances, nil
}

// GetTransactionReceipt looks up the receipt of a confirmed transaction. A
// node that has not indexed the transaction yet yields a not-found error with
// code TX_NOT_INDEXED; callers are expected to poll, not to treat it as a
// hard failure.
func (c *Client) GetTransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	receipt := new(types.Receipt)
	if err := c.call(ctx, methodGetReceipt, []interface{}{txHash}, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// WaitForReceipt polls GetTransactionReceipt until the node has indexed the
// transaction, the context is cancelled, or a non-recoverable error occurs.
func (c *Client) WaitForReceipt(ctx context.Context, txHash string, interval time.Duration) (*types.Receipt, error) {
	if interval <= 0 {
		interval = time.Second
	}
	for {
		receipt, err := c.GetTransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if types.CodeOf(err) != types.ErrTxNotIndexed {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, types.NewTransportError(ctx.Err(), "waiting for receipt %s", txHash)
		case <-time.After(interval):
		}
	}
}
