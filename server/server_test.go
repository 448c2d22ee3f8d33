package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/gorrillazz/gorrpay/gateway"
	"github.com/gorrillazz/gorrpay/store"
	"github.com/gorrillazz/gorrpay/types"
)

const (
	merchantHex = "0x1111111111111111111111111111111111111111"
	payerHex    = "0x2222222222222222222222222222222222222222"
)

type stubBalances struct{}

func (stubBalances) Balances(addr common.Address) (*types.Balances, error) {
	return &types.Balances{GORR: "0xde0b6b3a7640000", USDCc: "0x0"}, nil
}

type stubReceipts struct {
	indexed map[string]*types.Receipt
}

func (s *stubReceipts) Receipt(txHash string) (*types.Receipt, error) {
	if receipt, ok := s.indexed[txHash]; ok {
		return receipt, nil
	}
	return nil, types.NewNotFoundError(types.ErrTxNotIndexed, "tx %s not indexed", txHash)
}

func newTestServer(t *testing.T) (*Server, *gateway.Gateway) {
	t.Helper()
	gw := gateway.New(store.NewMemoryStore())
	gw.SetNowFunc(func() uint64 { return 1_700_000_000 })
	srv := New(gw, types.GatewayConfig{FeeBps: 250, IntentTTL: 15 * time.Minute})
	return srv, gw
}

func rpcCall(t *testing.T, handler http.Handler, method string, params ...interface{}) (json.RawMessage, *rpcError) {
	t.Helper()
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Result, resp.Error
}

func errorData(t *testing.T, rpcErr *rpcError) rpcErrorData {
	t.Helper()
	require.NotNil(t, rpcErr.Data)
	encoded, err := json.Marshal(rpcErr.Data)
	require.NoError(t, err)
	var data rpcErrorData
	require.NoError(t, json.Unmarshal(encoded, &data))
	return data
}

func TestCreateAndGetPaymentIntent(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	result, rpcErr := rpcCall(t, handler, "gorr_createPaymentIntent", merchantHex, "1000000", "GORR")
	require.Nil(t, rpcErr)

	var created types.CreateIntentResult
	require.NoError(t, json.Unmarshal(result, &created))
	require.Equal(t, uint64(1), created.ID)
	require.Equal(t, "25000", created.Intent.FeeAmount)
	require.Equal(t, "975000", created.Intent.NetAmount)
	require.Equal(t, types.StatusPending, created.Intent.Status)

	result, rpcErr = rpcCall(t, handler, "gorr_getPaymentIntent", created.ID)
	require.Nil(t, rpcErr)
	var view types.IntentView
	require.NoError(t, json.Unmarshal(result, &view))
	require.Equal(t, created.ID, view.ID)
	require.Equal(t, merchantHex, view.Merchant)
}

func TestPayAndRefundInvoice(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	result, rpcErr := rpcCall(t, handler, "gorr_createPaymentIntent", merchantHex, "500", "USDCc")
	require.Nil(t, rpcErr)
	var created types.CreateIntentResult
	require.NoError(t, json.Unmarshal(result, &created))

	result, rpcErr = rpcCall(t, handler, "gorr_payInvoice", created.ID, payerHex)
	require.Nil(t, rpcErr)
	var view types.IntentView
	require.NoError(t, json.Unmarshal(result, &view))
	require.True(t, view.Paid)
	require.Equal(t, payerHex, view.Payer)

	result, rpcErr = rpcCall(t, handler, "gorr_refundInvoice", created.ID)
	require.Nil(t, rpcErr)
	require.NoError(t, json.Unmarshal(result, &view))
	require.True(t, view.Refunded)
	require.Equal(t, types.StatusRefunded, view.Status)
}

func TestListMerchantPayments(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	for _, amount := range []string{"100", "200", "300"} {
		_, rpcErr := rpcCall(t, handler, "gorr_createPaymentIntent", merchantHex, amount, "GORR")
		require.Nil(t, rpcErr)
	}

	result, rpcErr := rpcCall(t, handler, "gorr_listMerchantPayments", merchantHex)
	require.Nil(t, rpcErr)
	var views []types.IntentView
	require.NoError(t, json.Unmarshal(result, &views))
	require.Len(t, views, 3)
	require.Equal(t, uint64(1), views[0].ID)
	require.Equal(t, uint64(3), views[2].ID)
}

func TestErrorCodesAndClassification(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	// Unknown id maps to the not-found RPC code with typed data attached.
	_, rpcErr := rpcCall(t, handler, "gorr_getPaymentIntent", 999)
	require.NotNil(t, rpcErr)
	require.Equal(t, codeNotFound, rpcErr.Code)
	data := errorData(t, rpcErr)
	require.Equal(t, types.KindNotFound, data.Kind)
	require.Equal(t, types.ErrIntentNotFound, data.Code)

	// Refunding an unpaid intent is a state conflict.
	result, rpcErr := rpcCall(t, handler, "gorr_createPaymentIntent", merchantHex, "100", "GORR")
	require.Nil(t, rpcErr)
	var created types.CreateIntentResult
	require.NoError(t, json.Unmarshal(result, &created))

	_, rpcErr = rpcCall(t, handler, "gorr_refundInvoice", created.ID)
	require.NotNil(t, rpcErr)
	require.Equal(t, codeStateConflict, rpcErr.Code)
	data = errorData(t, rpcErr)
	require.Equal(t, types.KindStateConflict, data.Kind)
	require.Equal(t, types.ErrNotPaid, data.Code)

	// Malformed params map to invalid-params with validation data.
	_, rpcErr = rpcCall(t, handler, "gorr_createPaymentIntent", "not-an-address", "100", "GORR")
	require.NotNil(t, rpcErr)
	require.Equal(t, codeInvalidParams, rpcErr.Code)
	data = errorData(t, rpcErr)
	require.Equal(t, types.KindValidation, data.Kind)

	_, rpcErr = rpcCall(t, handler, "gorr_createPaymentIntent", merchantHex, "1.5", "GORR")
	require.NotNil(t, rpcErr)
	require.Equal(t, codeInvalidParams, rpcErr.Code)

	_, rpcErr = rpcCall(t, handler, "gorr_createPaymentIntent", merchantHex, "100", "DOGE")
	require.NotNil(t, rpcErr)
	require.Equal(t, codeInvalidParams, rpcErr.Code)

	// Missing or mistyped params carry the neutral param code, not a
	// business code borrowed from another failure.
	_, rpcErr = rpcCall(t, handler, "gorr_createPaymentIntent", merchantHex)
	require.NotNil(t, rpcErr)
	require.Equal(t, codeInvalidParams, rpcErr.Code)
	data = errorData(t, rpcErr)
	require.Equal(t, types.ErrInvalidParams, data.Code)

	_, rpcErr = rpcCall(t, handler, "gorr_getPaymentIntent", "seven")
	require.NotNil(t, rpcErr)
	require.Equal(t, codeInvalidParams, rpcErr.Code)
	data = errorData(t, rpcErr)
	require.Equal(t, types.ErrInvalidParams, data.Code)
}

func TestMethodNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	_, rpcErr := rpcCall(t, srv.Handler(), "gorr_unknownMethod")
	require.NotNil(t, rpcErr)
	require.Equal(t, codeMethodNotFound, rpcErr.Code)
}

func TestMalformedRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	// Non-POST requests are rejected outright.
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	var resp struct {
		Error *rpcError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)

	// Unparseable JSON yields the parse error code.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json"))))
	resp.Error = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeParseError, resp.Error.Code)

	// Wrong protocol version is an invalid request.
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/",
		bytes.NewReader([]byte(`{"jsonrpc":"1.0","method":"gorr_getBalances","params":[],"id":1}`))))
	resp.Error = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)
}

func TestGetBalances(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	// Without a configured source the call fails as a server error.
	_, rpcErr := rpcCall(t, handler, "gorr_getBalances", merchantHex)
	require.NotNil(t, rpcErr)
	require.Equal(t, codeServerError, rpcErr.Code)

	srv.SetBalanceSource(stubBalances{})
	result, rpcErr := rpcCall(t, handler, "gorr_getBalances", merchantHex)
	require.Nil(t, rpcErr)
	var balances types.Balances
	require.NoError(t, json.Unmarshal(result, &balances))
	require.Equal(t, "0xde0b6b3a7640000", balances.GORR)
	require.Equal(t, "0x0", balances.USDCc)
}

func TestGetTransactionReceipt(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.SetReceiptSource(&stubReceipts{indexed: map[string]*types.Receipt{
		"0xaaa": {TxHash: "0xaaa", BlockNumber: 7, Status: 1},
	}})
	handler := srv.Handler()

	result, rpcErr := rpcCall(t, handler, "eth_getTransactionReceipt", "0xaaa")
	require.Nil(t, rpcErr)
	var receipt types.Receipt
	require.NoError(t, json.Unmarshal(result, &receipt))
	require.Equal(t, uint64(7), receipt.BlockNumber)

	// Unindexed transactions carry the poll-recoverable code in error data.
	_, rpcErr = rpcCall(t, handler, "eth_getTransactionReceipt", "0xbbb")
	require.NotNil(t, rpcErr)
	require.Equal(t, codeNotFound, rpcErr.Code)
	data := errorData(t, rpcErr)
	require.Equal(t, types.ErrTxNotIndexed, data.Code)
}
