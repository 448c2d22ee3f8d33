// Package server exposes the payment gateway protocol over a single-endpoint
// JSON-RPC 2.0 HTTP surface.
package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gorrillazz/gorrpay/gateway"
	"github.com/gorrillazz/gorrpay/logger"
	"github.com/gorrillazz/gorrpay/types"
	"github.com/gorrillazz/gorrpay/utils"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32004
	codeStateConflict  = -32009
)

// BalanceSource resolves per-token balances for gorr_getBalances. Balance
// accounting lives outside the gateway protocol.
type BalanceSource interface {
	Balances(addr common.Address) (*types.Balances, error)
}

// ReceiptSource resolves confirmed-transaction receipts. Implementations
// must return a not-found error with code TX_NOT_INDEXED for transactions
// the node has not indexed yet.
type ReceiptSource interface {
	Receipt(txHash string) (*types.Receipt, error)
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type rpcErrorData struct {
	Kind types.ErrorKind `json:"kind"`
	Code string          `json:"code"`
}

// Server dispatches the gorr_* protocol methods onto a gateway.
type Server struct {
	gateway  *gateway.Gateway
	cfg      types.GatewayConfig
	balances BalanceSource
	receipts ReceiptSource
	log      logger.Logger
}

// New creates a server applying cfg's fee and TTL policy to created intents.
func New(gw *gateway.Gateway, cfg types.GatewayConfig) *Server {
	return &Server{
		gateway: gw,
		cfg:     cfg,
		log:     logger.NoopLogger{},
	}
}

// SetLogger configures the request logger. Passing nil resets to a no-op.
func (s *Server) SetLogger(log logger.Logger) {
	if log == nil {
		s.log = logger.NoopLogger{}
		return
	}
	s.log = log
}

// SetBalanceSource wires the external balance collaborator.
func (s *Server) SetBalanceSource(src BalanceSource) { s.balances = src }

// SetReceiptSource wires the external receipt collaborator.
func (s *Server) SetReceiptSource(src ReceiptSource) { s.receipts = src }

// Handler returns the single-endpoint HTTP handler.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

// Start serves the RPC endpoint on addr, blocking until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", map[string]any{"addr": addr})
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeError(w, nil, codeInvalidRequest, "POST only", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, nil, codeInvalidRequest, "failed to read request body", nil)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, codeParseError, "invalid JSON", nil)
		return
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		writeError(w, req.ID, codeInvalidRequest, "invalid JSON-RPC request", nil)
		return
	}

	result, err := s.dispatch(&req)
	if err == errMethodNotFound {
		writeError(w, req.ID, codeMethodNotFound, "method not found: "+req.Method, nil)
		return
	}
	if err != nil {
		s.log.Warn("rpc call failed", map[string]any{"method": req.Method, "error": err.Error()})
		code, data := classify(err)
		writeError(w, req.ID, code, err.Error(), data)
		return
	}

	s.log.Debug("rpc call served", map[string]any{"method": req.Method})
	writeResult(w, req.ID, result)
}

func (s *Server) dispatch(req *rpcRequest) (interface{}, error) {
	switch req.Method {
	case "gorr_createPaymentIntent":
		return s.handleCreatePaymentIntent(req.Params)
	case "gorr_getPaymentIntent":
		return s.handleGetPaymentIntent(req.Params)
	case "gorr_listMerchantPayments":
		return s.handleListMerchantPayments(req.Params)
	case "gorr_payInvoice":
		return s.handlePayInvoice(req.Params)
	case "gorr_refundInvoice":
		return s.handleRefundInvoice(req.Params)
	case "gorr_getBalances":
		return s.handleGetBalances(req.Params)
	case "eth_getTransactionReceipt":
		return s.handleGetReceipt(req.Params)
	default:
		return nil, errMethodNotFound
	}
}

var errMethodNotFound = &types.Error{Kind: types.KindProtocol, Code: types.ErrRPCError, Message: "method not found"}

// gorr_createPaymentIntent(merchant, grossAmountDecimalString, token)
func (s *Server) handleCreatePaymentIntent(params []json.RawMessage) (interface{}, error) {
	merchantStr, err := stringParam(params, 0, "merchant")
	if err != nil {
		return nil, err
	}
	amountStr, err := stringParam(params, 1, "amount")
	if err != nil {
		return nil, err
	}
	tokenStr, err := stringParam(params, 2, "token")
	if err != nil {
		return nil, err
	}

	merchant, err := utils.ParseAddress(merchantStr)
	if err != nil {
		return nil, err
	}
	amount, err := utils.ParseAmount(amountStr)
	if err != nil {
		return nil, err
	}
	token, err := utils.ParseToken(tokenStr)
	if err != nil {
		return nil, err
	}

	return s.gateway.CreateIntent(merchant, amount, token, s.cfg.FeeBps, s.cfg.IntentTTL)
}

// gorr_getPaymentIntent(id)
func (s *Server) handleGetPaymentIntent(params []json.RawMessage) (interface{}, error) {
	id, err := uint64Param(params, 0, "id")
	if err != nil {
		return nil, err
	}
	return s.gateway.GetIntent(id)
}

// gorr_listMerchantPayments(merchant)
func (s *Server) handleListMerchantPayments(params []json.RawMessage) (interface{}, error) {
	merchantStr, err := stringParam(params, 0, "merchant")
	if err != nil {
		return nil, err
	}
	merchant, err := utils.ParseAddress(merchantStr)
	if err != nil {
		return nil, err
	}
	return s.gateway.ListMerchantIntents(merchant)
}

// gorr_payInvoice(id, payerAddress)
func (s *Server) handlePayInvoice(params []json.RawMessage) (interface{}, error) {
	id, err := uint64Param(params, 0, "id")
	if err != nil {
		return nil, err
	}
	payerStr, err := stringParam(params, 1, "payer")
	if err != nil {
		return nil, err
	}
	payer, err := utils.ParseAddress(payerStr)
	if err != nil {
		return nil, err
	}
	return s.gateway.PayIntent(id, payer)
}

// gorr_refundInvoice(id)
func (s *Server) handleRefundInvoice(params []json.RawMessage) (interface{}, error) {
	id, err := uint64Param(params, 0, "id")
	if err != nil {
		return nil, err
	}
	return s.gateway.RefundIntent(id)
}

// gorr_getBalances(address)
func (s *Server) handleGetBalances(params []json.RawMessage) (interface{}, error) {
	if s.balances == nil {
		return nil, &types.Error{Kind: types.KindProtocol, Code: types.ErrRPCError, Message: "balance source not configured"}
	}
	addrStr, err := stringParam(params, 0, "address")
	if err != nil {
		return nil, err
	}
	addr, err := utils.ParseAddress(addrStr)
	if err != nil {
		return nil, err
	}
	return s.balances.Balances(addr)
}

// eth_getTransactionReceipt(txHash)
func (s *Server) handleGetReceipt(params []json.RawMessage) (interface{}, error) {
	if s.receipts == nil {
		return nil, &types.Error{Kind: types.KindProtocol, Code: types.ErrRPCError, Message: "receipt source not configured"}
	}
	hash, err := stringParam(params, 0, "txHash")
	if err != nil {
		return nil, err
	}
	return s.receipts.Receipt(hash)
}

func stringParam(params []json.RawMessage, index int, name string) (string, error) {
	if index >= len(params) {
		return "", types.NewValidationError(types.ErrInvalidParams, "missing param %s", name)
	}
	var value string
	if err := json.Unmarshal(params[index], &value); err != nil {
		return "", types.NewValidationError(types.ErrInvalidParams, "param %s must be a string", name)
	}
	return value, nil
}

func uint64Param(params []json.RawMessage, index int, name string) (uint64, error) {
	if index >= len(params) {
		return 0, types.NewValidationError(types.ErrInvalidParams, "missing param %s", name)
	}
	var value uint64
	if err := json.Unmarshal(params[index], &value); err != nil {
		return 0, types.NewValidationError(types.ErrInvalidParams, "param %s must be a non-negative integer", name)
	}
	return value, nil
}

// classify maps a typed error onto a JSON-RPC code plus the structured data
// clients use to rebuild the error kind.
func classify(err error) (int, interface{}) {
	e, ok := types.AsError(err)
	if !ok {
		return codeServerError, nil
	}
	data := rpcErrorData{Kind: e.Kind, Code: e.Code}
	switch e.Kind {
	case types.KindValidation:
		return codeInvalidParams, data
	case types.KindNotFound:
		return codeNotFound, data
	case types.KindStateConflict:
		return codeStateConflict, data
	default:
		return codeServerError, data
	}
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	resp := rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &rpcError{Code: code, Message: message, Data: data}}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}
