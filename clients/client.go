// Package clients implements the JSON-RPC 2.0 transport client for a
// gorrillazz node: one typed method per protocol endpoint, with errors
// classified so transport failures are never mistaken for business
// rejections.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorrillazz/gorrpay/types"
	"github.com/gorrillazz/gorrpay/utils"
)

const jsonRPCVersion = "2.0"

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// rpcErrorData is the structured classification a gorrpay server attaches to
// business errors. When present it drives client-side error typing instead of
// message-text matching.
type rpcErrorData struct {
	Kind types.ErrorKind `json:"kind"`
	Code string          `json:"code"`
}

// Client is an explicit transport handle for a single RPC endpoint. It is
// constructed once with its configuration and passed to callers; there is no
// hidden global connection state. Safe for concurrent use.
type Client struct {
	endpoint   string
	httpClient *http.Client
	headers    map[string]string
	retryCount int
	nextID     atomic.Uint64
}

// New builds a client from the supplied configuration.
func New(cfg types.ClientConfig) (*Client, error) {
	if err := utils.ValidateStruct(&cfg); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		headers:    cfg.Headers,
		retryCount: cfg.RetryCount,
	}, nil
}

// call performs one JSON-RPC request, retrying transport failures with
// backoff. Business errors are returned typed and never retried.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	var lastErr error
	backoff := 100 * time.Millisecond

	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return types.NewTransportError(ctx.Err(), "rpc %s aborted", method)
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err := c.callOnce(ctx, method, params, result)
		if err == nil {
			return nil
		}
		if !types.IsRetryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *Client) callOnce(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return types.NewProtocolError(types.ErrRPCError, "encode %s request: %v", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return types.NewTransportError(err, "build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.NewTransportError(err, "rpc %s request failed", method)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewTransportError(nil, "rpc %s: http %d: %s", method, resp.StatusCode, text)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return types.NewProtocolError(types.ErrInvalidResponse, "rpc %s: malformed response: %v", method, err)
	}
	if decoded.Error != nil {
		return classifyRPCError(method, decoded.Error)
	}
	if result == nil {
		return nil
	}
	if len(decoded.Result) == 0 || bytes.Equal(decoded.Result, []byte("null")) {
		return types.NewProtocolError(types.ErrInvalidResponse, "rpc %s: empty result", method)
	}
	if err := json.Unmarshal(decoded.Result, result); err != nil {
		return types.NewProtocolError(types.ErrInvalidResponse, "rpc %s: unexpected result shape: %v", method, err)
	}
	return nil
}

// classifyRPCError rebuilds a typed error from the server's structured error
// data. Responses without classification data stay protocol errors.
func classifyRPCError(method string, rpcErr *rpcError) error {
	if len(rpcErr.Data) > 0 {
		var data rpcErrorData
		if err := json.Unmarshal(rpcErr.Data, &data); err == nil && data.Kind != "" {
			return &types.Error{Kind: data.Kind, Code: data.Code, Message: rpcErr.Message}
		}
	}
	return types.NewProtocolError(types.ErrRPCError, "rpc %s: %s (code %d)", method, rpcErr.Message, rpcErr.Code)
}
