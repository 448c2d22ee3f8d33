package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Token represents the assets a payment intent can be denominated in.
type Token string

const (
	TokenGORR  Token = "GORR"
	TokenUSDCc Token = "USDCc"
)

func (t Token) IsValid() bool {
	return t == TokenGORR || t == TokenUSDCc
}

func (t Token) String() string {
	return string(t)
}

// Status is the derived lifecycle state of a payment intent. It is a
// read-time projection of the stored flags plus the caller's clock and is
// never persisted.
type Status string

const (
	StatusPending     Status = "pending"
	StatusPaid        Status = "paid"
	StatusExpired     Status = "expired"
	StatusPaidExpired Status = "paid_expired"
	StatusRefunded    Status = "refunded"
)

func (s Status) String() string {
	return string(s)
}

// PaymentIntent is a merchant's registered expectation of receiving a
// payment. ID, GrossAmount, FeeBps, FeeAmount and NetAmount are fixed at
// creation; Paid and Refunded each flip false to true at most once.
type PaymentIntent struct {
	ID       uint64         `json:"id"`
	Merchant common.Address `json:"merchant"`
	Payer    common.Address `json:"payer"`

	GrossAmount *big.Int `json:"grossAmount"`
	FeeBps      uint32   `json:"feeBps"`
	FeeAmount   *big.Int `json:"feeAmount"`
	NetAmount   *big.Int `json:"netAmount"`
	Token       Token    `json:"token"`

	CreatedAt uint64 `json:"createdAt"` // unix seconds
	Expiry    uint64 `json:"expiry"`    // unix seconds, always > CreatedAt

	Paid     bool `json:"paid"`
	Refunded bool `json:"refunded"`

	// On-chain settlement metadata, recorded write-once when the intent is
	// marked paid from a chain transaction. Empty for soft pays.
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	PaidAt      uint64 `json:"paidAt"`
}

// Expired reports whether the intent's deadline has passed at the supplied
// unix timestamp.
func (p *PaymentIntent) Expired(now uint64) bool {
	return now > p.Expiry
}

// Clone returns a deep copy so callers cannot mutate stored state through a
// returned intent.
func (p *PaymentIntent) Clone() *PaymentIntent {
	if p == nil {
		return nil
	}
	clone := *p
	if p.GrossAmount != nil {
		clone.GrossAmount = new(big.Int).Set(p.GrossAmount)
	}
	if p.FeeAmount != nil {
		clone.FeeAmount = new(big.Int).Set(p.FeeAmount)
	}
	if p.NetAmount != nil {
		clone.NetAmount = new(big.Int).Set(p.NetAmount)
	}
	return &clone
}

// IntentView is the wire projection of a PaymentIntent. Amounts are decimal
// strings, and Expired/Status are computed from the reader's clock at
// projection time.
type IntentView struct {
	ID          uint64 `json:"id"`
	Merchant    string `json:"merchant"`
	Payer       string `json:"payer"`
	GrossAmount string `json:"grossAmount"`
	FeeBps      uint32 `json:"feeBps"`
	FeeAmount   string `json:"feeAmount"`
	NetAmount   string `json:"netAmount"`
	Token       string `json:"token"`
	CreatedAt   uint64 `json:"createdAt"`
	Expiry      uint64 `json:"expiry"`
	Paid        bool   `json:"paid"`
	Refunded    bool   `json:"refunded"`
	Expired     bool   `json:"expired"`
	Status      Status `json:"status"`
	TxHash      string `json:"txHash,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	PaidAt      uint64 `json:"paidAt,omitempty"`
}

// CreateIntentResult pairs a freshly assigned id with the full intent view,
// matching the gorr_createPaymentIntent response shape.
type CreateIntentResult struct {
	ID     uint64     `json:"id"`
	Intent IntentView `json:"intent"`
}

// Balances holds per-token balances as 0x-prefixed hex wei strings, the
// gorr_getBalances response shape.
type Balances struct {
	GORR  string `json:"GORR"`
	USDCc string `json:"USDCc"`
}

// Receipt summarises a confirmed transaction as reported by the node.
type Receipt struct {
	TxHash      string `json:"transactionHash"`
	BlockHash   string `json:"blockHash"`
	BlockNumber uint64 `json:"blockNumber"`
	From        string `json:"from"`
	To          string `json:"to"`
	Status      uint64 `json:"status"`
}

// GatewayConfig carries the policy applied to newly created intents. FeeBps
// is captured into each intent at creation so later policy changes never
// retroactively alter stored amounts.
type GatewayConfig struct {
	FeeBps        uint32        `json:"feeBps" validate:"lte=10000"`
	IntentTTL     time.Duration `json:"intentTTL" validate:"gt=0"`
	LogLevel      string        `json:"logLevel,omitempty"`
	EnableMetrics bool          `json:"enableMetrics,omitempty"`
}

// Default gateway policy, mirroring the chain's treasury configuration:
// 250 bps (2.5%) treasury cut, 15 minute intent validity.
const (
	DefaultFeeBps    uint32        = 250
	DefaultIntentTTL time.Duration = 15 * time.Minute

	// BpsDenominator is the basis-point scale: 10000 bps = 100%.
	BpsDenominator = 10_000
)

// DefaultGatewayConfig returns the standard policy.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		FeeBps:    DefaultFeeBps,
		IntentTTL: DefaultIntentTTL,
		LogLevel:  "info",
	}
}

// ClientConfig contains configuration for the JSON-RPC transport client.
type ClientConfig struct {
	Endpoint   string            `json:"endpoint" validate:"required,url"`
	Timeout    time.Duration     `json:"timeout,omitempty"`
	RetryCount int               `json:"retryCount,omitempty" validate:"gte=0"`
	Headers    map[string]string `json:"headers,omitempty"`
}
