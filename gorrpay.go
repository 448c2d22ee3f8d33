// Package gorrpay implements the gorrillazz payment gateway protocol: payment
// intent registration, on-chain settlement correlation through transaction
// data markers, fee splitting, and derived-status reads, exposed over a
// JSON-RPC interface.
package gorrpay

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gorrillazz/gorrpay/gateway"
	"github.com/gorrillazz/gorrpay/logger"
	"github.com/gorrillazz/gorrpay/metrics"
	"github.com/gorrillazz/gorrpay/server"
	"github.com/gorrillazz/gorrpay/store"
	"github.com/gorrillazz/gorrpay/types"
	"github.com/gorrillazz/gorrpay/utils"
	"github.com/gorrillazz/gorrpay/watcher"
)

// Service is the assembled payment gateway: store, lifecycle engine, and
// chain watcher, wired with one logger and one metrics recorder.
type Service struct {
	cfg     types.GatewayConfig
	store   store.IntentStore
	gateway *gateway.Gateway
	watcher *watcher.Watcher
	logger  logger.Logger
	metrics metrics.Recorder
}

// New assembles a service with the given policy. A zero-value option set
// yields an in-memory store, a zap logger at the configured level, and
// metrics per cfg.EnableMetrics.
func New(cfg types.GatewayConfig, opts ...Option) (*Service, error) {
	if err := utils.ValidateStruct(&cfg); err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = store.NewMemoryStore()
	}
	if s.logger == nil {
		s.logger = logger.NewZapLogger(cfg.LogLevel)
	}
	if s.metrics == nil {
		if cfg.EnableMetrics {
			s.metrics = metrics.NewPrometheusRecorder(nil)
		} else {
			s.metrics = metrics.NoopRecorder{}
		}
	}

	s.gateway = gateway.New(s.store)
	s.gateway.SetLogger(s.logger)
	s.gateway.SetMetrics(s.metrics)

	s.watcher = watcher.New(s.gateway)
	s.watcher.SetLogger(s.logger)
	s.watcher.SetMetrics(s.metrics)

	return s, nil
}

// NewWithDefaults assembles a service with the standard policy (250 bps fee,
// 15 minute TTL, in-memory store).
func NewWithDefaults() *Service {
	s, err := New(types.DefaultGatewayConfig())
	if err != nil {
		// The default configuration always validates.
		panic(err)
	}
	return s
}

// CreateIntent registers an expected payment under the service's fee and TTL
// policy.
func (s *Service) CreateIntent(merchant common.Address, gross *big.Int, token types.Token) (*types.CreateIntentResult, error) {
	return s.gateway.CreateIntent(merchant, gross, token, s.cfg.FeeBps, s.cfg.IntentTTL)
}

// MarkPaidFromTransaction correlates a confirmed transfer with an intent via
// its data payload marker. See gateway.Gateway.MarkPaidFromTransaction.
func (s *Service) MarkPaidFromTransaction(txPayload []byte, payer, recipient common.Address, confirmed *big.Int, settle *gateway.Settlement) (*types.IntentView, bool, error) {
	return s.gateway.MarkPaidFromTransaction(txPayload, payer, recipient, confirmed, settle)
}

// PayIntent marks an intent paid without an on-chain transfer.
func (s *Service) PayIntent(id uint64, payer common.Address) (*types.IntentView, error) {
	return s.gateway.PayIntent(id, payer)
}

// RefundIntent records a gateway-side refund.
func (s *Service) RefundIntent(id uint64) (*types.IntentView, error) {
	return s.gateway.RefundIntent(id)
}

// GetIntent returns the current view of an intent.
func (s *Service) GetIntent(id uint64) (*types.IntentView, error) {
	return s.gateway.GetIntent(id)
}

// ListMerchantIntents returns every intent registered by the merchant.
func (s *Service) ListMerchantIntents(merchant common.Address) ([]types.IntentView, error) {
	return s.gateway.ListMerchantIntents(merchant)
}

// Gateway exposes the underlying lifecycle engine.
func (s *Service) Gateway() *gateway.Gateway {
	return s.gateway
}

// Watcher exposes the confirmed-transaction feed consumer.
func (s *Service) Watcher() *watcher.Watcher {
	return s.watcher
}

// Server builds a JSON-RPC server over this service's gateway and policy.
func (s *Service) Server() *server.Server {
	srv := server.New(s.gateway, s.cfg)
	srv.SetLogger(s.logger)
	return srv
}

// Version information.
const (
	Version         = "1.0.0"
	ProtocolVersion = 1
)
