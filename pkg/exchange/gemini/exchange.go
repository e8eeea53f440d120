package gemini

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	httpClient "gemini/internal/http"
	"gemini/pkg/core"
	"gemini/pkg/exchange"
	"gemini/pkg/order"
)

var _ exchange.Exchange = (*GeminiExchange)(nil)

// GeminiExchange implements the Exchange interface for Gemini spot markets.
// Nothing is retried: every call either returns its value or a typed error.
type GeminiExchange struct {
	config     *core.Config
	httpClient *httpClient.Client
	protocol   *Protocol
	logger     zerolog.Logger
	wsClient   *WSClient
	wsMu       sync.Mutex
}

// Option is a functional option for configuring the GeminiExchange.
type Option func(*Options)

// Options holds configuration options for the GeminiExchange.
type Options struct {
	Logger zerolog.Logger
	Nonces *NonceSource
}

// WithLogger returns an option that sets the logger for the exchange.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithNonceSource shares a nonce source between clients using the same key.
func WithNonceSource(n *NonceSource) Option {
	return func(o *Options) {
		o.Nonces = n
	}
}

// New creates a new GeminiExchange instance with the given configuration and options.
func New(config *core.Config, opts ...Option) (*GeminiExchange, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	options := &Options{
		Logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if config.LogLevel != "" {
		level, err := zerolog.ParseLevel(config.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		options.Logger = options.Logger.Level(level)
	}

	client, err := httpClient.NewClient(&httpClient.Config{
		BaseURL:   BaseURL(config),
		Timeout:   config.Timeout,
		UserAgent: config.UserAgent,
		Logger:    &options.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	if config.Credentials != nil {
		options.Logger.Debug().Stringer("credentials", config.Credentials).Msg("gemini client configured")
	}

	return &GeminiExchange{
		config:     config,
		httpClient: client,
		protocol:   NewProtocol(config, options.Nonces),
		logger:     options.Logger,
	}, nil
}

// Name returns the exchange identifier "gemini".
func (e *GeminiExchange) Name() string {
	return e.protocol.Name()
}

// Close releases the HTTP client.
func (e *GeminiExchange) Close() error {
	return e.httpClient.Close()
}

// WebSocket returns the feed client, creating it on first use.
func (e *GeminiExchange) WebSocket() *WSClient {
	e.wsMu.Lock()
	defer e.wsMu.Unlock()
	if e.wsClient == nil {
		e.wsClient = NewWSClient(WebsocketURL(e.config), e.protocol, e.config.WSBufferSize, e.config.Timeout)
		e.wsClient.SetLogger(e.logger)
	}
	return e.wsClient
}

// request builds the wire request for op. Private operations are signed;
// public ones travel as plain GETs and ignore body.
func (e *GeminiExchange) request(op core.Operation, path string, body any) (*core.Request, error) {
	if !op.RequiresAuth() {
		return e.protocol.PublicRequest(path), nil
	}
	return e.protocol.SignedRequest(path, body)
}

// call sends op to path and decodes the answer into T.
func call[T any](ctx context.Context, e *GeminiExchange, op core.Operation, path string, body any) (T, error) {
	var zero T
	req, err := e.request(op, path, body)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := e.httpClient.Do(ctx, req)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", op, err)
	}
	out, err := DecodeStatus[T](resp.Body, resp.StatusCode)
	if err != nil {
		e.logger.Debug().
			Err(err).
			Str("op", op.String()).
			Int("status", resp.StatusCode).
			Msg("gemini request failed")
		return out, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// GetSymbols lists every tradable symbol.
func (e *GeminiExchange) GetSymbols(ctx context.Context) ([]string, error) {
	return call[[]string](ctx, e, core.OpGetSymbols, PathSymbols, nil)
}

// GetTicker returns the latest quote for symbol.
func (e *GeminiExchange) GetTicker(ctx context.Context, symbol string) (*core.Ticker, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%s: symbol is required", core.OpGetTicker)
	}
	path := PathTicker + url.PathEscape(strings.ToLower(symbol))
	return call[*core.Ticker](ctx, e, core.OpGetTicker, path, nil)
}

// GetBalances returns the available balances of the account.
func (e *GeminiExchange) GetBalances(ctx context.Context) ([]core.Balance, error) {
	return call[[]core.Balance](ctx, e, core.OpGetBalances, PathBalances, nil)
}

type myTradesRequest struct {
	Symbol      string `json:"symbol"`
	LimitTrades int    `json:"limit_trades,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

// GetMyTrades returns the account's trades on symbol, newest first.
// WithLimit caps the count; WithSince sets the earliest trade time.
func (e *GeminiExchange) GetMyTrades(ctx context.Context, symbol string, opts ...exchange.Option) ([]core.Trade, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%s: symbol is required", core.OpGetMyTrades)
	}
	o := exchange.ApplyOptions(opts...)
	body := myTradesRequest{Symbol: symbol, LimitTrades: o.Limit}
	if !o.Since.IsZero() {
		body.Timestamp = o.Since.UnixMilli()
	}
	return call[[]core.Trade](ctx, e, core.OpGetMyTrades, PathMyTrades, body)
}

// NewOrder places o. Use order.NewBuilder to construct it.
func (e *GeminiExchange) NewOrder(ctx context.Context, o *order.Order) (*core.Order, error) {
	if o == nil {
		return nil, fmt.Errorf("%s: nil order", core.OpNewOrder)
	}
	if err := order.Validate(o); err != nil {
		return nil, fmt.Errorf("%s: %w", core.OpNewOrder, err)
	}
	return call[*core.Order](ctx, e, core.OpNewOrder, PathNewOrder, o)
}

type cancelOrderRequest struct {
	OrderID core.OrderID `json:"order_id"`
}

// CancelOrder cancels one order and returns its final state.
func (e *GeminiExchange) CancelOrder(ctx context.Context, id core.OrderID) (*core.Order, error) {
	return call[*core.Order](ctx, e, core.OpCancelOrder, PathCancelOrder, cancelOrderRequest{OrderID: id})
}

// CancelAllOrders cancels every open order of the account, including those
// placed from other sessions.
func (e *GeminiExchange) CancelAllOrders(ctx context.Context) (*core.CancelAllResult, error) {
	return call[*core.CancelAllResult](ctx, e, core.OpCancelAllOrders, PathCancelAll, nil)
}
