package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"gemini/internal/ws"
)

const (
	feedMarketData  = "marketdata"
	feedOrderEvents = "orderevents"

	// SubscriptionL2 is the level 2 book and trades subscription of the market data feed.
	SubscriptionL2 = "l2"
)

type dialFunc func(ctx context.Context, config ws.Config, logger zerolog.Logger) (frameConn, error)

func dialWS(ctx context.Context, config ws.Config, logger zerolog.Logger) (frameConn, error) {
	return ws.Dial(ctx, config, logger)
}

// WSClient opens the exchange's websocket feeds.
type WSClient struct {
	baseURL    string
	protocol   *Protocol
	bufferSize int
	timeout    time.Duration
	logger     zerolog.Logger
	dial       dialFunc
}

// NewWSClient creates a feed client for the given websocket base URL.
func NewWSClient(baseURL string, protocol *Protocol, bufferSize int, timeout time.Duration) *WSClient {
	return &WSClient{
		baseURL:    baseURL,
		protocol:   protocol,
		bufferSize: bufferSize,
		timeout:    timeout,
		logger:     zerolog.Nop(),
		dial:       dialWS,
	}
}

// SetLogger configures the logger for the feed client.
func (c *WSClient) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

type subscribeRequest struct {
	Type          string         `json:"type"`
	Subscriptions []subscription `json:"subscriptions"`
}

type subscription struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

// OpenMarketData dials the anonymous market data feed. The returned feed
// sends its level 2 subscription for symbols when started.
func (c *WSClient) OpenMarketData(ctx context.Context, symbols ...string) (*Feed[MarketDataMessage], error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("market data: at least one symbol is required")
	}
	conn, err := c.dial(ctx, ws.Config{
		Name:             feedMarketData,
		URL:              c.baseURL + PathMarketData,
		BufferSize:       c.bufferSize,
		HandshakeTimeout: c.timeout,
	}, c.logger)
	if err != nil {
		return nil, err
	}

	subscribe := func(conn frameConn) error {
		return conn.SendJSON(subscribeRequest{
			Type:          "subscribe",
			Subscriptions: []subscription{{Name: SubscriptionL2, Symbols: symbols}},
		})
	}
	return newFeed(feedMarketData, conn, ClassifyMarketData, subscribe, c.logger), nil
}

// SubscribeMarketData opens and starts the market data feed.
func (c *WSClient) SubscribeMarketData(ctx context.Context, symbols ...string) (*Stream[MarketDataMessage], error) {
	feed, err := c.OpenMarketData(ctx, symbols...)
	if err != nil {
		return nil, err
	}
	return feed.Start(ctx)
}

// OrderEventsOption narrows the order events subscription.
type OrderEventsOption func(url.Values)

// WithSymbolFilter limits events to the given symbols.
func WithSymbolFilter(symbols ...string) OrderEventsOption {
	return func(q url.Values) {
		for _, s := range symbols {
			q.Add("symbolFilter", s)
		}
	}
}

// WithEventTypeFilter limits events to the given lifecycle types.
func WithEventTypeFilter(types ...OrderEventType) OrderEventsOption {
	return func(q url.Values) {
		for _, t := range types {
			q.Add("eventTypeFilter", t.String())
		}
	}
}

// WithAPISessionFilter limits events to orders placed by the given API sessions.
func WithAPISessionFilter(sessions ...string) OrderEventsOption {
	return func(q url.Values) {
		for _, s := range sessions {
			q.Add("apiSessionFilter", s)
		}
	}
}

// WithHeartbeat asks the exchange to send heartbeat frames.
func WithHeartbeat(enabled bool) OrderEventsOption {
	return func(q url.Values) {
		q.Set("heartbeat", strconv.FormatBool(enabled))
	}
}

// OpenOrderEvents dials the private order events feed. Authentication
// travels in the upgrade request: a signed envelope for the feed path with
// an empty body. Filters go in the query string and are not signed.
func (c *WSClient) OpenOrderEvents(ctx context.Context, opts ...OrderEventsOption) (*Feed[OrderEventMessage], error) {
	auth, err := c.protocol.AuthHeaders(PathOrderEvents, nil)
	if err != nil {
		return nil, fmt.Errorf("order events: %w", err)
	}
	header := http.Header{}
	for k, v := range auth {
		header.Set(k, v)
	}
	header.Set("Content-Type", payloadMediaType)
	if c.protocol.userAgent != "" {
		header.Set("User-Agent", c.protocol.userAgent)
	}

	target := c.baseURL + PathOrderEvents
	query := url.Values{}
	for _, opt := range opts {
		opt(query)
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	conn, err := c.dial(ctx, ws.Config{
		Name:             feedOrderEvents,
		URL:              target,
		Header:           header,
		BufferSize:       c.bufferSize,
		HandshakeTimeout: c.timeout,
	}, c.logger)
	if err != nil {
		return nil, err
	}
	return newFeed(feedOrderEvents, conn, ClassifyOrderEvent, nil, c.logger), nil
}

// SubscribeOrderEvents opens and starts the order events feed.
func (c *WSClient) SubscribeOrderEvents(ctx context.Context, opts ...OrderEventsOption) (*Stream[OrderEventMessage], error) {
	feed, err := c.OpenOrderEvents(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return feed.Start(ctx)
}
