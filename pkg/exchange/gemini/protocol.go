package gemini

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"strings"

	"gemini/pkg/core"
)

const (
	ProductionURL   = "https://api.gemini.com"
	SandboxURL      = "https://api.sandbox.gemini.com"
	ProductionWSURL = "wss://api.gemini.com"
	SandboxWSURL    = "wss://api.sandbox.gemini.com"
)

// Request paths.
const (
	PathSymbols      = "/v1/symbols"
	PathTicker       = "/v1/pubticker/"
	PathBalances     = "/v1/balances"
	PathMyTrades     = "/v1/mytrades"
	PathNewOrder     = "/v1/order/new"
	PathCancelOrder  = "/v1/order/cancel"
	PathCancelAll    = "/v1/order/cancel/all"
	PathMarketData   = "/v2/marketdata"
	PathOrderEvents  = "/v1/order/events"
	payloadMediaType = "text/plain"
)

// Sign returns the lower-case hex HMAC-SHA384 of payload keyed by secret.
func Sign(secret []byte, payload string) string {
	mac := hmac.New(sha512.New384, secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Protocol builds the requests the exchange accepts. Private REST calls and
// the order events upgrade share AuthHeaders.
type Protocol struct {
	prefix    string
	userAgent string
	creds     *core.Credentials
	nonces    *NonceSource
}

// NewProtocol creates a protocol for config. A nil nonces gets a fresh source.
func NewProtocol(config *core.Config, nonces *NonceSource) *Protocol {
	if nonces == nil {
		nonces = NewNonceSource()
	}
	return &Protocol{
		prefix:    config.HeaderPrefix,
		userAgent: config.UserAgent,
		creds:     config.Credentials,
		nonces:    nonces,
	}
}

// Name returns the protocol identifier "gemini".
func (p *Protocol) Name() string {
	return "gemini"
}

// BaseURL returns the REST endpoint for config.
func BaseURL(config *core.Config) string {
	if config.BaseURL != "" {
		return strings.TrimRight(config.BaseURL, "/")
	}
	if config.Sandbox {
		return SandboxURL
	}
	return ProductionURL
}

// WebsocketURL returns the websocket endpoint for config.
func WebsocketURL(config *core.Config) string {
	if config.WSURL != "" {
		return strings.TrimRight(config.WSURL, "/")
	}
	if config.Sandbox {
		return SandboxWSURL
	}
	return ProductionWSURL
}

func (p *Protocol) APIKeyHeader() string    { return p.prefix + "APIKEY" }
func (p *Protocol) PayloadHeader() string   { return p.prefix + "PAYLOAD" }
func (p *Protocol) SignatureHeader() string { return p.prefix + "SIGNATURE" }

// AuthHeaders envelopes body for path under a fresh nonce and returns the
// API key, payload and signature headers.
func (p *Protocol) AuthHeaders(path string, body any) (map[string]string, error) {
	if p.creds == nil || p.creds.APIKey == "" || p.creds.SecretKey == "" {
		return nil, core.ErrNoCredentials
	}
	env := Envelope{Nonce: p.nonces.Next(), Request: path, Body: body}
	payload, err := env.Payload()
	if err != nil {
		return nil, err
	}
	return map[string]string{
		p.APIKeyHeader():    p.creds.APIKey,
		p.PayloadHeader():   payload,
		p.SignatureHeader(): Sign([]byte(p.creds.SecretKey), payload),
	}, nil
}

// SignedRequest builds a private POST. The body travels only inside the
// payload header; the transport body stays empty.
func (p *Protocol) SignedRequest(path string, body any) (*core.Request, error) {
	auth, err := p.AuthHeaders(path, body)
	if err != nil {
		return nil, err
	}
	req := core.NewRequest(http.MethodPost, path).
		SetRequireAuth(true).
		SetHeader("User-Agent", p.userAgent).
		SetHeader("Content-Type", payloadMediaType)
	for k, v := range auth {
		req.SetHeader(k, v)
	}
	return req, nil
}

// PublicRequest builds an unauthenticated GET.
func (p *Protocol) PublicRequest(path string) *core.Request {
	return core.NewRequest(http.MethodGet, path).SetHeader("User-Agent", p.userAgent)
}
