package core

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Credentials holds API authentication credentials for an exchange account.
type Credentials struct {
	// APIKey is the public API key identifier.
	APIKey string `json:"api_key" validate:"required"`
	// SecretKey is the private API secret used for signing requests.
	SecretKey string `json:"secret_key" validate:"required"`
}

// String returns a representation of the credentials safe for logging.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{APIKey:%s}", maskKey(c.APIKey))
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// Config contains all configuration options for an exchange client.
type Config struct {
	Sandbox     bool         `json:"sandbox"`
	Credentials *Credentials `json:"credentials,omitempty"`

	// BaseURL overrides the REST endpoint selected by Sandbox.
	BaseURL string `json:"base_url,omitempty" validate:"omitempty,url"`
	// WSURL overrides the websocket endpoint selected by Sandbox.
	WSURL string `json:"ws_url,omitempty" validate:"omitempty,url"`

	// HeaderPrefix is prepended to the APIKEY, PAYLOAD and SIGNATURE header names.
	HeaderPrefix string `json:"header_prefix" validate:"required"`
	UserAgent    string `json:"user_agent" validate:"required"`

	// Timeout is the maximum duration for HTTP requests and websocket handshakes.
	Timeout time.Duration `json:"timeout" validate:"min=1ms"`

	// WSBufferSize is the number of inbound frames held before the reader blocks.
	WSBufferSize int `json:"ws_buffer_size" validate:"min=1"`

	// LogLevel is the minimum level the client logs at. Empty keeps the
	// logger's own level.
	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config initialized with production endpoints,
// the exchange's header prefix, a 10s timeout and a 256 frame websocket buffer.
func DefaultConfig() *Config {
	return &Config{
		Sandbox:      false,
		HeaderPrefix: DefaultHeaderPrefix,
		UserAgent:    DefaultUserAgent,
		Timeout:      10 * time.Second,
		WSBufferSize: 256,
		LogLevel:     "info",
	}
}

const (
	// DefaultHeaderPrefix is the header prefix the exchange documents for
	// signed requests. WithHeaderPrefix("X-") yields the bare X-APIKEY,
	// X-PAYLOAD and X-SIGNATURE names.
	DefaultHeaderPrefix = "X-GEMINI-"
	// DefaultUserAgent identifies this client on every request.
	DefaultUserAgent = "gemini-go/0.3.0"
)

var validate = validator.New()

// Validate checks the configuration and any attached credentials.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	return nil
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *Config) WithCredentials(creds *Credentials) *Config {
	c.Credentials = creds
	return c
}

// WithSandbox enables or disables sandbox mode and returns the config for chaining.
func (c *Config) WithSandbox(sandbox bool) *Config {
	c.Sandbox = sandbox
	return c
}

// WithTimeout sets the request timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithEndpoints overrides the REST and websocket endpoints and returns the config for chaining.
func (c *Config) WithEndpoints(baseURL, wsURL string) *Config {
	c.BaseURL = baseURL
	c.WSURL = wsURL
	return c
}

// WithHeaderPrefix sets the signed header prefix and returns the config for chaining.
func (c *Config) WithHeaderPrefix(prefix string) *Config {
	c.HeaderPrefix = prefix
	return c
}
