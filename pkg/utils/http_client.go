package utils

import (
	"net"
	"net/http"
	"time"
)

// Defaults tuned for short, fire-and-forget webhook calls.
const (
	defaultClientTimeout         = 3 * time.Second
	defaultResponseHeaderTimeout = 2 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultTLSHandshakeTimeout   = 5 * time.Second

	defaultMaxConnsPerHost     = 64
	defaultMaxIdleConnsPerHost = 32

	defaultDialerTimeout   = 1 * time.Second
	defaultDialerKeepAlive = 30 * time.Second
)

// ClientConfig captures tunables for the HTTP client/transport.
// Zero values are replaced by defaults.
type ClientConfig struct {
	ClientTimeout         time.Duration // caps total request time
	ResponseHeaderTimeout time.Duration // time to first byte of headers
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	MaxConnsPerHost       int
	MaxIdleConnsPerHost   int
	DialerTimeout         time.Duration
	DialerKeepAlive       time.Duration
}

// ClientOption ----- Functional options pattern -----
type ClientOption func(*ClientConfig)

func WithClientTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.ClientTimeout = d }
}
func WithResponseHeaderTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.ResponseHeaderTimeout = d }
}
func WithMaxConnsPerHost(n int) ClientOption {
	return func(c *ClientConfig) { c.MaxConnsPerHost = n }
}

// NewHTTPClient builds an *http.Client with safe defaults overridden by opts.
// All zero values are filled in to avoid accidental infinite hangs.
func NewHTTPClient(opts ...ClientOption) *http.Client {
	cfg := ClientConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	sanitizeClientConfig(&cfg)

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialerTimeout,
			KeepAlive: cfg.DialerKeepAlive,
		}).DialContext,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: tr,
		Timeout:   cfg.ClientTimeout,
	}
}

func sanitizeClientConfig(c *ClientConfig) {
	if c.ClientTimeout <= 0 {
		c.ClientTimeout = defaultClientTimeout
	}
	if c.ResponseHeaderTimeout <= 0 {
		c.ResponseHeaderTimeout = defaultResponseHeaderTimeout
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = defaultIdleConnTimeout
	}
	if c.TLSHandshakeTimeout <= 0 {
		c.TLSHandshakeTimeout = defaultTLSHandshakeTimeout
	}
	if c.DialerTimeout <= 0 {
		c.DialerTimeout = defaultDialerTimeout
	}
	if c.DialerKeepAlive <= 0 {
		c.DialerKeepAlive = defaultDialerKeepAlive
	}
	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = defaultMaxConnsPerHost
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = defaultMaxIdleConnsPerHost
	}
}
