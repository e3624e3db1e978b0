// Package httpclient builds HTTP clients with shared defaults for the
// outbound calls kashef makes.
package httpclient

import (
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

type Config struct {
	Timeout   time.Duration
	Transport http.RoundTripper
}

type Option func(*Config)

func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithTransport sets a custom transport, e.g. a tracing round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Config) {
		c.Transport = rt
	}
}

func New(opts ...Option) *http.Client {
	cfg := &Config{
		Timeout:   DefaultTimeout,
		Transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: cfg.Transport,
	}
}
