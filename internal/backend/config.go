package backend

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds every backend round trip.
const DefaultTimeout = 30 * time.Second

type Config struct {
	BaseURL string        // required, http(s)
	Timeout time.Duration // per request (default: 30s)

	// Idle pool sizes (default: 100 each). Connections in use are not
	// capped, so concurrent sessions never queue behind each other.
	MaxIdleConns        int
	MaxIdleConnsPerHost int

	// HTTPClient replaces the pooled client, mainly for tests.
	HTTPClient *http.Client
}

func (c Config) validate() error {
	if c.BaseURL == "" {
		return errors.New("backend: BaseURL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend: BaseURL %q must be an absolute http(s) URL", c.BaseURL)
	}
	return nil
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 100
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = 100
	}
	return c
}

// Client performs stateless calls against the analytics backend. It holds no
// cache and never retries.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: newTransport(cfg)}
	}
	return &Client{cfg: cfg, httpClient: hc, logger: logger.Named("backend")}, nil
}

// Timeout reports the effective per-request bound.
func (c *Client) Timeout() time.Duration { return c.cfg.Timeout }

// newTransport keeps enough idle connections for several full dashboard
// loads to reuse them.
func newTransport(cfg Config) *http.Transport {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
}

// Close drops idle connections. The client stays usable.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
