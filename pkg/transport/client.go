package transport

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Version is reported in the User-Agent header.
const Version = "1.0.0"

// UserAgent identifies the library to the backend.
const UserAgent = "FlagSyncGo/" + Version

type clientOptions struct {
	connectTimeout  time.Duration
	requestTimeout  time.Duration
	maxIdlePerHost  int
	idleConnTimeout time.Duration
}

// ClientOption configures NewHTTPClient.
type ClientOption func(*clientOptions)

// WithConnectTimeout bounds dialing and the TLS handshake.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithRequestTimeout sets http.Client.Timeout. Leave it zero for clients
// used with long-lived streams.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.requestTimeout = d }
}

// WithMaxIdleConnsPerHost caps the idle connections kept per host.
func WithMaxIdleConnsPerHost(n int) ClientOption {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxIdlePerHost = n
		}
	}
}

// NewHTTPClient builds the connection pool an environment shares between
// streaming, polling and event delivery. HTTP/2 is negotiated over TLS when
// the server supports it.
func NewHTTPClient(opts ...ClientOption) *http.Client {
	o := &clientOptions{
		connectTimeout:  10 * time.Second,
		maxIdlePerHost:  4,
		idleConnTimeout: 90 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}

	dialer := &net.Dialer{Timeout: o.connectTimeout, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          o.maxIdlePerHost * 4,
		MaxIdleConnsPerHost:   o.maxIdlePerHost,
		IdleConnTimeout:       o.idleConnTimeout,
		TLSHandshakeTimeout:   o.connectTimeout,
		ResponseHeaderTimeout: o.connectTimeout,
		ExpectContinueTimeout: time.Second,
	}
	// Only fails when the transport was already configured for HTTP/2.
	_ = http2.ConfigureTransport(tr)

	return &http.Client{Transport: tr, Timeout: o.requestTimeout}
}
