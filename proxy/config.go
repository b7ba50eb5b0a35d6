package proxy

import (
	"net"
	"strconv"
	"time"
)

// Config holds the proxy's runtime configuration, populated by
// cmd/captureproxy's flag parsing (or by any other embedder).
type Config struct {
	// Port is the listener port. Addr, if set, overrides Port/OnlyLocalhost
	// with a literal bind address.
	Port int
	// OnlyLocalhost binds the listener solely to loopback interfaces.
	OnlyLocalhost bool
	Addr          string

	// RootCertPath and RootKeyPath record where the CA material lives on
	// disk. The proxy itself does not read them: the CA passed to NewProxy
	// is already loaded.
	RootCertPath string
	RootKeyPath  string

	// CustomCertsPath, if set, is a PEM bundle of additional trust anchors
	// added to the egress HTTP client's root pool.
	CustomCertsPath string

	// RulesPath, if set, is consumed by rules.FileStore. An empty value
	// runs with an empty in-memory rule store.
	RulesPath string

	// HTTPSCapture is the global MITM toggle. HTTPSCaptureInclude and
	// HTTPSCaptureExclude are per-domain overrides consulted before it
	// (see shouldIntercept).
	HTTPSCapture        bool
	HTTPSCaptureInclude []string
	HTTPSCaptureExclude []string

	// EventBufferSize is the per-subscriber event channel buffer.
	EventBufferSize int

	// LogFilePath, if set, appends structured log output to this file
	// instead of the default slog destination. An instance id is bound
	// into every record either way (see InstanceLogger).
	LogFilePath string

	// Timeouts, all optional; zero falls back to the package defaults.
	RequestTimeout         time.Duration
	ConnectPeekTimeout     time.Duration
	TLSHandshakeTimeout    time.Duration
	UpstreamConnectTimeout time.Duration

	InsecureSkipVerify bool
}

const (
	DefaultRequestTimeout         = 60 * time.Second
	DefaultConnectPeekTimeout     = 5 * time.Second
	DefaultTLSHandshakeTimeout    = 10 * time.Second
	DefaultUpstreamConnectTimeout = 10 * time.Second
	DefaultEventBufferSize        = 100
)

func (c Config) requestTimeout() time.Duration {
	return orDefault(c.RequestTimeout, DefaultRequestTimeout)
}

func (c Config) connectPeekTimeout() time.Duration {
	return orDefault(c.ConnectPeekTimeout, DefaultConnectPeekTimeout)
}

func (c Config) tlsHandshakeTimeout() time.Duration {
	return orDefault(c.TLSHandshakeTimeout, DefaultTLSHandshakeTimeout)
}

func (c Config) upstreamConnectTimeout() time.Duration {
	return orDefault(c.UpstreamConnectTimeout, DefaultUpstreamConnectTimeout)
}

func (c Config) eventBufferSize() int {
	if c.EventBufferSize <= 0 {
		return DefaultEventBufferSize
	}
	return c.EventBufferSize
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (c Config) listenAddr() string {
	if c.Addr != "" {
		return c.Addr
	}
	host := ""
	if c.OnlyLocalhost {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = 3000
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
