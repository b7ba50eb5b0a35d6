// Package egress builds the outbound HTTP and WebSocket clients the
// pipeline re-originates requests through, plus the request-rewriting
// helpers applied before send.
//
// The HTTP client pool follows the teacher's DefaultClientFactory: HTTP/2
// enabled, redirects disabled so the pipeline sees the raw upstream
// response, and transport-level compression disabled so handlers observe
// exactly what the origin sent.
package egress

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/kestrelnet/captureproxy/internal/helper"
)

// HTTPClients is a pool of pre-built HTTP clients for the protocol variants
// the pipeline originates egress requests over.
type HTTPClients struct {
	// Main is the general-purpose client used to re-originate proxied
	// requests; it trusts the configured root pool and negotiates HTTP/2
	// opportunistically.
	Main *http.Client

	// TLSConfig is the same trust configuration Main's transport presents,
	// exposed for the WebSocket egress client, which dials raw connections
	// outside of net/http's RoundTripper.
	TLSConfig *tls.Config
}

// NewHTTPClients builds the egress client pool. roots is the trust store
// presented to upstream TLS servers: the proxy's own Root CA plus any
// configured extra trust anchors (custom_certs). A nil roots pool falls
// back to the system trust store.
func NewHTTPClients(roots *x509.CertPool, upstreamConnectTimeout time.Duration) *HTTPClients {
	tlsConfig := &tls.Config{
		RootCAs: roots,
		// KeyLogWriter is nil unless SSLKEYLOGFILE is set, letting egress
		// TLS sessions be decrypted in Wireshark for debugging.
		KeyLogWriter: helper.GetTLSKeyLogWriter(),
	}

	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		ForceAttemptHTTP2:   true,
		DisableCompression:  true,
		TLSHandshakeTimeout: upstreamConnectTimeout,
		DialContext:         (&net.Dialer{Timeout: upstreamConnectTimeout}).DialContext,
	}
	// Register the HTTP/2 transport explicitly so the client negotiates
	// h2 over the same custom TLS config rather than relying on the
	// transport's best-effort auto-upgrade.
	_ = http2.ConfigureTransport(transport)

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &HTTPClients{Main: client, TLSConfig: tlsConfig}
}
