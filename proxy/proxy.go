package proxy

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"

	"golang.org/x/net/http2"

	"github.com/kestrelnet/captureproxy/cert"
	"github.com/kestrelnet/captureproxy/egress"
	"github.com/kestrelnet/captureproxy/events"
	"github.com/kestrelnet/captureproxy/pipeline"
	"github.com/kestrelnet/captureproxy/rules"
	"github.com/kestrelnet/captureproxy/version"
)

// Proxy is a capturing HTTP/HTTPS forward proxy. It terminates TLS for
// hosts selected by its HTTPS-capture policy, runs every request through a
// pipeline.Pipeline driven by a rules.Store, and reports lifecycle events
// on an events.Sender for subscribers (the CLI, an admin surface, tests).
type Proxy struct {
	Version string

	config  Config
	ca      cert.CA
	rules   rules.Store
	events  *events.Sender
	clients *egress.HTTPClients

	pipeline *pipeline.Pipeline
	policy   *capturePolicy
	logger   *InstanceLogger

	entry    *entry
	h2Server *http2.Server

	admin http.Handler
}

// NewProxy builds a Proxy from config, a CA used to mint per-authority leaf
// certificates, and the rule store the pipeline consults on every request.
func NewProxy(config Config, ca cert.CA, store rules.Store) (*Proxy, error) {
	roots, err := buildRootPool(ca, config.CustomCertsPath)
	if err != nil {
		return nil, err
	}

	clients := egress.NewHTTPClients(roots, config.upstreamConnectTimeout())
	sender := events.NewSender(config.eventBufferSize())
	pl := pipeline.New(store, sender, clients.Main, clients.TLSConfig)
	instLogger := NewInstanceLoggerWithFile(config.listenAddr(), "", config.LogFilePath)

	p := &Proxy{
		Version:  version.Version,
		config:   config,
		ca:       ca,
		rules:    store,
		events:   sender,
		clients:  clients,
		pipeline: pl,
		policy:   newCapturePolicy(config),
		logger:   instLogger,
		h2Server: &http2.Server{},
	}
	p.entry = newEntry(p)

	return p, nil
}

// Events returns the Sender proxy lifecycle events are reported on.
func (p *Proxy) Events() *events.Sender {
	return p.events
}

// RegisterAdmin wires h as the handler for requests that hit the proxy's
// listener directly (neither CONNECT nor an absolute-form proxy request).
// Typically an *admin.Server serving the certificate/rules/capture-toggle
// surface. Without a registered handler such requests get a plain 400.
func (p *Proxy) RegisterAdmin(h http.Handler) {
	p.admin = h
}

// Start begins listening for client connections. It blocks until the
// listener fails or the server is stopped.
func (p *Proxy) Start() error {
	return p.entry.start()
}

// Close stops the proxy immediately, closing active connections.
func (p *Proxy) Close() error {
	return p.entry.close()
}

// Shutdown stops the proxy gracefully, letting active connections finish.
func (p *Proxy) Shutdown(ctx context.Context) error {
	return p.entry.shutdown(ctx)
}

// GetCertificate returns the proxy's Root CA certificate, for clients to
// trust (e.g. serving it at a well-known path for browser installation).
func (p *Proxy) GetCertificate() x509.Certificate {
	return *p.ca.GetRootCA()
}

// GetCertificateByAuthority mints (or returns a cached) leaf certificate
// for authority, signed by the Root CA.
func (p *Proxy) GetCertificateByAuthority(authority string) (*tls.Certificate, error) {
	return p.ca.GetCert(authority)
}

var _ http.Handler = (*entry)(nil)
