// Package proxy implements the HTTP/HTTPS capturing forward proxy.
//
// This file (entry.go) is the HTTP server entry point and connection
// router: it accepts client connections, classifies CONNECT tunnels, and
// for TLS streams the proxy decides to capture, terminates TLS and runs
// the decrypted requests through a pipeline.Pipeline.
package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/kestrelnet/captureproxy/egress"
	"github.com/kestrelnet/captureproxy/events"
	"github.com/kestrelnet/captureproxy/internal/helper"
	"github.com/kestrelnet/captureproxy/proxy/internal/conn"
	"github.com/kestrelnet/captureproxy/proxy/internal/proxycontext"
	"github.com/kestrelnet/captureproxy/proxy/internal/types"
)

// wrapListener wraps a TCP listener so every accepted connection is a
// conn.PeekConn, giving the CONNECT handler a Peek buffer to sniff the
// tunnel's first bytes without consuming them.
type wrapListener struct {
	net.Listener
}

func (l *wrapListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return conn.NewPeekConn(c), nil
}

// entry is the HTTP server entry point: it implements http.Handler and
// routes every accepted request to the CONNECT handler or the pipeline.
type entry struct {
	proxy  *Proxy
	server *http.Server
}

func newEntry(proxy *Proxy) *entry {
	e := &entry{proxy: proxy}
	e.server = &http.Server{
		Addr:    proxy.config.listenAddr(),
		Handler: e,
	}
	return e
}

// start listens on the configured address and serves until the server is
// stopped or the listener fails.
func (e *entry) start() error {
	ln, err := net.Listen("tcp", e.server.Addr)
	if err != nil {
		return err
	}

	e.proxy.logger.GetLogger().Info("proxy listening", "addr", e.server.Addr)
	return e.server.Serve(&wrapListener{Listener: ln})
}

func (e *entry) close() error {
	return e.server.Close()
}

func (e *entry) shutdown(ctx context.Context) error {
	return e.server.Shutdown(ctx)
}

// ServeHTTP routes CONNECT requests to the tunnel handler and forwards
// absolute-form proxy requests to the pipeline under the per-request
// timeout. Any other request (a direct hit on the listener) goes to the
// registered admin handler, or gets a 400 when none is registered.
func (e *entry) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodConnect {
		e.handleConnect(res, req)
		return
	}

	if !req.URL.IsAbs() || req.URL.Host == "" {
		if e.proxy.admin != nil {
			e.proxy.admin.ServeHTTP(res, req)
			return
		}
		res.WriteHeader(http.StatusBadRequest)
		_, _ = res.Write([]byte("this is a proxy server, direct requests are not allowed"))
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), e.proxy.config.requestTimeout())
	defer cancel()
	e.proxy.pipeline.Handle(res, req.WithContext(ctx), req.URL.Scheme, req.URL.Host)
}

// handleConnect processes CONNECT requests. It resolves the HTTPS-capture
// policy for the tunnel's authority, then either tunnels the bytes
// opaquely or terminates TLS and runs the decrypted traffic through the
// pipeline.
func (e *entry) handleConnect(res http.ResponseWriter, req *http.Request) {
	proxy := e.proxy
	authority := req.Host

	if authority == "" {
		res.WriteHeader(http.StatusBadRequest)
		_, _ = res.Write([]byte("CONNECT request missing target authority"))
		return
	}

	// flow's TraceID is the tunnel's single trace id: it survives the
	// CONNECT -> TLS -> nested HTTP request chain via context so opaque
	// tunnel events and (when intercepted) per-request pipeline logs can
	// both be tied back to the same CONNECT.
	flow := types.NewFlow()
	defer flow.Finish()
	ctx := proxycontext.WithFlow(req.Context(), flow)

	logger := proxy.logger.WithFields("in", "proxy.entry.handleConnect", "host", authority, "traceId", flow.TraceID)

	cconn, err := establishConnection(res)
	if err != nil {
		logger.Error("establish connection failed", "error", err)
		return
	}
	defer cconn.Close()

	if !proxy.policy.shouldIntercept(authority) {
		logger.Debug("tunneling without capture", "host", authority)
		tunnelOpaque(logger, proxy.events, cconn, authority, flow.TraceID, proxy.config.upstreamConnectTimeout())
		return
	}

	wcc, ok := cconn.(*conn.PeekConn)
	if !ok {
		logger.Error("hijacked connection is not a PeekConn")
		tunnelOpaque(logger, proxy.events, cconn, authority, flow.TraceID, proxy.config.upstreamConnectTimeout())
		return
	}

	// Bound the peek the same way the spec bounds the CONNECT upgrade
	// sniff: a slow or silent client just looks like a short stream and
	// falls through to the opaque tunnel below, it isn't an error.
	_ = wcc.SetReadDeadline(time.Now().Add(proxy.config.connectPeekTimeout()))
	peek, peekErr := wcc.Peek(4)
	_ = wcc.SetReadDeadline(time.Time{})

	if peekErr != nil {
		logger.Debug("peek failed, falling back to opaque tunnel", "error", peekErr)
		tunnelOpaque(logger, proxy.events, cconn, authority, flow.TraceID, proxy.config.upstreamConnectTimeout())
		return
	}

	switch {
	case helper.IsTLS(peek):
		e.serveIntercepted(ctx, logger, cconn, authority)
	case helper.IsWebSocketUpgrade(peek):
		logger.Debug("plain websocket upgrade inside CONNECT tunnel, falling back to opaque tunnel", "host", authority)
		tunnelOpaque(logger, proxy.events, cconn, authority, flow.TraceID, proxy.config.upstreamConnectTimeout())
	default:
		tunnelOpaque(logger, proxy.events, cconn, authority, flow.TraceID, proxy.config.upstreamConnectTimeout())
	}
}

// establishConnection hijacks the HTTP connection and writes the
// "200 Connection Established" response the CONNECT protocol expects.
// After this returns, the connection is no longer managed by net/http.
func establishConnection(res http.ResponseWriter) (net.Conn, error) {
	hijacked, _, err := res.(http.Hijacker).Hijack()
	if err != nil {
		res.WriteHeader(http.StatusBadGateway)
		return nil, err
	}
	if _, err := hijacked.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		hijacked.Close()
		return nil, err
	}
	return hijacked, nil
}

// tunnelOpaque dials authority and bidirectionally copies bytes between it
// and client, with no inspection or rewriting. dialTimeout bounds only the
// connect itself; the transfer afterward runs until either side closes.
func tunnelOpaque(logger *slog.Logger, sender *events.Sender, client net.Conn, authority, trace string, dialTimeout time.Duration) {
	sender.Emit(events.Event{Kind: events.OnTunnelStart, TraceID: trace, Method: http.MethodConnect, URL: authority})
	defer sender.Emit(events.Event{Kind: events.OnTunnelEnd, TraceID: trace, Method: http.MethodConnect, URL: authority})

	dialer := net.Dialer{Timeout: dialTimeout}
	server, err := dialer.Dial("tcp", authority)
	if err != nil {
		logger.Error("dial upstream failed", "error", err)
		return
	}
	defer server.Close()

	egress.Transfer(logger, client, server)
}

// serveIntercepted terminates TLS on cconn using a leaf certificate minted
// for authority, then serves the decrypted requests through the pipeline
// with their URL's scheme and authority set to https://<host>.
func (e *entry) serveIntercepted(ctx context.Context, logger *slog.Logger, cconn net.Conn, authority string) {
	proxy := e.proxy

	serverConfig, err := proxy.ca.GetServerConfig(authority)
	if err != nil {
		logger.Error("mint leaf certificate failed", "error", err)
		return
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, proxy.config.tlsHandshakeTimeout())
	defer cancel()

	tlsConn := tls.Server(cconn, serverConfig)
	if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
		logger.Debug("TLS handshake failed", "error", err)
		return
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		host := req.Host
		if host == "" {
			host = authority
		}
		if flow, ok := proxycontext.GetFlow(req.Context()); ok {
			logger.Debug("serving intercepted request", "tunnelTraceId", flow.TraceID, "path", req.URL.Path)
		}

		reqCtx, cancel := context.WithTimeout(req.Context(), proxy.config.requestTimeout())
		defer cancel()
		out := req.WithContext(reqCtx)
		patched := *out.URL
		patched.Scheme = "https"
		patched.Host = host
		out.URL = &patched
		proxy.pipeline.Handle(w, out, "https", host)
	})

	if tlsConn.ConnectionState().NegotiatedProtocol == http2.NextProtoTLS {
		proxy.h2Server.ServeConn(tlsConn, &http2.ServeConnOpts{Context: ctx, Handler: handler})
		return
	}

	serveSingleConn(ctx, tlsConn, handler)
}

// serveSingleConn runs net/http's request parsing and keep-alive handling
// over a single already-established connection, returning once it closes.
// Grounded on the channel-fed listener the MITM attacker uses to hand
// already-accepted connections to a shared http.Server, scoped here to one
// connection since each intercepted tunnel owns its handler closure.
func serveSingleConn(ctx context.Context, c net.Conn, handler http.Handler) {
	ln := &singleConnListener{conn: c, done: make(chan struct{})}
	srv := &http.Server{
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
		ConnState: func(_ net.Conn, state http.ConnState) {
			if state == http.StateClosed || state == http.StateHijacked {
				ln.closeOnce.Do(func() { close(ln.done) })
			}
		},
	}
	_ = srv.Serve(ln)
}

// singleConnListener is a net.Listener over one already-accepted
// connection: Accept returns it once, then blocks until the connection is
// reported closed, at which point it returns an error to stop http.Serve.
type singleConnListener struct {
	conn      net.Conn
	served    bool
	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if !l.served {
		l.served = true
		l.mu.Unlock()
		return l.conn, nil
	}
	l.mu.Unlock()

	<-l.done
	return nil, errListenerClosed
}

func (l *singleConnListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

func (l *singleConnListener) Addr() net.Addr { return l.conn.LocalAddr() }

var errListenerClosed = errors.New("proxy: single connection listener closed")
