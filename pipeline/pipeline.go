// Package pipeline implements the request-processing state machine: load a
// rule snapshot, match capture rules, schedule and run their handler
// chains, re-originate the request to the upstream, apply queued
// post-processing mutations, and emit lifecycle events throughout.
package pipeline

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/kestrelnet/captureproxy/events"
	"github.com/kestrelnet/captureproxy/internal/traceid"
	"github.com/kestrelnet/captureproxy/rules"
)

const defaultMaxBufferedBody = 5 * 1024 * 1024 // 5 MiB

// HTTPClient is the subset of *http.Client the pipeline needs to send the
// egress request; satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Pipeline runs the request-processing state machine described in the
// component design: match, schedule, execute, egress, post-process, emit.
type Pipeline struct {
	Rules  rules.Store
	Events *events.Sender
	HTTP   HTTPClient

	// WSTLSConfig is the trust configuration used to dial WebSocket
	// upgrades over TLS; it mirrors HTTP's transport trust store since
	// WebSocket egress dials outside of net/http's RoundTripper.
	WSTLSConfig *tls.Config

	MaxBufferedBody int64
}

// New constructs a Pipeline with MaxBufferedBody set to 5 MiB. Handle does
// not consult MaxBufferedBody.
func New(store rules.Store, sender *events.Sender, client HTTPClient, wsTLSConfig *tls.Config) *Pipeline {
	return &Pipeline{
		Rules:           store,
		Events:          sender,
		HTTP:            client,
		WSTLSConfig:     wsTLSConfig,
		MaxBufferedBody: defaultMaxBufferedBody,
	}
}

// Handle runs req through the pipeline and writes the result to w. scheme
// and authority are the resolved (possibly MITM-patched) request origin,
// used both for capture matching and for building the egress request.
func (p *Pipeline) Handle(w http.ResponseWriter, req *http.Request, scheme, authority string) {
	ctx := req.Context()
	trace := traceid.New()
	logger := slog.With("traceId", trace, "method", req.Method, "url", req.URL.String())

	snapshot, err := p.Rules.Snapshot(ctx)
	if err != nil {
		logger.Warn("rule snapshot load failed, proceeding with empty snapshot", "error", err)
		snapshot = nil
	}

	matched := rules.MatchAll(snapshot, req.Method, authority, req.URL.String())
	scheduled := rules.ScheduleHandlers(matched)

	p.emit(events.OnRequestStart, trace, req)

	st := &execState{
		req:       req,
		scheme:    scheme,
		authority: authority,
	}

	if err := p.runHandlers(ctx, scheduled, st); err != nil {
		p.emit(events.OnError, trace, req)
		p.writeError(w, errorStatus(err), err)
		p.emit(events.OnRequestEnd, trace, req)
		return
	}

	if st.response == nil && isWebSocketUpgrade(req) {
		if err := p.egressWebSocket(logger, w, st); err != nil {
			logger.Error("websocket egress failed", "error", err)
			p.emit(events.OnError, trace, req)
		}
		p.emit(events.OnRequestEnd, trace, req)
		return
	}

	if st.response == nil {
		p.emit(events.OnProxyStart, trace, req)
		resp, err := p.egress(st)
		p.emit(events.OnProxyEnd, trace, req)
		if err != nil {
			logger.Error("egress request failed", "error", err)
			p.emit(events.OnError, trace, req)
			p.writeError(w, errorStatus(err), err)
			p.emit(events.OnRequestEnd, trace, req)
			return
		}
		st.response = resp
	}

	applyPostProcessing(st)
	writeResponse(w, st.response)

	p.emit(events.OnRequestEnd, trace, req)
}

// errorStatus maps a handler-chain or egress failure to a response status:
// any timeout (request wall-clock, dial, or TLS handshake, all expressed as
// a deadline-exceeded error) is a 504, everything else is a 500 with the
// cause chain in the body.
func errorStatus(err error) int {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (p *Pipeline) emit(kind events.Kind, trace string, req *http.Request) {
	if p.Events == nil {
		return
	}
	p.Events.Emit(events.Event{
		Kind:    kind,
		TraceID: trace,
		Method:  req.Method,
		URL:     req.URL.String(),
	})
}

// execState is the mutable request state threaded through handler
// execution: the in-flight request, any synthesized terminal response, and
// post-processing mutations queued for after egress.
type execState struct {
	req       *http.Request
	scheme    string
	authority string

	response       *http.Response
	responseBody   []byte
	postProcessing []rules.Handler
}
