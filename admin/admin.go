// Package admin implements the proxy's minimal administrative surface: a
// small REST API for fetching the Root CA certificate, reading/replacing
// the active capture rules, pausing/resuming HTTPS capture globally, and a
// websocket endpoint for streaming lifecycle events live.
//
// This is a convenience implementation, not part of the data plane: the
// core only ever depends on rules.Store.Snapshot. A production deployment
// is expected to run its own rule-editing UI against a shared rules.Store
// backend and swap this package out entirely.
package admin

import (
	"encoding/json"
	"encoding/pem"
	"net/http"
	"strings"

	"github.com/kestrelnet/captureproxy/cert"
	"github.com/kestrelnet/captureproxy/events"
	"github.com/kestrelnet/captureproxy/rules"
)

// CaptureToggle is the narrow interface the capture/status and
// capture/toggle endpoints need from the running proxy.
type CaptureToggle interface {
	CaptureEnabled() bool
	SetCaptureEnabled(enabled bool)
}

// Server serves the administrative REST surface described by SPEC_FULL's
// EXTERNAL INTERFACES section, mounted under Prefix (e.g. "/admin").
type Server struct {
	CA      cert.CA
	Rules   rules.Store
	Capture CaptureToggle
	Events  *events.Sender

	mux *http.ServeMux
}

// New builds a Server and registers its routes under prefix. The
// events/stream endpoint calls sender.Subscribe on every request, so with a
// nil sender that endpoint panics: Subscribe dereferences its receiver.
func New(prefix string, ca cert.CA, store rules.Store, toggle CaptureToggle, sender *events.Sender) *Server {
	prefix = strings.TrimSuffix(prefix, "/")

	s := &Server{CA: ca, Rules: store, Capture: toggle, Events: sender, mux: http.NewServeMux()}
	s.mux.HandleFunc(prefix+"/certificate", s.handleCertificate)
	s.mux.HandleFunc(prefix+"/rules", s.handleRules)
	s.mux.HandleFunc(prefix+"/capture/status", s.handleCaptureStatus)
	s.mux.HandleFunc(prefix+"/capture/toggle", s.handleCaptureToggle)
	s.mux.HandleFunc(prefix+"/events/stream", s.handleEvents)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleCertificate serves the Root CA public certificate. ?type=crt
// returns the raw DER bytes; anything else (including unset) returns PEM.
func (s *Server) handleCertificate(w http.ResponseWriter, r *http.Request) {
	root := s.CA.GetRootCA()

	if r.URL.Query().Get("type") == "crt" {
		w.Header().Set("Content-Type", "application/x-x509-ca-cert")
		_, _ = w.Write(root.Raw)
		return
	}

	w.Header().Set("Content-Type", "application/x-pem-file")
	_ = pem.Encode(w, &pem.Block{Type: "CERTIFICATE", Bytes: root.Raw})
}

// handleRules serves the current rule snapshot (GET) or replaces it
// wholesale (POST), when Rules also implements rules.Writer.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snapshot, err := s.Rules.Snapshot(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshot)

	case http.MethodPost:
		writer, ok := s.Rules.(rules.Writer)
		if !ok {
			http.Error(w, "rule store does not support writes", http.StatusNotImplemented)
			return
		}
		var incoming []rules.CaptureRule
		if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
			http.Error(w, "invalid rule document: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := writer.Replace(incoming); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCaptureStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.writeCaptureState(w)
}

func (s *Server) handleCaptureToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.Capture.SetCaptureEnabled(!s.Capture.CaptureEnabled())
	s.writeCaptureState(w)
}

func (s *Server) writeCaptureState(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"enabled": s.Capture.CaptureEnabled()})
}
