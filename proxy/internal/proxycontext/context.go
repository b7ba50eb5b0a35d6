package proxycontext

import (
	"context"
	"net/http"

	"github.com/kestrelnet/captureproxy/proxy/internal/types"
)

type proxyContextKey string

// Private context keys.
var (
	proxyReqCtxKey proxyContextKey = "proxyReq"
	flowContextKey proxyContextKey = "flow"
)

// WithFlow adds the current flow to the given context so the trace id and
// flow data survive the CONNECT -> TLS -> nested HTTP request upgrade chain
// without relying on package-level state.
func WithFlow(ctx context.Context, flow *types.Flow) context.Context {
	return context.WithValue(ctx, flowContextKey, flow)
}

// GetFlow retrieves the current flow from the given context.
func GetFlow(ctx context.Context) (*types.Flow, bool) {
	flow, ok := ctx.Value(flowContextKey).(*types.Flow)
	return flow, ok
}

// WithProxyRequest adds the original proxy request to the given context.
func WithProxyRequest(ctx context.Context, req *http.Request) context.Context {
	return context.WithValue(ctx, proxyReqCtxKey, req)
}

// GetProxyRequest retrieves the original proxy request from the given context.
func GetProxyRequest(ctx context.Context) (*http.Request, bool) {
	req, ok := ctx.Value(proxyReqCtxKey).(*http.Request)
	return req, ok
}
