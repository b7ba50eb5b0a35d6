package proxycontext_test

import (
	"context"
	"net/http"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/kestrelnet/captureproxy/proxy/internal/proxycontext"
	"github.com/kestrelnet/captureproxy/proxy/internal/types"
)

func TestWithProxyRequestAndGetProxyRequest(t *testing.T) {
	c := qt.New(t)

	ctx := context.Background()
	req, _ := http.NewRequest("GET", "http://example.com", nil)

	newCtx := proxycontext.WithProxyRequest(ctx, req)
	retrieved, ok := proxycontext.GetProxyRequest(newCtx)

	c.Assert(ok, qt.IsTrue)
	c.Assert(retrieved, qt.Equals, req)
}

func TestGetProxyRequestReturnsFalseWhenNotPresent(t *testing.T) {
	c := qt.New(t)

	ctx := context.Background()
	_, ok := proxycontext.GetProxyRequest(ctx)

	c.Assert(ok, qt.IsFalse)
}

func TestWithFlowAndGetFlow(t *testing.T) {
	c := qt.New(t)

	ctx := context.Background()
	flow := types.NewFlow()

	newCtx := proxycontext.WithFlow(ctx, flow)
	retrieved, ok := proxycontext.GetFlow(newCtx)

	c.Assert(ok, qt.IsTrue)
	c.Assert(retrieved, qt.Equals, flow)
	c.Assert(retrieved.TraceID, qt.HasLen, 21)
}

func TestGetFlowReturnsFalseWhenNotPresent(t *testing.T) {
	c := qt.New(t)

	ctx := context.Background()
	_, ok := proxycontext.GetFlow(ctx)

	c.Assert(ok, qt.IsFalse)
}
