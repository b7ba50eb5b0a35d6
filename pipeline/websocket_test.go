package pipeline

import (
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestIsWebSocketUpgradeRequiresBothHeaders(t *testing.T) {
	c := qt.New(t)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	c.Assert(isWebSocketUpgrade(req), qt.IsTrue)

	req = httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
	req.Header.Set("Upgrade", "websocket")
	c.Assert(isWebSocketUpgrade(req), qt.IsFalse)

	req = httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
	req.Header.Set("Connection", "Upgrade")
	c.Assert(isWebSocketUpgrade(req), qt.IsFalse)

	req = httptest.NewRequest(http.MethodGet, "http://example.com/hello", nil)
	c.Assert(isWebSocketUpgrade(req), qt.IsFalse)
}

func TestIsWebSocketUpgradeToleratesMultiValueConnection(t *testing.T) {
	c := qt.New(t)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
	req.Header.Set("Upgrade", "WebSocket")
	req.Header.Set("Connection", "keep-alive, Upgrade")
	c.Assert(isWebSocketUpgrade(req), qt.IsTrue)
}

func TestContainsToken(t *testing.T) {
	c := qt.New(t)

	c.Assert(containsToken("keep-alive, Upgrade", "upgrade"), qt.IsTrue)
	c.Assert(containsToken("Upgrade", "upgrade"), qt.IsTrue)
	c.Assert(containsToken("keep-alive", "upgrade"), qt.IsFalse)
	c.Assert(containsToken("", "upgrade"), qt.IsFalse)
}
