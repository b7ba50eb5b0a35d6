package admin_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	qt "github.com/frankban/quicktest"

	"github.com/kestrelnet/captureproxy/admin"
	"github.com/kestrelnet/captureproxy/cert"
	"github.com/kestrelnet/captureproxy/events"
	"github.com/kestrelnet/captureproxy/rules"
)

func TestHandleEventsStreamsEmittedEvents(t *testing.T) {
	c := qt.New(t)

	ca, err := cert.NewSelfSignCAMemory()
	c.Assert(err, qt.IsNil)

	sender := events.NewSender(10)
	srv := admin.New("/admin", ca, rules.NewMemoryStore(nil), &fakeToggle{}, sender)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/admin/events/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	c.Assert(err, qt.IsNil)
	defer conn.Close()

	sender.Emit(events.Event{Kind: events.OnRequestStart, TraceID: "t1", Method: "GET", URL: "http://example.com"})

	c.Assert(conn.SetReadDeadline(time.Now().Add(2*time.Second)), qt.IsNil)
	_, msg, err := conn.ReadMessage()
	c.Assert(err, qt.IsNil)
	c.Assert(string(msg), qt.Contains, "request_start")
	c.Assert(string(msg), qt.Contains, "t1")
}
