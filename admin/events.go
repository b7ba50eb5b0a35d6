package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kestrelnet/captureproxy/events"
)

// eventMessage is the wire shape pushed to a connected events/stream
// client; Kind is rendered as its string form so the admin UI doesn't need
// to know the Kind iota's numeric values.
type eventMessage struct {
	Kind    string `json:"kind"`
	TraceID string `json:"trace_id"`
	Method  string `json:"method"`
	URL     string `json:"url"`
	Err     string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The admin surface is a local developer tool, not a public endpoint;
	// any origin is accepted the same way the REST routes accept any caller.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleEvents upgrades to a websocket and streams every lifecycle event
// emitted by Sender to the caller until either side closes the connection,
// following the same per-connection push shape as the teacher's web addon
// (web/conn.go), but broadcasting raw Sender events instead of full flows.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake response is written, so no event
	// emitted after the client sees the upgrade succeed is missed.
	sub := s.Events.Subscribe()
	defer s.Events.Unsubscribe(sub)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("admin events upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Detect client-initiated close (or any unexpected read) so the
	// goroutine-free write loop below can exit promptly.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			msg := eventMessage{Kind: evt.Kind.String(), TraceID: evt.TraceID, Method: evt.Method, URL: evt.URL}
			if evt.Err != nil {
				msg.Err = evt.Err.Error()
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
