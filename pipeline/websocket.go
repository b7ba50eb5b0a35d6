package pipeline

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/kestrelnet/captureproxy/egress"
)

// isWebSocketUpgrade reports whether req is a WebSocket handshake request:
// an HTTP Upgrade request naming the "websocket" protocol.
func isWebSocketUpgrade(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Upgrade"), "websocket") &&
		containsToken(req.Header.Get("Connection"), "upgrade")
}

func containsToken(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// egressWebSocket hijacks w and relays a WebSocket handshake (and the raw
// frames that follow) to st.authority, over TLS when st.scheme is "https".
// Used in place of the normal egress+response-write path: once the
// handshake is replayed, the connection is a raw byte tunnel until either
// side closes. Unlike PrepareRequest, the Connection/Upgrade headers are
// preserved verbatim since they must reach the origin unchanged.
func (p *Pipeline) egressWebSocket(logger *slog.Logger, w http.ResponseWriter, st *execState) error {
	out := st.req.Clone(st.req.Context())
	out.Host = st.authority
	return egress.HandleWebSocket(logger, w, out, st.scheme == "https", p.WSTLSConfig)
}
