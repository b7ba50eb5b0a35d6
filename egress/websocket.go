package egress

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
)

// DialWebSocketUpgrade dials host (adding the default TLS port if absent
// when useTLS is set), replays the captured HTTP Upgrade request verbatim,
// and returns the raw connection ready for Transfer to copy bytes over.
// This mirrors dialing a TLS connection and writing the dumped upgrade
// request ahead of a bidirectional byte copy, the same shape the opaque
// WebSocket-over-TLS path in the proxy's predecessor used.
func DialWebSocketUpgrade(req *http.Request, useTLS bool, tlsConfig *tls.Config) (net.Conn, error) {
	upgradeBuf, err := httputil.DumpRequest(req, false)
	if err != nil {
		return nil, fmt.Errorf("dumping websocket upgrade request: %w", err)
	}

	host := req.Host
	if !strings.Contains(host, ":") {
		if useTLS {
			host += ":443"
		} else {
			host += ":80"
		}
	}

	var conn net.Conn
	if useTLS {
		conn, err = tls.Dial("tcp", host, tlsConfig)
	} else {
		conn, err = net.Dial("tcp", host)
	}
	if err != nil {
		return nil, fmt.Errorf("dialing websocket upstream %s: %w", host, err)
	}

	if _, err := conn.Write(upgradeBuf); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing websocket upgrade request: %w", err)
	}

	return conn, nil
}

// HandleWebSocket hijacks res, dials the upstream, replays the upgrade
// request, and runs a full-duplex copy until either side closes.
func HandleWebSocket(logger *slog.Logger, res http.ResponseWriter, req *http.Request, useTLS bool, tlsConfig *tls.Config) error {
	hijacker, ok := res.(http.Hijacker)
	if !ok {
		return fmt.Errorf("response writer does not support hijacking")
	}

	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		return fmt.Errorf("hijacking client connection: %w", err)
	}

	serverConn, err := DialWebSocketUpgrade(req, useTLS, tlsConfig)
	if err != nil {
		clientConn.Close()
		return err
	}

	Transfer(logger, clientConn, serverConn)
	return nil
}
