package egress

import (
	"io"
	"log/slog"
	"strings"
)

// Transfer bidirectionally copies bytes between client and server until
// either side closes or errors. It is the primitive behind both the
// opaque CONNECT tunnel and the WebSocket egress client, grounded on the
// same full-duplex copy shape used throughout the proxy's predecessor.
func Transfer(logger *slog.Logger, client, server io.ReadWriteCloser) {
	done := make(chan struct{})
	defer close(done)

	errChan := make(chan error, 2)
	go func() {
		_, err := io.Copy(server, client)
		server.Close()
		select {
		case <-done:
		case errChan <- err:
		}
	}()
	go func() {
		_, err := io.Copy(client, server)
		client.Close()
		select {
		case <-done:
		case errChan <- err:
		}
	}()

	for i := 0; i < 2; i++ {
		if err := <-errChan; err != nil {
			logErr(logger, err)
			return
		}
	}
}

// logErr logs transfer errors, filtering out the benign ones that always
// accompany an ordinary connection teardown.
func logErr(logger *slog.Logger, err error) {
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
		return
	}

	msg := err.Error()
	for _, benign := range []string{
		"connection reset by peer",
		"broken pipe",
		"use of closed network connection",
		"i/o timeout",
		"operation was canceled",
		"context canceled",
		"TLS handshake timeout",
		"server closed idle connection",
		"deadline exceeded",
	} {
		if strings.Contains(msg, benign) {
			return
		}
	}

	logger.Debug("tunnel transfer error", "error", err)
}
