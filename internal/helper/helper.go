// Package helper collects small, stateless utilities shared across the proxy
// packages: buffered-read-with-rewind, canonical addressing, TLS record
// sniffing, and host glob matching.
package helper

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/url"
	"os"

	"github.com/tidwall/match"
)

// ReaderToBuffer tries to read r into a buffer up to limit bytes.
// If the limit is not reached, the full content is returned as a buffer.
// Otherwise buffer is nil, and a new Reader is returned with the state
// before reading (so the caller can re-read from the start, now streaming).
func ReaderToBuffer(r io.Reader, limit int64) ([]byte, io.Reader, error) {
	buf := bytes.NewBuffer(make([]byte, 0))
	lr := io.LimitReader(r, limit)

	_, err := io.Copy(buf, lr)
	if err != nil {
		return nil, nil, err
	}

	// Reached the limit: switch to streaming from here on.
	if int64(buf.Len()) == limit {
		return nil, io.MultiReader(bytes.NewBuffer(buf.Bytes()), r), nil
	}

	return buf.Bytes(), nil, nil
}

// NewStructFromFile reads filename as JSON into v.
func NewStructFromFile(filename string, v any) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

var portMap = map[string]string{
	"http":   "80",
	"https":  "443",
	"ws":     "80",
	"wss":    "443",
	"socks5": "1080",
}

// CanonicalAddr returns u.Host but always with a ":port" suffix.
func CanonicalAddr(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = portMap[u.Scheme]
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// IsTLS reports whether buf begins with a TLS record header
// (handshake content type 0x16, major version 0x03).
// ref: https://github.com/mitmproxy/mitmproxy/blob/main/mitmproxy/net/tls.py is_tls_record_magic
func IsTLS(buf []byte) bool {
	if len(buf) < 3 {
		return false
	}
	return buf[0] == 0x16 && buf[1] == 0x03 && buf[2] <= 0x03
}

// IsWebSocketUpgrade reports whether buf begins with a plain-HTTP GET line,
// the signature of a WebSocket upgrade request arriving un-encrypted inside
// a CONNECT tunnel.
func IsWebSocketUpgrade(buf []byte) bool {
	return len(buf) >= 4 && buf[0] == 'G' && buf[1] == 'E' && buf[2] == 'T' && buf[3] == ' '
}

// MatchHost reports whether address (host[:port]) matches any entry in
// hosts. Entries without a port match any port; entries with a glob in the
// host part (e.g. "*.example.com") are matched with a shell-style glob.
func MatchHost(address string, hosts []string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		host = address
		port = ""
	}
	for _, h := range hosts {
		hostPattern, hostPort, err := net.SplitHostPort(h)
		if err != nil {
			hostPattern = h
			hostPort = ""
		}
		if hostPort != "" && hostPort != port {
			continue
		}
		if match.Match(host, hostPattern) {
			return true
		}
	}
	return false
}
