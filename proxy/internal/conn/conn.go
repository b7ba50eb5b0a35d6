// Package conn provides the connection wrapper the CONNECT handler uses to
// classify a tunnel's first bytes before deciding whether to terminate TLS
// on it.
package conn

import (
	"bufio"
	"net"
)

// PeekConn wraps a net.Conn with a buffered reader, letting a caller peek at
// upcoming bytes without consuming them from subsequent Reads. Used so
// handleConnect can sniff a CONNECT tunnel's first few bytes (TLS client
// hello vs. plain-HTTP Upgrade vs. neither) and still hand the full stream,
// untouched, to whichever path it picks.
type PeekConn struct {
	net.Conn
	r *bufio.Reader
}

// NewPeekConn wraps c.
func NewPeekConn(c net.Conn) *PeekConn {
	return &PeekConn{Conn: c, r: bufio.NewReader(c)}
}

// Peek returns the next n bytes without advancing the reader.
func (c *PeekConn) Peek(n int) ([]byte, error) {
	return c.r.Peek(n)
}

// Read reads data from the connection through the buffered reader, so bytes
// returned by a prior Peek are delivered by Read rather than skipped.
func (c *PeekConn) Read(data []byte) (int, error) {
	return c.r.Read(data)
}
