// Package types holds the small data types shared between the CONNECT
// handler and the proxycontext package, independent of the proxy package
// itself to avoid an import cycle.
package types

import (
	uuid "github.com/satori/go.uuid"

	"github.com/kestrelnet/captureproxy/internal/traceid"
)

// Flow identifies one CONNECT tunnel's lifetime: the TraceID it mints is
// carried in context from the moment the tunnel is established through TLS
// termination and every decrypted request served over it, so tunnel-level
// events and per-request pipeline logs can be correlated.
type Flow struct {
	ID      uuid.UUID
	TraceID string

	done chan struct{}
}

// NewFlow creates a new Flow instance.
func NewFlow() *Flow {
	return &Flow{
		ID:      uuid.NewV4(),
		TraceID: traceid.New(),
		done:    make(chan struct{}),
	}
}

// Done returns a channel that is closed when the flow is finished.
func (f *Flow) Done() <-chan struct{} {
	return f.done
}

// Finish marks the flow as complete.
func (f *Flow) Finish() {
	close(f.done)
}
