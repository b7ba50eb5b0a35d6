package proxy

import (
	"go.uber.org/atomic"

	"github.com/kestrelnet/captureproxy/internal/helper"
)

// capturePolicy decides, for a given CONNECT authority, whether the proxy
// should terminate TLS and run the request through the pipeline or simply
// tunnel the bytes opaquely.
//
// Resolution order:
//  1. HTTPSCaptureExclude match (exact host or suffix-wildcard) always wins: tunnel.
//  2. A non-empty HTTPSCaptureInclude list with no match: tunnel.
//  3. Otherwise fall back to the global HTTPSCapture toggle, which the
//     administrative surface may flip at runtime.
type capturePolicy struct {
	enabled atomic.Bool
	include []string
	exclude []string
}

func newCapturePolicy(cfg Config) *capturePolicy {
	p := &capturePolicy{
		include: cfg.HTTPSCaptureInclude,
		exclude: cfg.HTTPSCaptureExclude,
	}
	p.enabled.Store(cfg.HTTPSCapture)
	return p
}

func (p *capturePolicy) shouldIntercept(authority string) bool {
	if helper.MatchHost(authority, p.exclude) {
		return false
	}
	if len(p.include) > 0 && !helper.MatchHost(authority, p.include) {
		return false
	}
	return p.enabled.Load()
}

// CaptureEnabled reports the current value of the global HTTPS-capture
// toggle, ignoring the per-domain include/exclude lists.
func (p *Proxy) CaptureEnabled() bool {
	return p.policy.enabled.Load()
}

// SetCaptureEnabled flips the global HTTPS-capture toggle. Takes effect on
// the next CONNECT handled; in-flight tunnels are unaffected.
func (p *Proxy) SetCaptureEnabled(enabled bool) {
	p.policy.enabled.Store(enabled)
}
