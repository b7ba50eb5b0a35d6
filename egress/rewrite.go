package egress

import (
	"net/http"
)

// hopByHopHeaders are stripped before a request is re-originated to the
// upstream: they describe the client<->proxy leg, not the proxy<->origin
// leg.
var hopByHopHeaders = []string{
	"Host",
	"Connection",
	"Proxy-Authorization",
}

// PrepareRequest returns a copy of req (made with Request.Clone, so the URL
// and headers are not shared but the body is) rewritten for egress: the
// hop-by-hop headers are stripped and the request URI is forced to
// absolute form (scheme + authority + path + query) so it can be sent
// directly to the upstream regardless of how it arrived at the proxy.
func PrepareRequest(req *http.Request, scheme, authority string) *http.Request {
	out := req.Clone(req.Context())
	out.Header = req.Header.Clone()

	for _, h := range hopByHopHeaders {
		out.Header.Del(h)
	}

	out.URL.Scheme = scheme
	out.URL.Host = authority
	out.Host = authority
	out.RequestURI = ""

	return out
}
