package pipeline

import (
	"fmt"
	"net/http"

	"github.com/kestrelnet/captureproxy/egress"
)

// egress sends st.req (rewritten for the resolved scheme/authority) through
// the pipeline's HTTP client and returns the raw upstream response.
func (p *Pipeline) egress(st *execState) (*http.Response, error) {
	outReq := egress.PrepareRequest(st.req, st.scheme, st.authority)

	resp, err := p.HTTP.Do(outReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", st.authority, err)
	}
	return resp, nil
}
