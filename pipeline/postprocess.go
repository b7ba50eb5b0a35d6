package pipeline

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kestrelnet/captureproxy/rules"
)

// applyPostProcessing applies every queued ModifyResponse/HtmlScriptInjector
// mutation to st.response, in the order they were recorded during handler
// execution, before the response is written back to the client.
func applyPostProcessing(st *execState) {
	if len(st.postProcessing) == 0 {
		return
	}

	body, err := readResponseBody(st.response)
	if err != nil {
		return
	}

	if needsPlaintextBody(st.postProcessing) {
		if decoded, err := decodeBody(st.response, body); err == nil {
			body = decoded
		}
	}

	for _, h := range st.postProcessing {
		switch h.Kind {
		case rules.HandlerModifyResponse:
			body = applyModifyResponse(st.response, h.ModifyResponse, body)
		case rules.HandlerHtmlScriptInjector:
			body = applyHtmlScriptInjector(st.response, h.HtmlScriptInjector, body)
		}
	}

	st.response.Body = io.NopCloser(bytes.NewReader(body))
	st.response.ContentLength = int64(len(body))
	st.response.Header.Set("Content-Length", strconv.Itoa(len(body)))
}

// needsPlaintextBody reports whether any queued handler parses the body as
// text, and so requires it decoded out of gzip/br/zstd/deflate first.
func needsPlaintextBody(handlers []rules.Handler) bool {
	for _, h := range handlers {
		if h.Kind == rules.HandlerHtmlScriptInjector {
			return true
		}
	}
	return false
}

func readResponseBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil {
		return nil, nil
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func applyModifyResponse(resp *http.Response, m *rules.ModifyResponsePayload, body []byte) []byte {
	for k, v := range m.Headers {
		if k == "" {
			continue
		}
		resp.Header.Set(k, v)
	}
	if m.Status != 0 {
		resp.StatusCode = m.Status
	}
	if m.Body != nil {
		return m.Body
	}
	return body
}

func applyHtmlScriptInjector(resp *http.Response, inj *rules.HtmlScriptInjectorPayload, body []byte) []byte {
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") {
		return body
	}

	tag := "<script>" + inj.Script + "</script>"

	marker := "</head>"
	if inj.Position == rules.PositionBody {
		marker = "</body>"
	}

	html := string(body)
	idx := strings.LastIndex(strings.ToLower(html), marker)
	if idx == -1 {
		return body
	}
	return []byte(html[:idx] + tag + html[idx:])
}
