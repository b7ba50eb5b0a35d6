package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/kestrelnet/captureproxy/rules"
)

// runHandlers walks scheduled with st.req as the current request value.
// Block and LocalFile terminate the chain by populating st.response.
// ModifyRequest and ProxyForward mutate st.req in place and continue.
// ModifyResponse and HtmlScriptInjector are queued onto
// st.postProcessing. Delay suspends the walk without terminating it. A
// handler error aborts the remaining chain and is returned to the caller.
func (p *Pipeline) runHandlers(ctx context.Context, scheduled []rules.Handler, st *execState) error {
	for _, h := range scheduled {
		switch h.Kind {
		case rules.HandlerBlock:
			st.response = synthesizeBlock(h.Block)
			return nil

		case rules.HandlerModifyRequest:
			applyModifyRequest(st.req, h.ModifyRequest)

		case rules.HandlerLocalFile:
			resp, err := serveLocalFile(h.LocalFile)
			if err != nil {
				return fmt.Errorf("local file handler: %w", err)
			}
			st.response = resp
			return nil

		case rules.HandlerProxyForward:
			if err := applyProxyForward(st, h.ProxyForward); err != nil {
				return fmt.Errorf("proxy forward handler: %w", err)
			}

		case rules.HandlerModifyResponse, rules.HandlerHtmlScriptInjector:
			st.postProcessing = append(st.postProcessing, h)

		case rules.HandlerDelay:
			if err := applyDelay(ctx, h.Delay); err != nil {
				return fmt.Errorf("delay handler: %w", err)
			}

		default:
			slog.Debug("unknown handler kind, skipping", "kind", h.Kind.String())
		}

		if st.response != nil {
			return nil
		}
	}
	return nil
}

func synthesizeBlock(b *rules.BlockPayload) *http.Response {
	status := b.Status
	if status == 0 {
		status = http.StatusForbidden
	}
	body := b.Reason
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func applyModifyRequest(req *http.Request, m *rules.ModifyRequestPayload) {
	for k, v := range m.Headers {
		if !httpguts.ValidHeaderFieldName(k) {
			slog.Debug("modify_request: skipping invalid header name", "name", k)
			continue
		}
		if !httpguts.ValidHeaderFieldValue(v) {
			slog.Debug("modify_request: skipping invalid header value", "name", k)
			continue
		}
		req.Header.Set(k, v)
	}

	if m.Method != "" {
		if !validMethod(m.Method) {
			slog.Debug("modify_request: skipping invalid method", "method", m.Method)
		} else {
			req.Method = m.Method
		}
	}

	if m.URL != "" {
		u, err := url.Parse(m.URL)
		if err != nil {
			slog.Debug("modify_request: skipping unparseable url", "url", m.URL, "error", err)
		} else {
			req.URL = u
		}
	}

	if m.Body != nil {
		req.Body = io.NopCloser(bytes.NewReader(m.Body))
		req.ContentLength = int64(len(m.Body))
	}
}

// validMethod reports whether m is a syntactically valid HTTP method token
// (RFC 7230 section 3.1.1): one or more token characters, no separators.
func validMethod(m string) bool {
	if m == "" {
		return false
	}
	for _, r := range m {
		if !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return true
}

func applyProxyForward(st *execState, f *rules.ProxyForwardPayload) error {
	target, err := url.Parse(f.Target)
	if err != nil {
		return fmt.Errorf("parsing forward target %q: %w", f.Target, err)
	}
	st.scheme = target.Scheme
	st.authority = target.Host
	return nil
}

func applyDelay(ctx context.Context, d *rules.DelayPayload) error {
	timer := time.NewTimer(time.Duration(d.DurationMillis) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func serveLocalFile(l *rules.LocalFilePayload) (*http.Response, error) {
	data, err := readFile(l.Path)
	if err != nil {
		return nil, err
	}

	status := l.Status
	if status == 0 {
		status = http.StatusOK
	}

	contentType := l.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(l.Path))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       io.NopCloser(bytes.NewReader(data)),
	}, nil
}
