package pipeline

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// decodeBody returns body decoded according to resp's Content-Encoding
// header, stripping the header on success so the body written back to the
// client is understood to be identity-encoded plaintext. An empty or
// "identity" encoding passes body through unchanged.
func decodeBody(resp *http.Response, body []byte) ([]byte, error) {
	encoding := resp.Header.Get("Content-Encoding")
	if encoding == "" || encoding == "identity" {
		return body, nil
	}

	decoded, err := decodeBytes(encoding, body)
	if err != nil {
		return nil, fmt.Errorf("decoding %s response body: %w", encoding, err)
	}
	resp.Header.Del("Content-Encoding")
	return decoded, nil
}

func decodeBytes(encoding string, body []byte) ([]byte, error) {
	switch encoding {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	case "zstd":
		r, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "deflate":
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return io.ReadAll(r)
	default:
		return body, nil
	}
}
