package fetch

import (
	"compress/flate"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// acceptEncodingHeader lists the content codings decodeBody understands.
// Setting it explicitly disables the transport's transparent gzip handling.
const acceptEncodingHeader = "gzip, deflate, br"

// decodeBody wraps body with a decompressor for the given Content-Encoding.
// Unknown codings are passed through unchanged.
func decodeBody(body io.Reader, contentEncoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(body)
		if errors.Is(err, io.EOF) {
			// Empty body, as sent with redirects and 204s.
			return strings.NewReader(""), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read gzip body: %w", err)
		}
		return reader, nil
	case "deflate":
		return flate.NewReader(body), nil
	case "br":
		return brotli.NewReader(body), nil
	default:
		return body, nil
	}
}
