package crawler

import (
	"fmt"
	"mime"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
)

// isHTML reports whether a Content-Type denotes an HTML document.
// A missing Content-Type is sniffed as HTML, as browsers do for pages.
func isHTML(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// mediaType returns the lower-cased media type without parameters.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// lookupEncoding picks the encoding of an HTML body. An explicit charset
// parameter in the Content-Type must be known; otherwise the encoding is
// detected from BOM, <meta charset> and content, falling back to windows-1252
// as the HTML spec prescribes.
func lookupEncoding(body []byte, contentType string) (encoding.Encoding, error) {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if label := params["charset"]; label != "" {
			enc, _ := charset.Lookup(label)
			if enc == nil {
				return nil, fmt.Errorf("unsupported charset %q", label)
			}
			return enc, nil
		}
	}

	enc, _, _ := charset.DetermineEncoding(body, contentType)
	return enc, nil
}

// DecodeBody converts an HTML body to UTF-8 text.
func DecodeBody(body []byte, contentType string) (string, error) {
	enc, err := lookupEncoding(body, contentType)
	if err != nil {
		return "", err
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("failed to decode body: %w", err)
	}
	return string(decoded), nil
}
