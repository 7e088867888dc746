package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// BlobScheme is the scheme of sources backed by locally uploaded bytes.
const BlobScheme = "blob"

// ValidateSource checks an image source against the allowed schemes:
// http(s) URLs with a host, data:image/* URLs, and blob: handles.
// The trimmed source is returned on success.
func ValidateSource(raw string) (string, error) {
	src := strings.TrimSpace(raw)
	if src == "" {
		return "", fmt.Errorf("%w: empty source", ErrInvalidSource)
	}
	lower := strings.ToLower(src)
	switch {
	case strings.HasPrefix(lower, "data:"):
		if !strings.HasPrefix(lower, "data:image/") {
			return "", fmt.Errorf("%w: data url must carry an image media type", ErrInvalidSource)
		}
		if !strings.Contains(src, ",") {
			return "", fmt.Errorf("%w: data url has no payload", ErrInvalidSource)
		}
		return src, nil
	case strings.HasPrefix(lower, BlobScheme+":"):
		if len(src) == len(BlobScheme)+1 {
			return "", fmt.Errorf("%w: blob handle is empty", ErrInvalidSource)
		}
		return src, nil
	}

	u, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: scheme %q is not allowed", ErrInvalidSource, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: url has no host", ErrInvalidSource)
	}
	return src, nil
}
