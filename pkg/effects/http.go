package effects

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Fetch performs a GET request and returns the status and body. data: URLs
// are answered locally with status 200.
func (h *OSHost) Fetch(ctx context.Context, rawURL string) (int, string, error) {
	if strings.HasPrefix(rawURL, "data:") {
		body, err := decodeDataURL(rawURL)
		if err != nil {
			return 0, "", err
		}
		return http.StatusOK, body, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, "", errors.Wrap(err, "fetch: invalid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return 0, "", errors.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, "", errors.Wrap(err, "fetch")
	}
	h.Log.Debugf("fetch %s", u.Redacted())
	resp, err := h.Client.Do(req)
	if err != nil {
		return 0, "", errors.Wrap(err, "fetch")
	}
	defer resp.Body.Close()

	limit := h.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return 0, "", errors.Wrap(err, "fetch: reading body")
	}
	return resp.StatusCode, string(body), nil
}

// decodeDataURL handles data:text/plain,Hello%20World style URLs.
func decodeDataURL(dataURL string) (string, error) {
	rest := strings.TrimPrefix(dataURL, "data:")
	comma := strings.Index(rest, ",")
	if comma < 0 {
		return "", errors.New("fetch: invalid data URL")
	}
	body := rest[comma+1:]
	decoded, err := url.PathUnescape(body)
	if err != nil {
		return body, nil
	}
	return decoded, nil
}
