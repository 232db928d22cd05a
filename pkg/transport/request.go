package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody limits how much of a failed response is kept for logging.
const maxErrorBody = 512

// Credentials carries the headers every request sends.
type Credentials struct {
	MobileKey      string
	WrapperName    string
	WrapperVersion string
}

// Apply sets authorization and identification headers. REST endpoints use
// the "api_key" scheme; the event stream takes the raw key.
func (c Credentials) Apply(h http.Header, raw bool) {
	if raw {
		h.Set("Authorization", c.MobileKey)
	} else {
		h.Set("Authorization", "api_key "+c.MobileKey)
	}
	h.Set("User-Agent", UserAgent)
	if c.WrapperName != "" {
		w := c.WrapperName
		if c.WrapperVersion != "" {
			w += "/" + c.WrapperVersion
		}
		h.Set("X-LaunchDarkly-Wrapper", w)
	}
}

// Do executes req and returns the response body for 2xx responses.
// Failures are classified: ErrTransport for network errors and
// *StatusError for any other status. The response is returned for header
// inspection even on a status error.
func Do(ctx context.Context, client *http.Client, req *http.Request) ([]byte, *http.Response, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, nil, errors.Join(ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, resp, &StatusError{
			Code: resp.StatusCode,
			Body: strings.ReplaceAll(strings.TrimSpace(string(body)), "\n", " "),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, errors.Join(ErrTransport, fmt.Errorf("read body: %w", err))
	}
	return body, resp, nil
}

// ServerTime parses the Date header. ok is false when the header is missing
// or malformed.
func ServerTime(resp *http.Response) (time.Time, bool) {
	if resp == nil {
		return time.Time{}, false
	}
	v := resp.Header.Get("Date")
	if v == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// JoinURL appends path to base, avoiding doubled or missing slashes.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
