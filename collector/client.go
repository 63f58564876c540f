package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// Identifies the project to the data providers, as agreed for
	// academic use of the DGT NAP.
	defaultUserAgent = "DataDetective/1.0 (Proyecto académico universitario; Valencia; captura DATEX II para análisis de tráfico)"

	acceptXML  = "application/xml, text/xml, */*;q=0.8"
	acceptJSON = "application/json"
)

// StatusError reports a non-200 response from an upstream endpoint.
// The status code appears in the message so rate limits and gateway
// errors are classified as retryable by IsNetworkError.
type StatusError struct {
	URL  string
	Code int
	Hint string
}

func (e *StatusError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("HTTP %d from %s: %s", e.Code, e.URL, e.Hint)
	}
	return fmt.Sprintf("HTTP %d from %s", e.Code, e.URL)
}

func statusHint(code int) string {
	switch {
	case code == http.StatusForbidden:
		return "access denied, the NAP may require special access conditions"
	case code == http.StatusNotFound:
		return "endpoint not found, the URL may have changed"
	case code == http.StatusTooManyRequests:
		return "rate limited, reduce the capture frequency"
	case code >= 500:
		return "server error, retry later"
	}
	return ""
}

// Client downloads the upstream feeds. A single Client is shared by all
// sources so they reuse connections and carry the same User-Agent.
type Client struct {
	http      *http.Client
	userAgent string
}

// New returns a Client with the given per-request timeout. The DGT
// measured-data XML can exceed 15 MB, so timeouts under a minute risk
// truncating slow transfers.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}
}

// FetchXML downloads one XML document without interpreting it. The
// endpoint investigation uses it to inspect feeds it does not parse.
func (c *Client) FetchXML(ctx context.Context, url string) ([]byte, error) {
	return c.get(ctx, url, acceptXML)
}

func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode, Hint: statusHint(resp.StatusCode)}
	}
	return io.ReadAll(resp.Body)
}
