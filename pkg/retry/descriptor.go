package retry

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// RequestDescriptor describes one outbound call. It is immutable once built:
// every accessor returns a copy, so a descriptor can be shared across
// goroutines and replayed for each attempt.
type RequestDescriptor struct {
	url    string
	method string
	header http.Header
	body   []byte
}

// NewRequestDescriptor creates a JSON POST descriptor for endpoint
func NewRequestDescriptor(endpoint string, body []byte) RequestDescriptor {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	return RequestDescriptor{
		url:    endpoint,
		method: http.MethodPost,
		header: header,
		body:   bytes.Clone(body),
	}
}

// URL returns the target endpoint, including any query parameters
func (d RequestDescriptor) URL() string {
	return d.url
}

// Method returns the HTTP method
func (d RequestDescriptor) Method() string {
	return d.method
}

// Header returns a copy of the header set
func (d RequestDescriptor) Header() http.Header {
	return d.header.Clone()
}

// Body returns a copy of the serialized payload
func (d RequestDescriptor) Body() []byte {
	return bytes.Clone(d.body)
}

// NewHTTPRequest builds a fresh request for a single attempt
func (d RequestDescriptor) NewHTTPRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, d.method, d.url, bytes.NewReader(d.body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	req.Header = d.header.Clone()
	return req, nil
}

// Redacted returns the URL with query parameter values masked, for logging
func (d RequestDescriptor) Redacted() string {
	u, err := url.Parse(d.url)
	if err != nil {
		return "<invalid url>"
	}

	q := u.Query()
	for key := range q {
		q.Set(key, "REDACTED")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
