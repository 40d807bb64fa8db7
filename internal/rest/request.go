package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Request captures an outbound REST call in replayable form. The pipeline
// builds a fresh *http.Request from it for every attempt, so a call parked
// behind a token refresh can be resubmitted verbatim.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// Body is JSON-encoded when RawBody is nil.
	Body any
	// RawBody is sent verbatim with ContentType (multipart uploads).
	RawBody     []byte
	ContentType string
}

// build constructs the concrete HTTP request for one attempt.
func (c *Client) build(ctx context.Context, req *Request, token string) (*http.Request, error) {
	u := c.base + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.RawBody != nil:
		body = bytes.NewReader(req.RawBody)
		contentType = req.ContentType
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}
