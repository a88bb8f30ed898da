package platform

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// NetHTTPClient is a default HTTPClient implementation backed by net/http.
// It exists for tests and for hosts that have no reason to provide their
// own transport (e.g. a headless Go embedding of this module); mobile hosts
// are expected to supply a platform-native implementation that routes
// through the OS networking stack instead.
type NetHTTPClient struct {
	Client *http.Client
}

// NewNetHTTPClient returns a NetHTTPClient with a sane default transport.
func NewNetHTTPClient() *NetHTTPClient {
	return &NetHTTPClient{Client: &http.Client{}}
}

// Do issues req synchronously on a new goroutine and reports the result
// through onDone, satisfying HTTPClient's non-blocking contract.
func (c *NetHTTPClient) Do(ctx context.Context, req HTTPRequest, onDone func(HTTPResponse)) {
	go func() {
		onDone(c.doSync(ctx, req))
	}()
}

func (c *NetHTTPClient) doSync(ctx context.Context, req HTTPRequest) HTTPResponse {
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return HTTPResponse{ErrorMessage: err.Error()}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return HTTPResponse{ErrorMessage: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return HTTPResponse{ErrorMessage: err.Error()}
	}
	return HTTPResponse{StatusCode: resp.StatusCode, Body: string(body)}
}
