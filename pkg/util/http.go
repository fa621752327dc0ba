package util

import (
	"net"
	"net/http"
	"time"
)

// HTTPClient wraps http.Client with pooled transport defaults and headers
// applied to every request.
type HTTPClient struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
	}
	return &HTTPClient{
		HTTP:      &http.Client{Timeout: timeout, Transport: transport},
		UserAgent: "smartswap/1.0",
	}
}

// Do sends req, filling in the user agent and default headers the caller
// did not set. The request's context governs cancellation.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}
