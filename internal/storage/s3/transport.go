package s3

import (
	"net/http"
)

// Transport issues a signed HTTP request and returns the response or an I/O
// error. The store treats it as a black box; the default implementation
// wraps *http.Client, and tests substitute scripted transports.
type Transport interface {
	RoundTrip(req *http.Request) (*http.Response, error)
}

// httpTransport is the default Transport backed by net/http. Per-attempt
// timeouts arrive via the request context, so the client itself carries no
// global timeout.
type httpTransport struct {
	client *http.Client
}

func newHTTPTransport() *httpTransport {
	return &httpTransport{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        64,
				MaxIdleConnsPerHost: 64,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

func (t *httpTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.client.Do(req)
}
