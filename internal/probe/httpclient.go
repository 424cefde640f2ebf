package probe

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

type HTTPClientConfig struct {
	Timeout         time.Duration
	UserAgent       string
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// NewHTTPClient returns the client shared by every lookup endpoint.
// Per-attempt deadlines come from the request context; Timeout is a hard safety net.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second, // TCP connect timeout
			KeepAlive: 30 * time.Second,
		}).DialContext,

		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	// HTTP/1.1 remains available if h2 cannot be negotiated
	_ = http2.ConfigureTransport(transport)

	return &http.Client{
		Transport: roundTripperWithUA{
			rt:        transport,
			userAgent: cfg.UserAgent,
		},
		Timeout: cfg.Timeout,
	}
}

// roundTripperWithUA injects a User-Agent into every request.
type roundTripperWithUA struct {
	rt        http.RoundTripper
	userAgent string
}

func (r roundTripperWithUA) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && r.userAgent != "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", r.userAgent)
	}
	return r.rt.RoundTrip(req)
}
