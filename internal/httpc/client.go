// Package httpc builds the outbound HTTP clients used for speech synthesis
// and model downloads. Every client has a timeout and identifies itself.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// UserAgent is sent on every outbound request.
const UserAgent = "go-focuscoach/1.0"

// Dial and pool limits. Outbound traffic is a handful of API hosts.
const (
	ConnectTimeout  = 10 * time.Second
	KeepAlive       = 30 * time.Second
	IdleConnTimeout = 90 * time.Second
	MaxIdlePerHost  = 4
)

// NewClient returns a client bounded by timeout. A zero timeout leaves only
// the dial and TLS handshake limits, for long downloads that are bounded by
// their context instead.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgent{next: newTransport()},
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   ConnectTimeout,
			KeepAlive: KeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   MaxIdlePerHost,
		IdleConnTimeout:       IdleConnTimeout,
		TLSHandshakeTimeout:   ConnectTimeout,
		ExpectContinueTimeout: time.Second,
	}
}

// userAgent sets the User-Agent header unless the caller already did.
type userAgent struct {
	next http.RoundTripper
}

func (u *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return u.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", UserAgent)
	return u.next.RoundTrip(req)
}
