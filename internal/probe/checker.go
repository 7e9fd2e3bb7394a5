package probe

import (
	"context"
	"net/http"
	"time"

	"github.com/voyagen/primecast/internal/models"
)

// Checker answers whether one stream can be reached. Implementations must
// honour ctx and must treat every failure as false.
type Checker interface {
	Reachable(ctx context.Context, s models.Stream) bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, s models.Stream) bool

// Reachable calls f.
func (f CheckerFunc) Reachable(ctx context.Context, s models.Stream) bool { return f(ctx, s) }

// HTTPChecker probes a stream with a single HEAD request.
//
// Any HTTP response counts as reachable, whatever its status: the check
// detects DNS, TCP and TLS reachability, not content availability. Only a
// transport error, a timeout or cancellation yields false.
type HTTPChecker struct {
	client    *http.Client
	userAgent string
}

// NewHTTPChecker returns a checker whose requests are bounded by timeout.
// userAgent is sent unless the stream carries its own.
func NewHTTPChecker(timeout time.Duration, userAgent string) *HTTPChecker {
	return &HTTPChecker{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: timeout,
			},
		},
		userAgent: userAgent,
	}
}

// Reachable implements Checker.
func (c *HTTPChecker) Reachable(ctx context.Context, s models.Stream) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.URL, nil)
	if err != nil {
		return false
	}
	ua := c.userAgent
	if s.UserAgent != nil && *s.UserAgent != "" {
		ua = *s.UserAgent
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if s.Referrer != nil && *s.Referrer != "" {
		req.Header.Set("Referer", *s.Referrer)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
