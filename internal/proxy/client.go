package proxy

import (
	"fmt"
	"net/http"
	"time"
)

// NewClient returns the client used for stream fetches. It follows up to
// maxRedirects redirects. timeout bounds the wait for response headers only,
// so long-running bodies are not cut off.
func NewClient(timeout time.Duration, maxRedirects int) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}
