// Package upstream holds the request headers and channel definitions used
// when talking to origin servers.
package upstream

import (
	"net/http"
	"net/url"
	"strings"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36"

// HostRule adds headers to requests whose hostname contains Match.
type HostRule struct {
	Match   string            `yaml:"match"`
	Headers map[string]string `yaml:"headers"`
}

// Profile builds the header set sent upstream.
type Profile struct {
	Headers map[string]string
	Hosts   []HostRule
}

// DefaultHeaders returns the base header set. Empty referer or origin are
// left out.
func DefaultHeaders(userAgent, referer, origin string) map[string]string {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	headers := map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "*/*",
		"Accept-Language": "en-US,en;q=0.9",
		"Accept-Encoding": "identity",
		"Connection":      "keep-alive",
	}
	if referer != "" {
		headers["Referer"] = referer
	}
	if origin != "" {
		headers["Origin"] = origin
	}
	return headers
}

// HeadersFor layers the base headers, matching host rules and overrides, in
// that order. Empty values never override.
func (p Profile) HeadersFor(targetURL string, overrides map[string]string) http.Header {
	h := make(http.Header, len(p.Headers))
	merge(h, p.Headers)

	if u, err := url.Parse(targetURL); err == nil {
		hostname := strings.ToLower(u.Hostname())
		for _, rule := range p.Hosts {
			if rule.Match != "" && strings.Contains(hostname, strings.ToLower(rule.Match)) {
				merge(h, rule.Headers)
			}
		}
	}

	merge(h, overrides)
	return h
}

func merge(h http.Header, values map[string]string) {
	for k, v := range values {
		if v != "" {
			h.Set(k, v)
		}
	}
}
