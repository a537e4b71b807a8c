package proxy

import (
	"net/http"
	"net/url"
	"strings"
)

// ProxyRequest is one client request for an upstream resource.
type ProxyRequest struct {
	// TargetURL is the upstream URL taken from the proxy path.
	TargetURL string
	// Query holds the client's query parameters; the passthrough ones are
	// appended to TargetURL.
	Query url.Values
	// RawQuery is the client's query string as sent, used when every
	// parameter is passed through.
	RawQuery string
	// Header is forwarded upstream on top of the header profile.
	Header http.Header
}

// Target returns TargetURL with the given query parameters appended in
// order. The name "*" appends the whole raw query instead. The result is
// both the fetch URL and the cache key.
func (r ProxyRequest) Target(passthrough []string) string {
	target := r.TargetURL
	for _, name := range passthrough {
		if name == "*" {
			if r.RawQuery == "" {
				return r.TargetURL
			}
			return r.TargetURL + separator(r.TargetURL) + r.RawQuery
		}
	}
	for _, name := range passthrough {
		v := r.Query.Get(name)
		if v == "" {
			continue
		}
		target += separator(target) + name + "=" + url.QueryEscape(v)
	}
	return target
}

func separator(target string) string {
	if strings.Contains(target, "?") {
		return "&"
	}
	return "?"
}
