// Package manifest rewrites HLS playlists so every child playlist and
// segment is fetched back through the proxy.
package manifest

import (
	"net/url"
	"strings"

	"github.com/yourusername/stream-proxy/internal/classify"
)

// DefaultPrefix is the route the proxy serves streams on.
const DefaultPrefix = "/proxy-stream/"

// Reference is a playlist line pointing at another resource.
type Reference struct {
	Line     int
	Raw      string
	Resolved string
	Kind     classify.Kind
}

// Rewriter rewrites reference lines to Prefix + absolute upstream URL.
type Rewriter struct {
	Prefix     string
	Classifier classify.Classifier
}

var defaultRewriter = New(DefaultPrefix, classify.Default)

// New returns a Rewriter that prefixes resolved references with prefix.
func New(prefix string, c classify.Classifier) *Rewriter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Rewriter{Prefix: prefix, Classifier: c}
}

// Rewrite rewrites body with the default prefix and suffixes.
func Rewrite(body, originURL string) string {
	return defaultRewriter.Rewrite(body, originURL)
}

// Rewrite returns body with every reference line replaced. Tag lines, blank
// lines and lines already routed through the proxy are returned untouched,
// so rewriting a rewritten playlist is a no-op.
func (rw *Rewriter) Rewrite(body, originURL string) string {
	b := newBase(originURL)
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		ref, ok := rw.parse(i, line, b)
		if !ok {
			continue
		}
		cr := ""
		if strings.HasSuffix(line, "\r") {
			cr = "\r"
		}
		lines[i] = rw.Prefix + ref.Resolved + cr
	}
	return strings.Join(lines, "\n")
}

// References lists the reference lines of body resolved against originURL.
func (rw *Rewriter) References(body, originURL string) []Reference {
	b := newBase(originURL)
	var refs []Reference
	for i, line := range strings.Split(body, "\n") {
		if ref, ok := rw.parse(i, line, b); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

func (rw *Rewriter) parse(n int, line string, b base) (Reference, bool) {
	raw := strings.TrimSpace(line)
	if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, rw.Prefix) {
		return Reference{}, false
	}
	kind := rw.Classifier.Classify(raw)
	if kind == classify.Opaque {
		return Reference{}, false
	}
	return Reference{
		Line:     n,
		Raw:      raw,
		Resolved: b.resolve(raw),
		Kind:     kind,
	}, true
}

// Resolve turns ref into an absolute URL relative to the playlist at originURL.
func Resolve(ref, originURL string) string {
	return newBase(originURL).resolve(ref)
}

type base struct {
	scheme string
	origin string // scheme://host[:port], empty if originURL did not parse
	dir    string // originURL up to and including its last '/'
}

func newBase(originURL string) base {
	var b base
	if u, err := url.Parse(originURL); err == nil && u.Scheme != "" && u.Host != "" {
		b.scheme = u.Scheme
		b.origin = u.Scheme + "://" + u.Host
	}

	p := originURL
	if i := strings.IndexAny(p, "?#"); i != -1 {
		p = p[:i]
	}
	b.dir = p[:strings.LastIndex(p, "/")+1]
	if b.origin != "" && len(b.dir) <= len(b.origin) {
		b.dir = b.origin + "/"
	}
	return b
}

func (b base) resolve(ref string) string {
	switch {
	case hasScheme(ref):
		return ref
	case strings.HasPrefix(ref, "//"):
		if b.scheme == "" {
			return ref
		}
		return b.scheme + ":" + ref
	case strings.HasPrefix(ref, "/"):
		return b.origin + ref
	default:
		return b.dir + ref
	}
}

// hasScheme reports whether s starts with "scheme://".
func hasScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9', c == '+', c == '-', c == '.':
			if i == 0 {
				return false
			}
		case c == ':':
			return i > 0 && strings.HasPrefix(s[i:], "://")
		default:
			return false
		}
	}
	return false
}
