// Package classify decides what kind of HLS resource a URL points at.
package classify

import (
	"net/url"
	"strings"
)

// Kind is the resource type of a proxied URL.
type Kind int

const (
	Opaque Kind = iota
	Manifest
	Segment
)

func (k Kind) String() string {
	switch k {
	case Manifest:
		return "manifest"
	case Segment:
		return "segment"
	default:
		return "opaque"
	}
}

// Classifier matches the path portion of a URL against suffix lists.
// Manifest suffixes win over segment suffixes.
type Classifier struct {
	ManifestSuffixes []string
	SegmentSuffixes  []string
}

// Default recognises .m3u8 playlists and .ts segments.
var Default = Classifier{
	ManifestSuffixes: []string{".m3u8"},
	SegmentSuffixes:  []string{".ts"},
}

// New builds a classifier, falling back to the defaults for empty lists.
func New(manifestSuffixes, segmentSuffixes []string) Classifier {
	c := Default
	if m := normalize(manifestSuffixes); len(m) > 0 {
		c.ManifestSuffixes = m
	}
	if s := normalize(segmentSuffixes); len(s) > 0 {
		c.SegmentSuffixes = s
	}
	return c
}

// Classify uses the default suffix lists.
func Classify(rawURL string) Kind {
	return Default.Classify(rawURL)
}

// Classify reports the kind of rawURL from the suffix of its path.
func (c Classifier) Classify(rawURL string) Kind {
	p := strings.ToLower(pathOf(rawURL))
	if p == "" {
		return Opaque
	}
	for _, s := range c.ManifestSuffixes {
		if strings.HasSuffix(p, s) {
			return Manifest
		}
	}
	for _, s := range c.SegmentSuffixes {
		if strings.HasSuffix(p, s) {
			return Segment
		}
	}
	return Opaque
}

// pathOf strips the query string and fragment. URLs that do not parse are
// cut at the first '?' or '#' instead.
func pathOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if u.Opaque != "" {
			return u.Opaque
		}
		return u.Path
	}
	if i := strings.IndexAny(rawURL, "?#"); i != -1 {
		return rawURL[:i]
	}
	return rawURL
}

func normalize(suffixes []string) []string {
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
