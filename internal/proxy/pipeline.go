// Package proxy fetches upstream HLS resources, rewriting playlists and
// caching segments along the way.
package proxy

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/yourusername/stream-proxy/internal/cache"
	"github.com/yourusername/stream-proxy/internal/classify"
	"github.com/yourusername/stream-proxy/internal/manifest"
	"github.com/yourusername/stream-proxy/internal/upstream"
)

const (
	manifestContentType = "application/vnd.apple.mpegurl"
	cacheHeader         = "X-Proxy-Cache"
)

// forwardedHeaders are copied from the upstream response on streamed bodies.
var forwardedHeaders = []string{
	"Content-Length",
	"Content-Range",
	"Content-Encoding",
	"Accept-Ranges",
	"Last-Modified",
	"ETag",
}

// Store is the subset of the TTL cache the pipeline needs.
type Store interface {
	Get(key string) (*cache.Entry, bool)
	Set(key string, payload []byte, contentType string)
	// RecordMiss counts a playlist fetch, which is never cached.
	RecordMiss()
}

// Options configures a Pipeline.
type Options struct {
	Client     *http.Client
	Store      Store // nil disables segment caching
	Classifier classify.Classifier
	Rewriter   *manifest.Rewriter
	Profile    upstream.Profile
	// Passthrough names the query parameters appended to the target URL.
	Passthrough []string
	Logger      zerolog.Logger
}

// Pipeline fetches, rewrites and caches upstream resources.
type Pipeline struct {
	client      *http.Client
	store       Store
	classifier  classify.Classifier
	rewriter    *manifest.Rewriter
	profile     upstream.Profile
	passthrough []string
	log         zerolog.Logger
}

// New returns a Pipeline with defaults filled in for unset options.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		client:      opts.Client,
		store:       opts.Store,
		classifier:  opts.Classifier,
		rewriter:    opts.Rewriter,
		profile:     opts.Profile,
		passthrough: opts.Passthrough,
		log:         opts.Logger,
	}
	if p.client == nil {
		p.client = NewClient(0, 5)
	}
	if len(p.classifier.ManifestSuffixes) == 0 && len(p.classifier.SegmentSuffixes) == 0 {
		p.classifier = classify.Default
	}
	if p.rewriter == nil {
		p.rewriter = manifest.New(manifest.DefaultPrefix, p.classifier)
	}
	return p
}

// Response is a resolved proxy response. Exactly one of Body and Stream is
// set; Stream must be closed by the caller, which Write does.
type Response struct {
	URL         string
	Kind        classify.Kind
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
	Stream      io.ReadCloser
	CacheHit    bool
}

// Resolve serves req from the cache or the upstream. Playlists come back
// rewritten, segments buffered (and cached when a store is set), anything
// else as an open stream.
func (p *Pipeline) Resolve(ctx context.Context, req ProxyRequest) (*Response, error) {
	if strings.TrimSpace(req.TargetURL) == "" {
		return nil, ErrInvalidRequest
	}

	target := req.Target(p.passthrough)
	kind := p.classifier.Classify(target)
	log := p.log.With().Str("url", target).Stringer("kind", kind).Logger()

	if kind == classify.Manifest && p.store != nil {
		p.store.RecordMiss()
	}

	caching := kind == classify.Segment && p.store != nil
	if caching {
		if e, ok := p.store.Get(target); ok {
			log.Debug().Msg("serving cached segment")
			return &Response{
				URL:         target,
				Kind:        kind,
				StatusCode:  http.StatusOK,
				ContentType: e.ContentType,
				Header:      http.Header{cacheHeader: {"HIT"}},
				Body:        e.Payload,
				CacheHit:    true,
			}, nil
		}
	}

	log.Info().Msg("fetching from source")
	resp, err := p.fetch(ctx, target, kind, req.Header)
	if err != nil {
		return nil, err
	}
	contentType := resp.Header.Get("Content-Type")

	switch {
	case kind == classify.Manifest:
		body, err := readAll(resp)
		if err != nil {
			return nil, &FetchError{URL: target, Err: err}
		}
		if contentType == "" {
			contentType = manifestContentType
		}
		return &Response{
			URL:         target,
			Kind:        kind,
			StatusCode:  http.StatusOK,
			ContentType: contentType,
			Header:      http.Header{},
			Body:        []byte(p.rewriter.Rewrite(string(body), target)),
		}, nil

	case caching:
		body, err := readAll(resp)
		if err != nil {
			return nil, &FetchError{URL: target, Err: err}
		}
		p.store.Set(target, body, contentType)
		log.Debug().Int("bytes", len(body)).Msg("cached segment")
		return &Response{
			URL:         target,
			Kind:        kind,
			StatusCode:  http.StatusOK,
			ContentType: contentType,
			Header:      http.Header{cacheHeader: {"MISS"}},
			Body:        body,
		}, nil
	}

	h := http.Header{}
	for _, k := range forwardedHeaders {
		if v := resp.Header.Get(k); v != "" {
			h.Set(k, v)
		}
	}
	return &Response{
		URL:         target,
		Kind:        kind,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Header:      h,
		Stream:      resp.Body,
	}, nil
}

func (p *Pipeline) fetch(ctx context.Context, target string, kind classify.Kind, forward http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}

	req.Header = p.profile.HeadersFor(target, nil)
	for k, vs := range forward {
		req.Header[k] = vs
	}
	// Buffered kinds need the whole body.
	if kind != classify.Opaque {
		req.Header.Del("Range")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &FetchError{URL: target, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// Write sends the response to w and closes any open stream.
func (r *Response) Write(w http.ResponseWriter) (int64, error) {
	h := w.Header()
	for k, vs := range r.Header {
		h[k] = vs
	}
	if r.ContentType != "" {
		h.Set("Content-Type", r.ContentType)
	}

	if r.Stream == nil {
		h.Set("Content-Length", strconv.Itoa(len(r.Body)))
		w.WriteHeader(r.StatusCode)
		n, err := w.Write(r.Body)
		return int64(n), err
	}

	defer r.Stream.Close()
	w.WriteHeader(r.StatusCode)
	return Pipe(w, r.Stream)
}
