// Package server exposes the proxy over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/yourusername/stream-proxy/internal/cache"
	"github.com/yourusername/stream-proxy/internal/proxy"
)

// Resolver serves a proxied resource.
type Resolver interface {
	Resolve(ctx context.Context, req proxy.ProxyRequest) (*proxy.Response, error)
}

// Discoverer finds stream URLs behind redirecting entry points.
type Discoverer interface {
	Discover(ctx context.Context, target string, headers map[string]string) (string, error)
	Channel(ctx context.Context, name string) (string, error)
}

// CacheAdmin is the cache as seen by /status and /clear-cache.
type CacheAdmin interface {
	Stats() cache.Stats
	FlushAll() int
}

// Options configures a Server.
type Options struct {
	Resolver   Resolver
	Discoverer Discoverer
	// Cache is nil when caching is disabled.
	Cache          CacheAdmin
	AdminToken     string
	AllowedOrigins []string
	Passthrough    []string
	Logger         zerolog.Logger
	// Now defaults to time.Now; uptime is measured from the call to New.
	Now func() time.Time
}

// Server is the HTTP front end of the proxy.
type Server struct {
	resolver       Resolver
	discoverer     Discoverer
	cache          CacheAdmin
	adminToken     string
	allowedOrigins []string
	passthrough    []string
	log            zerolog.Logger
	now            func() time.Time
	started        time.Time

	handler http.Handler
}

// New builds a Server and its routes from opts.
func New(opts Options) *Server {
	s := &Server{
		resolver:       opts.Resolver,
		discoverer:     opts.Discoverer,
		cache:          opts.Cache,
		adminToken:     opts.AdminToken,
		allowedOrigins: opts.AllowedOrigins,
		passthrough:    opts.Passthrough,
		log:            opts.Logger,
		now:            opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.started = s.now()

	s.handler = s.accessLog(s.cors(s.routes()))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	// Target URLs are carried verbatim in the path, so "http://" must not be
	// cleaned into "http:/" and escapes such as %2F must reach the upstream.
	r := mux.NewRouter().SkipClean(true).UseEncodedPath()

	r.HandleFunc("/", s.home).Methods(http.MethodGet)
	r.HandleFunc("/status", s.status).Methods(http.MethodGet)
	r.HandleFunc("/proxy-stream", s.proxyStream).Methods(http.MethodGet)
	r.HandleFunc("/proxy-stream/{url:.*}", s.proxyStream).Methods(http.MethodGet)
	r.HandleFunc("/proxy-iptv", s.proxyIPTV).Methods(http.MethodGet)
	r.HandleFunc("/proxy-iptv/{url:.*}", s.proxyIPTV).Methods(http.MethodGet)
	r.HandleFunc("/channels/{name}", s.channel).Methods(http.MethodGet)
	r.HandleFunc("/clear-cache", s.clearCache).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, http.StatusNotFound, "Endpoint not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})
	return r
}
