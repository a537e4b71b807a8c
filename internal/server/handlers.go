package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/yourusername/stream-proxy/internal/cache"
	"github.com/yourusername/stream-proxy/internal/discovery"
	"github.com/yourusername/stream-proxy/internal/manifest"
	"github.com/yourusername/stream-proxy/internal/proxy"
)

type statusResponse struct {
	Status     string       `json:"status"`
	CacheStats *cache.Stats `json:"cacheStats,omitempty"`
	Uptime     float64      `json:"uptime"`
}

type clearCacheRequest struct {
	Token string `json:"token"`
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "online",
		"service": "Stream Proxy Server",
		"endpoints": map[string]string{
			"proxyStream": "/proxy-stream/{url}",
			"proxyIptv":   "/proxy-iptv/{url}",
			"channels":    "/channels/{name}",
			"status":      "/status",
			"clearCache":  "POST /clear-cache",
		},
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status: "online",
		Uptime: s.now().Sub(s.started).Seconds(),
	}
	if s.cache != nil {
		stats := s.cache.Stats()
		resp.CacheStats = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) proxyStream(w http.ResponseWriter, r *http.Request) {
	req := proxy.ProxyRequest{
		TargetURL: targetVar(r),
		Query:     r.URL.Query(),
		RawQuery:  r.URL.RawQuery,
		Header:    http.Header{},
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := s.resolver.Resolve(r.Context(), req)
	if err != nil {
		if errors.Is(err, proxy.ErrInvalidRequest) {
			s.sendError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		s.sendError(w, http.StatusInternalServerError, "Failed to proxy stream", err.Error())
		return
	}

	if _, err := resp.Write(w); err != nil {
		// Headers are already out; all we can do is record it.
		ev := s.log.Warn()
		if errors.Is(err, context.Canceled) {
			ev = s.log.Debug()
		}
		ev.Err(err).Str("url", resp.URL).Msg("stream interrupted")
	}
}

// targetVar returns the embedded upstream URL with its escapes intact. A URL
// sent fully escaped ("https%3A%2F%2F...") is decoded once.
func targetVar(r *http.Request) string {
	raw := mux.Vars(r)["url"]
	if strings.Contains(raw, "://") {
		return raw
	}
	if dec, err := url.PathUnescape(raw); err == nil {
		return dec
	}
	return raw
}

func (s *Server) proxyIPTV(w http.ResponseWriter, r *http.Request) {
	target := proxy.ProxyRequest{
		TargetURL: targetVar(r),
		Query:     r.URL.Query(),
		RawQuery:  r.URL.RawQuery,
	}
	if target.TargetURL == "" {
		s.sendError(w, http.StatusBadRequest, proxy.ErrInvalidRequest.Error(), nil)
		return
	}

	location, err := s.discoverer.Discover(r.Context(), target.Target(s.passthrough), nil)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	redirect(w, manifest.DefaultPrefix+location)
}

func (s *Server) channel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if dec, err := url.PathUnescape(name); err == nil {
		name = dec
	}
	location, err := s.discoverer.Channel(r.Context(), name)
	switch {
	case errors.Is(err, discovery.ErrUnknownChannel), errors.Is(err, discovery.ErrLinkNotFound):
		s.sendError(w, http.StatusNotFound, err.Error(), nil)
		return
	case err != nil:
		s.sendError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	redirect(w, manifest.DefaultPrefix+location)
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	var body clearCacheRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if s.adminToken == "" || subtle.ConstantTimeCompare([]byte(body.Token), []byte(s.adminToken)) != 1 {
		s.sendError(w, http.StatusForbidden, "Unauthorized", nil)
		return
	}

	if s.cache == nil {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Cache disabled", "cleared": 0})
		return
	}
	n := s.cache.FlushAll()
	s.log.Info().Int("cleared", n).Msg("cache cleared")
	writeJSON(w, http.StatusOK, map[string]any{"message": "Cache cleared", "cleared": n})
}

// sendError writes {"error": message, "details": details}.
func (s *Server) sendError(w http.ResponseWriter, status int, message string, details any) {
	ev := s.log.Warn()
	if status >= http.StatusInternalServerError {
		ev = s.log.Error()
	}
	ev.Int("status", status).Interface("details", details).Msg(message)

	body := map[string]any{"error": message}
	if details != nil {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

// redirect sets Location verbatim. http.Redirect would clean the path and
// collapse the "//" of the embedded URL.
func redirect(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
