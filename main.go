package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/yourusername/stream-proxy/internal/cache"
	"github.com/yourusername/stream-proxy/internal/classify"
	"github.com/yourusername/stream-proxy/internal/config"
	"github.com/yourusername/stream-proxy/internal/discovery"
	"github.com/yourusername/stream-proxy/internal/logging"
	"github.com/yourusername/stream-proxy/internal/manifest"
	"github.com/yourusername/stream-proxy/internal/proxy"
	"github.com/yourusername/stream-proxy/internal/server"
	"github.com/yourusername/stream-proxy/internal/upstream"
)

func main() {
	// Load environment variables
	foundEnv := config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		logger := logging.New(os.Stderr, "info", "console")
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if !foundEnv {
		logger.Info().Msg("No .env file found, using environment and defaults")
	}

	table, err := upstream.Load(cfg.UpstreamsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load upstreams")
	}
	profile := table.Profile(upstream.DefaultHeaders(cfg.UserAgent, cfg.Referer, cfg.Origin))
	classifier := classify.New(cfg.ManifestSuffixes, cfg.SegmentSuffixes)
	client := proxy.NewClient(cfg.UpstreamTimeout, cfg.UpstreamMaxRedirects)

	var (
		store proxy.Store
		admin server.CacheAdmin
	)
	if cfg.CacheEnabled {
		c := cache.New(cache.WithTTL(cfg.CacheTTL), cache.WithCheckPeriod(cfg.CacheCheckPeriod))
		defer c.Close()
		store, admin = c, c
	}

	srv := server.New(server.Options{
		Resolver: proxy.New(proxy.Options{
			Client:      client,
			Store:       store,
			Classifier:  classifier,
			Rewriter:    manifest.New(manifest.DefaultPrefix, classifier),
			Profile:     profile,
			Passthrough: cfg.PassthroughParams,
			Logger:      logger.With().Str("component", "proxy").Logger(),
		}),
		Discoverer: discovery.New(discovery.Options{
			Preflight: discovery.NewPreflightClient(cfg.UpstreamTimeout),
			Client:    client,
			Profile:   profile,
			Table:     table,
			Logger:    logger.With().Str("component", "discovery").Logger(),
		}),
		Cache:          admin,
		AdminToken:     cfg.AdminToken,
		AllowedOrigins: cfg.AllowedOrigins,
		Passthrough:    cfg.PassthroughParams,
		Logger:         logger.With().Str("component", "http").Logger(),
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	allowed := "All (*)"
	if len(cfg.AllowedOrigins) > 0 {
		allowed = strings.Join(cfg.AllowedOrigins, ", ")
	}
	logger.Info().
		Str("addr", cfg.Addr()).
		Bool("cache", cfg.CacheEnabled).
		Dur("cacheTTL", cfg.CacheTTL).
		Int("channels", len(table.Channels)).
		Str("allowedOrigins", allowed).
		Msg("Stream Proxy Server running")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server failed")
		}
		return
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down server")
	}
	logger.Info().Msg("Shutdown complete")
}
