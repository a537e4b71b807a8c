// Package config reads server settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host           string
	Port           string
	AllowedOrigins []string
	AdminToken     string

	CacheEnabled     bool
	CacheTTL         time.Duration
	CacheCheckPeriod time.Duration

	UpstreamTimeout      time.Duration
	UpstreamMaxRedirects int
	UserAgent            string
	Referer              string
	Origin               string
	UpstreamsFile        string

	ManifestSuffixes  []string
	SegmentSuffixes   []string
	PassthroughParams []string

	LogLevel  string
	LogFormat string
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// LoadDotEnv loads .env into the environment. It reports whether a file
// was found.
func LoadDotEnv(files ...string) bool {
	return godotenv.Load(files...) == nil
}

// Load builds a Config from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Host:              getEnv("HOST", "0.0.0.0"),
		Port:              getEnv("PORT", "3000"),
		AllowedOrigins:    getList("ALLOWED_ORIGINS", nil),
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
		UserAgent:         os.Getenv("UPSTREAM_USER_AGENT"),
		Referer:           os.Getenv("UPSTREAM_REFERER"),
		Origin:            os.Getenv("UPSTREAM_ORIGIN"),
		UpstreamsFile:     getEnv("UPSTREAMS_FILE", "upstreams.yaml"),
		ManifestSuffixes:  getList("MANIFEST_SUFFIXES", []string{".m3u8"}),
		SegmentSuffixes:   getList("SEGMENT_SUFFIXES", []string{".ts"}),
		PassthroughParams: getList("PASSTHROUGH_PARAMS", []string{"token"}),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "console"),
	}

	var err error
	if cfg.CacheEnabled, err = getBool("CACHE_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 600*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheCheckPeriod, err = getDuration("CACHE_CHECK_PERIOD", 120*time.Second); err != nil {
		return nil, err
	}
	if cfg.UpstreamTimeout, err = getDuration("UPSTREAM_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.UpstreamMaxRedirects, err = getInt("UPSTREAM_MAX_REDIRECTS", 5); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}

// getDuration accepts Go durations ("90s") or plain seconds ("600").
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}
