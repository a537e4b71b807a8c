// Package discovery finds the real stream URL behind IPTV entry points,
// either by catching the upstream's redirect or by reading a link out of a
// JSON API response.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/stream-proxy/internal/upstream"
)

var (
	ErrRedirectNotFound = errors.New("No redirect link found")
	ErrLinkNotFound     = errors.New("No stream link found")
	ErrUnknownChannel   = errors.New("Channel not found")
)

// NewPreflightClient returns a client that never follows redirects, so the
// Location header of a 3xx reaches the caller.
func NewPreflightClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type Options struct {
	// Preflight must not follow redirects.
	Preflight *http.Client
	// Client is used for JSON link lookups.
	Client  *http.Client
	Profile upstream.Profile
	Table   *upstream.Table
	Logger  zerolog.Logger
}

type Discoverer struct {
	preflight *http.Client
	client    *http.Client
	profile   upstream.Profile
	table     *upstream.Table
	log       zerolog.Logger
}

func New(opts Options) *Discoverer {
	d := &Discoverer{
		preflight: opts.Preflight,
		client:    opts.Client,
		profile:   opts.Profile,
		table:     opts.Table,
		log:       opts.Logger,
	}
	if d.preflight == nil {
		d.preflight = NewPreflightClient(30 * time.Second)
	}
	if d.client == nil {
		d.client = http.DefaultClient
	}
	if d.table == nil {
		d.table, _ = upstream.Parse(nil)
	}
	return d
}

// Discover issues a GET to target without following redirects and returns
// the absolute Location of a 3xx answer.
func (d *Discoverer) Discover(ctx context.Context, target string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header = d.profile.HeadersFor(target, headers)

	resp, err := d.preflight.Do(req)
	if err != nil {
		return "", err
	}
	resp.Body.Close()

	location := resp.Header.Get("Location")
	if resp.StatusCode < 300 || resp.StatusCode > 399 || location == "" {
		d.log.Warn().Str("url", target).Int("status", resp.StatusCode).Msg("preflight returned no redirect")
		return "", ErrRedirectNotFound
	}

	if loc, err := req.URL.Parse(location); err == nil {
		location = loc.String()
	}
	d.log.Info().Str("url", target).Str("location", location).Msg("discovered stream redirect")
	return location, nil
}

// Channel resolves a named channel from the upstream table.
func (d *Discoverer) Channel(ctx context.Context, name string) (string, error) {
	ch, ok := d.table.Channel(name)
	if !ok {
		return "", ErrUnknownChannel
	}

	switch ch.Resolve {
	case upstream.ResolveJSON:
		return d.lookup(ctx, ch)
	default:
		return d.Discover(ctx, ch.URL, ch.Headers)
	}
}

// lookup fetches the channel's API endpoint and reads the dotted field path.
func (d *Discoverer) lookup(ctx context.Context, ch upstream.Channel) (string, error) {
	u, err := url.Parse(ch.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range ch.Query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header = d.profile.HeadersFor(u.String(), ch.Headers)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("channel %s: upstream returned %d", ch.Name, resp.StatusCode)
	}

	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("channel %s: decode response: %w", ch.Name, err)
	}

	link, _ := field(doc, ch.Field).(string)
	if link == "" {
		return "", ErrLinkNotFound
	}
	d.log.Info().Str("channel", ch.Name).Str("link", link).Msg("discovered stream link")
	return link, nil
}

func field(doc any, path string) any {
	for _, key := range strings.Split(path, ".") {
		m, ok := doc.(map[string]any)
		if !ok {
			return nil
		}
		doc = m[key]
	}
	return doc
}
