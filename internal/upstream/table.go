package upstream

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	ResolveRedirect = "redirect"
	ResolveJSON     = "json"
)

// Channel is a named stream whose playable URL is discovered at request time.
type Channel struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Resolve string            `yaml:"resolve"`
	Query   map[string]string `yaml:"query"`
	Field   string            `yaml:"field"`
	Headers map[string]string `yaml:"headers"`
}

// Table is the contents of the upstreams file.
type Table struct {
	Headers  map[string]string `yaml:"headers"`
	Hosts    []HostRule        `yaml:"hosts"`
	Channels []Channel         `yaml:"channels"`

	byName map[string]Channel
}

// Load reads a YAML table from path. A missing file yields an empty table.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read upstreams file %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse upstreams file %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a YAML upstream table.
func Parse(data []byte) (*Table, error) {
	t := &Table{}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, err
	}

	t.byName = make(map[string]Channel, len(t.Channels))
	for i, ch := range t.Channels {
		if ch.Name == "" || ch.URL == "" {
			return nil, fmt.Errorf("channel %d: name and url are required", i)
		}
		if ch.Resolve == "" {
			ch.Resolve = ResolveRedirect
		}
		switch ch.Resolve {
		case ResolveRedirect:
		case ResolveJSON:
			if ch.Field == "" {
				return nil, fmt.Errorf("channel %q: json resolve needs a field", ch.Name)
			}
		default:
			return nil, fmt.Errorf("channel %q: unknown resolve mode %q", ch.Name, ch.Resolve)
		}
		if _, dup := t.byName[ch.Name]; dup {
			return nil, fmt.Errorf("channel %q defined twice", ch.Name)
		}
		t.Channels[i] = ch
		t.byName[ch.Name] = ch
	}
	return t, nil
}

// Channel looks up a named channel.
func (t *Table) Channel(name string) (Channel, bool) {
	ch, ok := t.byName[name]
	return ch, ok
}

// Profile merges the table's headers over base.
func (t *Table) Profile(base map[string]string) Profile {
	headers := make(map[string]string, len(base)+len(t.Headers))
	for k, v := range base {
		headers[k] = v
	}
	for k, v := range t.Headers {
		headers[k] = v
	}
	return Profile{Headers: headers, Hosts: t.Hosts}
}
