// Package route implements the route table and matcher:
// registration-ordered, first-match-wins lookup by (method, anchored
// regex).
package route

import (
	"io"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

// Method is the effective routing method: the usual HTTP verbs plus
// the synthetic WEBSOCKET tag produced by upgrade detection. WEBSOCKET
// is reserved and never itself parsed off the wire.
type Method string

const (
	GET       Method = "GET"
	POST      Method = "POST"
	PUT       Method = "PUT"
	DELETE    Method = "DELETE"
	PATCH     Method = "PATCH"
	HEAD      Method = "HEAD"
	OPTIONS   Method = "OPTIONS"
	WEBSOCKET Method = "WEBSOCKET"
)

// Entry is one compiled route registration.
type Entry struct {
	Method  Method
	Pattern *regexp.Regexp
	Handler any
}

// RawEntry is the YAML-serializable shape of a route before its pattern
// is compiled and its handler attached, so a host can keep its route
// shape in a config file.
type RawEntry struct {
	Method  string `yaml:"method"`
	Pattern string `yaml:"pattern"`
}

// LoadEntries reads a YAML list of {method, pattern} route descriptions.
// Handlers are attached afterward in code via Table.Add, keyed by the
// same pattern string, since a handler func cannot itself be serialized.
func LoadEntries(r io.Reader) ([]RawEntry, error) {
	var entries []RawEntry
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&entries); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	return entries, nil
}

// Table is the registration-ordered route list. Safe for concurrent
// registration and lookup, though in normal operation all registration
// happens before the server starts ticking.
type Table struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewTable returns an empty Table.
func NewTable() *Table { return &Table{} }

// Add registers a handler for method at pattern, anchored to match the
// full request path. pattern is always compiled wrapped in ^(?:...)$,
// which leaves a pattern the caller already anchored unchanged in meaning.
func (t *Table) Add(method Method, pattern string, handler any) error {
	re, err := regexp.Compile(anchor(pattern))
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{Method: method, Pattern: re, Handler: handler})
	return nil
}

func anchor(pattern string) string {
	return "^(?:" + pattern + ")$"
}

// Match finds the first registered entry whose method equals method and
// whose pattern fully matches path, in registration order. A
// method mismatch on an otherwise-matching path is indistinguishable from
// no match at all — no 405 is ever synthesized, by design.
func (t *Table) Match(method Method, path string) (Entry, []string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.Method != method {
			continue
		}
		if groups := e.Pattern.FindStringSubmatch(path); groups != nil {
			return e, groups[1:], true
		}
	}
	return Entry{}, nil, false
}

// Len reports how many routes are registered.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
