// Package hdr implements the case-insensitive header map used by requests
// and responses: first-seen value wins on lookup, canonical form is used
// for storage, and the original casing is not retained. Values must be
// forwarded correctly, but casing need not round-trip.
package hdr

import (
	"io"
	"sort"
	"strings"
)

// Header maps canonical header name to the list of values seen, in the
// order they arrived. Get returns the first value seen for a key, so
// duplicates never shadow the original.
type Header map[string][]string

// Add appends value under key's canonical form.
func (h Header) Add(key, value string) {
	h[CanonicalHeaderKey(key)] = append(h[CanonicalHeaderKey(key)], value)
}

// Set replaces any existing values for key with the single value.
func (h Header) Set(key, value string) {
	h[CanonicalHeaderKey(key)] = []string{value}
}

// Get returns the first-seen value for key, or "" if absent.
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	v := h[CanonicalHeaderKey(key)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Del removes all values for key.
func (h Header) Del(key string) {
	delete(h, CanonicalHeaderKey(key))
}

// Has reports whether key has at least one value.
func (h Header) Has(key string) bool {
	return len(h[CanonicalHeaderKey(key)]) > 0
}

// Clone returns a deep copy of h.
func (h Header) Clone() Header {
	h2 := make(Header, len(h))
	for k, vv := range h {
		cp := make([]string, len(vv))
		copy(cp, vv)
		h2[k] = cp
	}
	return h2
}

// keyValues pairs a canonical key with its values, for sorted emission.
type keyValues struct {
	key    string
	values []string
}

// WriteSubset writes the header in wire format (one "Key: value\r\n" line
// per value, keys sorted for determinism), skipping any key in exclude.
func (h Header) WriteSubset(w io.Writer, exclude map[string]bool) error {
	kvs := make([]keyValues, 0, len(h))
	for k, vv := range h {
		if exclude != nil && exclude[k] {
			continue
		}
		kvs = append(kvs, keyValues{k, vv})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].key < kvs[j].key })

	for _, kv := range kvs {
		for _, v := range kv.values {
			v = foldNewlines(v)
			if _, err := io.WriteString(w, kv.key); err != nil {
				return err
			}
			if _, err := io.WriteString(w, ": "); err != nil {
				return err
			}
			if _, err := io.WriteString(w, v); err != nil {
				return err
			}
			if _, err := io.WriteString(w, "\r\n"); err != nil {
				return err
			}
		}
	}
	return nil
}

func foldNewlines(v string) string {
	v = strings.ReplaceAll(v, "\n", " ")
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.TrimSpace(v)
}

// Entries returns the header as an ordered list of (name, firstValue)
// pairs, sorted by name — the shape Response.Headers uses.
func (h Header) Entries() []Entry {
	out := make([]Entry, 0, len(h))
	for k, vv := range h {
		if len(vv) == 0 {
			continue
		}
		out = append(out, Entry{Name: k, Value: vv[0]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Entry is a single header (name, value) pair.
type Entry struct {
	Name  string
	Value string
}
