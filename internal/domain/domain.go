// Package domain normalizes, validates, and groups the host names a batch
// call operates on. All functions are pure; invalid input is dropped, not
// errored, so a batch proceeds with whatever survives.
package domain

import (
	"regexp"
	"strings"
)

// labelRe matches a single host-name label: alnum with interior hyphens.
var labelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// tldRe matches a conservative TLD: at least two letters.
var tldRe = regexp.MustCompile(`^[a-z]{2,}$`)

// Normalize reduces a raw user-supplied domain string to its canonical form:
// lowercase host with scheme, path, query, fragment, port, and trailing dots
// stripped. A leading "www." is kept; CacheKey strips it for matching.
// Returns "" when nothing host-shaped remains.
func Normalize(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return ""
	}

	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "//")

	// Drop userinfo, path, query, fragment, port.
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}

	s = strings.Trim(s, ".")
	return s
}

// CacheKey returns the matching/caching form of a canonical domain: the
// canonical form with a single leading "www." removed.
func CacheKey(canonical string) string {
	return strings.TrimPrefix(canonical, "www.")
}

// Variants returns the bare and www-prefixed forms of a canonical domain.
// Both canonicalize to the same cache key.
func Variants(canonical string) (bare, www string) {
	bare = CacheKey(canonical)
	return bare, "www." + bare
}

// Validate reports whether canonical looks like a plausible host name:
// dot-separated alnum/hyphen labels with a TLD of at least two letters.
func Validate(canonical string) bool {
	if canonical == "" || len(canonical) > 253 {
		return false
	}
	labels := strings.Split(canonical, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if len(l) == 0 || len(l) > 63 || !labelRe.MatchString(l) {
			return false
		}
	}
	return tldRe.MatchString(labels[len(labels)-1])
}

// Clean normalizes and validates a list of raw domains, dropping anything
// malformed and deduplicating by cache key while preserving first-seen order.
func Clean(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		c := Normalize(r)
		if Validate(c) {
			out = append(out, c)
		}
	}
	return Dedupe(out)
}

// Dedupe removes duplicates keyed by cache key, keeping the first occurrence
// in its original position.
func Dedupe(domains []string) []string {
	seen := make(map[string]struct{}, len(domains))
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		key := CacheKey(d)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}

// Chunk splits domains into fixed-size groups; the last group may be short.
// A size of zero or less yields a single group.
func Chunk(domains []string, size int) [][]string {
	if len(domains) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]string{domains}
	}
	chunks := make([][]string, 0, (len(domains)+size-1)/size)
	for start := 0; start < len(domains); start += size {
		end := start + size
		if end > len(domains) {
			end = len(domains)
		}
		chunks = append(chunks, domains[start:end])
	}
	return chunks
}

// Set indexes a requested-domain list by cache key so extracted tokens can be
// reconciled against both bare and www-prefixed forms.
type Set struct {
	byKey map[string]string // cache key -> requested canonical
	order []string
}

// NewSet builds a Set from canonical requested domains.
func NewSet(domains []string) *Set {
	s := &Set{byKey: make(map[string]string, len(domains))}
	for _, d := range domains {
		key := CacheKey(d)
		if _, ok := s.byKey[key]; ok {
			continue
		}
		s.byKey[key] = d
		s.order = append(s.order, d)
	}
	return s
}

// Match normalizes token and returns the requested canonical domain it
// corresponds to, if any.
func (s *Set) Match(token string) (string, bool) {
	key := CacheKey(Normalize(token))
	d, ok := s.byKey[key]
	return d, ok
}

// Domains returns the requested canonicals in insertion order.
func (s *Set) Domains() []string {
	return s.order
}

// Len returns the number of distinct requested domains.
func (s *Set) Len() int {
	return len(s.byKey)
}
