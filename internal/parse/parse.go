// Package parse converts the metric text tokens the upstream renders into
// numbers. Parsers return nil on anything unrecognized; callers decide what
// ranges are acceptable.
package parse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	suffixedRe  = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([KMBkmb])?$`)
	clockRe     = regexp.MustCompile(`^(?:([0-9]{1,2}):)?([0-9]{1,2}):([0-9]{2})$`)
	componentRe = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*([hms])`)
)

// SuffixedNumber parses strings like "3.72K", "82.28B", "1,234" or "950"
// into an integer count. Returns nil for anything unrecognized.
func SuffixedNumber(s string) *int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	m := suffixedRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		f *= 1e3
	case "M":
		f *= 1e6
	case "B":
		f *= 1e9
	}
	n := int64(math.Round(f))
	return &n
}

// Duration parses "HH:MM:SS", "MM:SS", or free-form component strings like
// "2m 15s" / "1h 3m" into total seconds. Returns nil for unparsable input
// or a zero-length duration.
func Duration(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if m := clockRe.FindStringSubmatch(s); m != nil {
		var hours int64
		if m[1] != "" {
			hours, _ = strconv.ParseInt(m[1], 10, 64)
		}
		mins, _ := strconv.ParseInt(m[2], 10, 64)
		secs, _ := strconv.ParseInt(m[3], 10, 64)
		total := hours*3600 + mins*60 + secs
		if total == 0 {
			return nil
		}
		return &total
	}

	matches := componentRe.FindAllStringSubmatch(strings.ToLower(s), -1)
	if matches == nil {
		return nil
	}
	var total float64
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil
		}
		switch m[2] {
		case "h":
			total += v * 3600
		case "m":
			total += v * 60
		case "s":
			total += v
		}
	}
	if total <= 0 {
		return nil
	}
	n := int64(math.Round(total))
	return &n
}

// Percentage strips a single trailing "%" and parses the remainder as a
// float. Range checks belong to the caller; this only converts text.
func Percentage(s string) *float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// Float parses a plain decimal number (e.g. a pages-per-visit value).
func Float(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
