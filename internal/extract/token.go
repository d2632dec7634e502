package extract

import "regexp"

// Token shapes the upstream renders its numbers in. Shared across the
// strategies and the readiness predicate.
var (
	domainTokenRe = regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9-]*(?:\.[a-z0-9][a-z0-9-]*)*\.[a-z]{2,}\b`)
	suffixedNumRe = regexp.MustCompile(`\b[0-9]+(?:\.[0-9]+)?[KMBkmb]?\b`)
	durationTokRe = regexp.MustCompile(`\b[0-9]{1,2}:[0-9]{2}(?::[0-9]{2})?\b`)
	percentTokRe  = regexp.MustCompile(`\b[0-9]+(?:\.[0-9]+)?%`)
	floatTokRe    = regexp.MustCompile(`\b[0-9]+(?:\.[0-9]+)?\b`)
)

// HasDomainToken reports whether s contains something domain-shaped.
func HasDomainToken(s string) bool {
	return domainTokenRe.MatchString(s)
}

// HasMetricToken reports whether s contains a suffixed number, an HH:MM:SS
// duration, or a percentage.
func HasMetricToken(s string) bool {
	return suffixedNumRe.MatchString(s) ||
		durationTokRe.MatchString(s) ||
		percentTokRe.MatchString(s)
}

// firstDomainToken returns the first domain-shaped token in s, or "".
func firstDomainToken(s string) string {
	return domainTokenRe.FindString(s)
}

// labelValue finds label in text (case-insensitive) and returns the first
// token matching valueRe within window bytes after it. The proximity window
// is the fallback for labels whose exact "label value" phrasing changed.
func labelValue(text, label string, valueRe *regexp.Regexp, window int) string {
	labelRe := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(label))
	loc := labelRe.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	end := loc[1] + window
	if end > len(text) {
		end = len(text)
	}
	return valueRe.FindString(text[loc[1]:end])
}

// firstLabelValue tries each label in order against text.
func firstLabelValue(text string, labels []string, valueRe *regexp.Regexp, window int) string {
	for _, l := range labels {
		if v := labelValue(text, l, valueRe, window); v != "" {
			return v
		}
	}
	return ""
}
