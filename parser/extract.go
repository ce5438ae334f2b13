package parser

import "strings"

// Rule extracts one field from a node of any markup representation. It
// returns "" when the node does not carry the field.
type Rule[N any] func(node N) string

// FirstMatch applies rules in priority order and returns the first
// non-empty, trimmed result.
func FirstMatch[N any](node N, rules []Rule[N]) string {
	for _, rule := range rules {
		if rule == nil {
			continue
		}
		if value := strings.TrimSpace(rule(node)); value != "" {
			return value
		}
	}
	return ""
}

// FirstMatchOr is FirstMatch with a fallback for when no rule matches.
func FirstMatchOr[N any](node N, rules []Rule[N], fallback string) string {
	if value := FirstMatch(node, rules); value != "" {
		return value
	}
	return fallback
}

// FirstNumericToken returns the first whitespace-separated token of text if
// it is a plain decimal number ("4.5 out of 5 stars" gives "4.5").
func FirstNumericToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	token := fields[0]
	digits := strings.Replace(token, ".", "", 1)
	if digits == "" {
		return ""
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return token
}
