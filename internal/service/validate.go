package service

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// Paging bounds shared by list operations.
const (
	defaultLimit = 20
	maxLimit     = 100
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}

// validHTTPURL reports whether s is an absolute http(s) URL with a host.
func validHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func tooLong(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}

// normalizeTags trims, lowercases and deduplicates tags, dropping empties.
func normalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
