package utils

import (
	"errors"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var urlRegex = regexp.MustCompile(`(?i)\b(?:https?://|www\.|discord\.gg/)[^\s<>]+`)

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "gclid"}

var ErrNoHost = errors.New("no host in url")

// ExtractURLs finds links in message content, including scheme-less www. and invite links.
func ExtractURLs(content string) []string {
	return urlRegex.FindAllString(content, -1)
}

// NormalizeURL returns the cleaned URL and its lower-case ASCII host.
func NormalizeURL(raw string) (string, string, error) {
	raw = strings.TrimRight(raw, ".,;:!?)]}>\"'")
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}

	host := NormalizeDomain(parsed.Hostname())
	if host == "" {
		return "", "", ErrNoHost
	}

	parsed.Host = host
	if port := parsed.Port(); port != "" {
		parsed.Host = host + ":" + port
	}
	parsed.Fragment = ""
	parsed.User = nil

	query := parsed.Query()
	for _, key := range trackingParams {
		query.Del(key)
	}
	parsed.RawQuery = normalizeQuery(query)

	return parsed.String(), host, nil
}

// NormalizeDomain turns user input ("https://WWW.Example.com/x", "bücher.de") into the
// host form links are compared in.
func NormalizeDomain(input string) string {
	host := strings.ToLower(strings.TrimSpace(input))
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	host = strings.TrimPrefix(strings.TrimSuffix(host, "."), "www.")
	if ascii, err := idna.ToASCII(host); err == nil {
		host = ascii
	}
	return host
}

func normalizeQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clean := url.Values{}
	for _, key := range keys {
		clean[key] = values[key]
	}
	return clean.Encode()
}

// DomainAllowed reports whether host or one of its parent domains is listed.
func DomainAllowed(host string, allowlist map[string]struct{}) bool {
	host = strings.ToLower(host)
	for host != "" {
		if _, ok := allowlist[host]; ok {
			return true
		}
		i := strings.Index(host, ".")
		if i < 0 {
			return false
		}
		host = host[i+1:]
	}
	return false
}
