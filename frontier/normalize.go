// Package frontier resolves and normalizes catalog URLs so that the same page
// reached through different links compares equal in the crawl frontiers.
package frontier

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// trackingParams do not affect page content and are dropped.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"yclid":        {},
	"msclkid":      {},
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

var (
	errEmptyInput          = errors.New("normalize url: empty input")
	errMissingSchemeOrHost = errors.New("normalize url: missing scheme or host")
	errUnsupportedScheme   = errors.New("normalize url: unsupported scheme")
)

// Normalize lowercases scheme and host, removes default ports, resolves
// dot-segments, drops the fragment, and sorts query parameters after stripping
// tracking parameters. The scheme is kept as-is.
func Normalize(rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", errEmptyInput
	}
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	return normalizeParsed(parsed)
}

// Resolve makes href absolute against base and normalizes the result.
func Resolve(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", errEmptyInput
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("resolve base %q: %w", base, err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("resolve href %q: %w", href, err)
	}
	return normalizeParsed(baseURL.ResolveReference(ref))
}

// URLHash returns the SHA-256 hex digest of the normalized URL.
func URLHash(rawURL string) (string, error) {
	normalized, err := Normalize(rawURL)
	if err != nil {
		return "", fmt.Errorf("url hash: %w", err)
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}

// Host returns the lowercased hostname of rawURL without port.
func Host(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("extract host: %w", err)
	}
	if parsed.Host == "" {
		return "", errMissingSchemeOrHost
	}
	return strings.ToLower(parsed.Hostname()), nil
}

func normalizeParsed(u *url.URL) (string, error) {
	if u.Scheme == "" || u.Host == "" {
		return "", errMissingSchemeOrHost
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %s", errUnsupportedScheme, scheme)
	}

	out := *u
	out.Scheme = scheme
	out.Host = normalizeHost(u, scheme)
	out.Fragment = ""
	out.RawFragment = ""
	out.RawQuery = buildCleanQuery(u.Query())
	out.Path = normalizePath(u.Path)
	out.RawPath = ""
	return out.String(), nil
}

func normalizeHost(u *url.URL, scheme string) string {
	hostname := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" || defaultPorts[scheme] == port {
		return hostname
	}
	return hostname + ":" + port
}

func buildCleanQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if _, tracking := trackingParams[strings.ToLower(key)]; !tracking {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		for _, val := range values[key] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(val))
		}
	}
	return b.String()
}

// normalizePath resolves dot-segments and trailing slashes, keeping root "/".
func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	return strings.TrimRight(path.Clean(p), "/")
}
