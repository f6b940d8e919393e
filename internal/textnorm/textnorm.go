// Package textnorm holds the text and URL normalization shared by ingestion,
// clustering and rewrite validation.
package textnorm

import (
	"net/url"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

var trackingQueryKeys = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"cmpid":   {},
	"ocid":    {},
}

// NormalizeText lowercases, drops control characters and collapses whitespace.
func NormalizeText(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

// Tokenize splits normalized text on anything that is not a letter or digit.
func Tokenize(text string) []string {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Fold reduces text to its case and punctuation insensitive form.
func Fold(text string) string {
	return strings.Join(Tokenize(text), " ")
}

// TitleKey builds the textual cluster key: lowercase keywords with
// punctuation and stopwords removed, truncated to maxWords words and maxChars
// characters.
func TitleKey(title string, maxWords, maxChars int) string {
	var (
		b     strings.Builder
		words int
		chars int
	)
	for _, token := range Tokenize(title) {
		if _, stop := stopwords[token]; stop {
			continue
		}
		if maxWords > 0 && words >= maxWords {
			break
		}

		tokenChars := utf8.RuneCountInString(token)
		if words > 0 {
			tokenChars++
		}
		if maxChars > 0 && chars+tokenChars > maxChars {
			if words == 0 {
				b.WriteString(string([]rune(token)[:maxChars]))
			}
			break
		}
		if words > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(token)
		words++
		chars += tokenChars
	}
	return b.String()
}

// KeySimilarity is the normalized Levenshtein ratio of two keys in [0, 1].
func KeySimilarity(left, right string) float64 {
	if left == right {
		return 1
	}
	maxLen := max(utf8.RuneCountInString(left), utf8.RuneCountInString(right))
	if maxLen == 0 {
		return 1
	}
	distance := levenshtein.ComputeDistance(left, right)
	return 1 - float64(distance)/float64(maxLen)
}

// CanonicalURL strips tracking parameters, fragments and default ports and
// sorts the query. It returns empty strings for anything that is not an
// absolute URL.
func CanonicalURL(raw string) (canonical string, host string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", ""
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", ""
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Hostname())
	if port := parsed.Port(); port != "" {
		defaultPort := (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443")
		if !defaultPort {
			parsed.Host = parsed.Host + ":" + port
		}
	}

	parsed.Fragment = ""
	path := strings.TrimSpace(parsed.EscapedPath())
	if path == "" {
		path = "/"
	}
	path = strings.ReplaceAll(path, "//", "/")
	if strings.HasSuffix(path, "/") && path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	parsed.Path = path
	parsed.RawPath = ""

	q := parsed.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingQueryKeys[lower]; ok {
			q.Del(key)
		}
	}
	if len(q) > 0 {
		keys := make([]string, 0, len(q))
		for key := range q {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		reordered := url.Values{}
		for _, key := range keys {
			values := q[key]
			sort.Strings(values)
			for _, value := range values {
				reordered.Add(key, value)
			}
		}
		parsed.RawQuery = reordered.Encode()
	} else {
		parsed.RawQuery = ""
	}

	return parsed.String(), parsed.Hostname()
}

// HostOf returns the lowercase host of raw without a leading "www.".
func HostOf(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// HostMatches reports whether host equals domain or is a subdomain of it.
func HostMatches(host, domain string) bool {
	host = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
	domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// Slug turns a publisher name or host into a stable lowercase identifier.
func Slug(text string) string {
	tokens := Tokenize(text)
	return strings.Join(tokens, "-")
}
