package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	asinPattern = regexp.MustCompile(`(?i)/(?:dp|gp/product|gp/aw/d|exec/obidos/asin)/([A-Z0-9]{10})(?:[/?#]|$)`)
	asinShape   = regexp.MustCompile(`^[A-Z0-9]{10}$`)
)

// ValidASIN reports whether s is a 10 character upper-case alphanumeric id.
func ValidASIN(s string) bool {
	return asinShape.MatchString(s)
}

// ExtractASIN pulls the ASIN out of an Amazon product URL.
func ExtractASIN(rawURL string) (string, bool) {
	matches := asinPattern.FindStringSubmatch(strings.TrimSpace(rawURL))
	if len(matches) < 2 {
		return "", false
	}
	return strings.ToUpper(matches[1]), true
}

// CanonicalProductURL builds the short /dp/ form used for deduplication.
func CanonicalProductURL(baseURL, asin string) string {
	return fmt.Sprintf("%s/dp/%s", strings.TrimRight(baseURL, "/"), asin)
}

// SearchURL builds the search page URL for a term. Page 1 carries no page
// parameter, matching what Amazon links to from its own search box.
func SearchURL(baseURL, term string, page int) string {
	q := url.Values{}
	q.Set("k", term)
	if page > 1 {
		q.Set("page", fmt.Sprintf("%d", page))
	}
	return fmt.Sprintf("%s/s?%s", strings.TrimRight(baseURL, "/"), q.Encode())
}

func absoluteURL(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "/") {
		return strings.TrimRight(baseURL, "/") + href
	}
	return href
}

// CurrencyFor guesses the storefront currency from its base URL.
func CurrencyFor(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "USD"
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.HasSuffix(host, ".co.uk"):
		return "GBP"
	case strings.HasSuffix(host, ".de"), strings.HasSuffix(host, ".fr"),
		strings.HasSuffix(host, ".it"), strings.HasSuffix(host, ".es"),
		strings.HasSuffix(host, ".nl"):
		return "EUR"
	case strings.HasSuffix(host, ".ca"):
		return "CAD"
	case strings.HasSuffix(host, ".co.jp"):
		return "JPY"
	case strings.HasSuffix(host, ".in"):
		return "INR"
	default:
		return "USD"
	}
}
