// Package scanner decides, from the current document, whether a freshly typed
// URL should have its link preview fetched.
package scanner

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"threadlink/internal/domain"
	"threadlink/internal/draft"
)

var (
	urlPattern       = regexp.MustCompile(`(?i)(?:(?:https?|ftp)://)?(?:www\.)?[-a-z0-9@:%._+~#=]{1,256}\.[a-z]{2,6}\b[-a-z0-9@:%_+.~#?&/=]*`)
	hasHTTPScheme    = regexp.MustCompile(`(?i)^https?://`)
	tldPattern       = regexp.MustCompile(`(?i)^[a-z\x{00a1}-\x{ffff}]{2,}$`)

	validate = validator.New()
)

// Result is the outcome of a scan. The zero value means "do nothing".
type Result struct {
	URL string
}

// None is the no-op result.
var None = Result{}

// ShouldFetch reports whether a preview fetch should be started.
func (r Result) ShouldFetch() bool {
	return r.URL != ""
}

// Scan inspects doc after an edit. It returns a fetch result only when the
// user has just finished typing a URL that has not been checked yet.
func Scan(doc draft.Document, existing *domain.LinkPreview, previousURLCount int) Result {
	if existing != nil {
		return None
	}
	if !doc.LastChangeType().IsTyping() {
		return None
	}

	text := doc.PlainText()
	if !endsInWhitespace(text) {
		return None
	}

	matches := Matches(text)
	if len(matches) == 0 {
		return None
	}
	if len(matches) == previousURLCount {
		return None
	}

	candidate := Normalize(matches[len(matches)-1])
	if !IsValidURL(candidate) {
		return None
	}
	return Result{URL: candidate}
}

// endsInWhitespace reports whether the last rune of text is any Unicode
// space, including the no-break spaces editors insert.
func endsInWhitespace(text string) bool {
	r, size := utf8.DecodeLastRuneInString(text)
	return size > 0 && unicode.IsSpace(r)
}

// Matches returns every URL-shaped substring of text, in order.
func Matches(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// Normalize trims s and adds an https scheme when it has no http(s) one.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if !hasHTTPScheme.MatchString(s) {
		s = "https://" + s
	}
	return s
}

// IsValidURL reports whether s is a well-formed http(s) URL whose host ends in
// a top-level domain.
func IsValidURL(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	if err := validate.Var(s, "required,http_url"); err != nil {
		return false
	}

	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	host := u.Hostname()
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if l == "" || strings.ContainsRune(l, '_') || strings.HasPrefix(l, "-") || strings.HasSuffix(l, "-") {
			return false
		}
	}
	return tldPattern.MatchString(labels[len(labels)-1])
}
