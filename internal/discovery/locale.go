package discovery

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

// localeShape matches ll, ll-RR, ll-Ssss, ll-Ssss-RR and ll-NNN.
var localeShape = regexp.MustCompile(`^[a-zA-Z]{2}([-_]([a-zA-Z]{2}|[0-9]{3}|[a-zA-Z]{4}([-_][a-zA-Z]{2})?))?$`)

var localeQueryParams = []string{"hl", "lang", "locale"}

// localeHint is one place a URL may carry its locale. A bare language code
// in the path or host ("/no/", "id.example.com") is weak: it only counts
// when the URL set holds another version of the same page.
type localeHint struct {
	tag  language.Tag
	weak bool
	rest string // the URL without the locale part
}

// localeHints lists the candidate locales of u in priority order: first
// path segment, hl/lang/locale query parameters, leftmost subdomain label.
func localeHints(u *url.URL) []localeHint {
	var hints []localeHint
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if tag, ok := parseLocale(parts[0]); ok {
		rest := ""
		if len(parts) == 2 {
			rest = parts[1]
		}
		hints = append(hints, localeHint{
			tag:  tag,
			weak: len(parts[0]) == 2,
			rest: identity(host, "/"+rest, u.RawQuery),
		})
	}

	query := u.Query()
	for _, key := range localeQueryParams {
		if tag, ok := parseLocale(query.Get(key)); ok {
			hints = append(hints, localeHint{tag: tag})
			break
		}
	}

	labels := strings.Split(host, ".")
	if len(labels) >= 3 {
		if tag, ok := parseLocale(labels[0]); ok {
			hints = append(hints, localeHint{
				tag:  tag,
				weak: len(labels[0]) == 2,
				rest: identity(strings.Join(labels[1:], "."), u.Path, u.RawQuery),
			})
		}
	}

	return hints
}

func identity(host, path, rawQuery string) string {
	if path == "" {
		path = "/"
	}
	return host + path + "?" + rawQuery
}

func parseLocale(s string) (language.Tag, bool) {
	if !localeShape.MatchString(s) {
		return language.Und, false
	}
	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

// localeIndex records which pages of a URL set exist in more than one
// version, so bare language codes can be told apart from ordinary words.
type localeIndex struct {
	identities map[string]bool
	variants   map[string]map[string]bool
}

func newLocaleIndex(urls []*url.URL) *localeIndex {
	ix := &localeIndex{
		identities: make(map[string]bool, len(urls)),
		variants:   make(map[string]map[string]bool),
	}
	for _, u := range urls {
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		ix.identities[identity(host, u.Path, u.RawQuery)] = true
		for _, h := range localeHints(u) {
			if h.rest == "" {
				continue
			}
			if ix.variants[h.rest] == nil {
				ix.variants[h.rest] = make(map[string]bool)
			}
			ix.variants[h.rest][h.tag.String()] = true
		}
	}
	return ix
}

// detect returns the locale u is written for. Region and script forms and
// query parameters always count. A bare language code counts only when the
// index holds the same page without it or under another locale.
func (ix *localeIndex) detect(u *url.URL) (language.Tag, bool) {
	for _, h := range localeHints(u) {
		if !h.weak || ix.identities[h.rest] || len(ix.variants[h.rest]) >= 2 {
			return h.tag, true
		}
	}
	return language.Und, false
}

// FilterDefaultLocale keeps URLs without a detectable locale and URLs whose
// locale shares the default locale's base language. Order is preserved.
func FilterDefaultLocale(urls []string, defaultLocale string) []string {
	def, err := language.Parse(defaultLocale)
	if err != nil {
		def = language.English
	}
	defBase, _ := def.Base()

	parsed := make([]*url.URL, len(urls))
	valid := make([]*url.URL, 0, len(urls))
	for i, raw := range urls {
		if u, err := url.Parse(raw); err == nil {
			parsed[i] = u
			valid = append(valid, u)
		}
	}
	ix := newLocaleIndex(valid)

	kept := make([]string, 0, len(urls))
	for i, raw := range urls {
		if parsed[i] == nil {
			kept = append(kept, raw)
			continue
		}
		tag, ok := ix.detect(parsed[i])
		if !ok {
			kept = append(kept, raw)
			continue
		}
		if base, _ := tag.Base(); base == defBase {
			kept = append(kept, raw)
		}
	}
	return kept
}
