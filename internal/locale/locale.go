// Package locale normalizes user-supplied locale strings into the small set
// the genmoji service translates facet labels for. The client attaches the
// normalized value to every request; it never tries to detect a locale on
// its own.
package locale

import (
	"strings"

	"golang.org/x/text/language"
)

var supported = []language.Tag{
	language.English, // fallback, must stay first
	language.Japanese,
	language.Korean,
	language.SimplifiedChinese,
	language.Spanish,
	language.French,
	language.German,
	language.Indonesian,
}

var matcher = language.NewMatcher(supported)

// Default is the locale used when nothing usable was supplied.
const Default = "en"

// Normalize maps an arbitrary BCP 47 string (or comma-separated list, as in
// an Accept-Language header) onto a supported locale. Unparseable or
// unsupported input yields Default.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Default
	}
	tags, _, err := language.ParseAcceptLanguage(raw)
	if err != nil || len(tags) == 0 {
		return Default
	}
	_, index, conf := matcher.Match(tags...)
	if conf == language.No {
		return Default
	}
	base, _ := supported[index].Base()
	return base.String()
}
