package devserver

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/oschwald/geoip2-golang"

	"genmoji/internal/locale"
)

type localeCtxKey struct{}

// countryLookup resolves an ISO country code for an IP address; nil when no
// GeoIP database is configured.
type countryLookup func(ip string) (string, error)

// countryLocales maps a country to a locale for clients that send neither
// an explicit locale nor an Accept-Language header.
var countryLocales = map[string]string{
	"JP": "ja",
	"KR": "ko",
	"CN": "zh",
	"ID": "id",
	"ES": "es",
	"MX": "es",
	"FR": "fr",
	"DE": "de",
}

// newGeoLookup opens the GeoIP2 database at path. An empty path disables
// country lookups without error.
func newGeoLookup(path string) (countryLookup, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return func(ip string) (string, error) {
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return "", nil
		}
		record, err := reader.Country(parsed)
		if err != nil || record == nil {
			return "", err
		}
		return record.Country.IsoCode, nil
	}, nil
}

// localeMiddleware stores the request's resolved locale in the context.
// Resolution order: explicit locale query param (what the genmoji client
// sends), X-Locale header, Accept-Language, then GeoIP country fallback.
func localeMiddleware(lookup countryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := detectLocale(r, lookup)
			ctx := context.WithValue(r.Context(), localeCtxKey{}, loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, lookup countryLookup) string {
	if v := r.URL.Query().Get("locale"); v != "" {
		return locale.Normalize(v)
	}
	if v := r.Header.Get("X-Locale"); v != "" {
		return locale.Normalize(v)
	}
	if v := r.Header.Get("Accept-Language"); v != "" {
		return locale.Normalize(v)
	}
	if lookup != nil {
		if country, err := lookup(clientIP(r)); err == nil {
			if loc, ok := countryLocales[strings.ToUpper(country)]; ok {
				return loc
			}
		}
	}
	return locale.Default
}

// requestLocale returns the locale resolved by the middleware.
func requestLocale(r *http.Request) string {
	if v, ok := r.Context().Value(localeCtxKey{}).(string); ok {
		return v
	}
	return locale.Default
}

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
