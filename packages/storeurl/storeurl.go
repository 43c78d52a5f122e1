// Package storeurl canonicalizes user-submitted store URLs.
package storeurl

import (
	"strings"

	"shopharvest/packages/domain"
)

// Normalize trims, lower-cases, prefixes https:// when no scheme is present
// and strips trailing slashes. Total and idempotent.
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	// Strip every trailing slash, but never the scheme's own "//" — that
	// would un-prefix the string and break idempotence.
	for strings.HasSuffix(s, "/") && !strings.HasSuffix(s, "://") {
		s = strings.TrimSuffix(s, "/")
	}
	return s
}

// DisplayName derives a human-readable store identifier from a normalized
// URL. Purely cosmetic; fetch correctness never depends on it.
func DisplayName(normalized string) string {
	host := normalized
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if name, ok := strings.CutSuffix(host, ".myshopify.com"); ok {
		return name
	}
	if name, ok := strings.CutSuffix(host, ".com"); ok {
		return name
	}
	return host
}

// Target builds the canonical StoreTarget for a raw submission.
func Target(raw string) domain.StoreTarget {
	normalized := Normalize(raw)
	return domain.StoreTarget{
		NormalizedURL: normalized,
		DisplayName:   DisplayName(normalized),
	}
}
