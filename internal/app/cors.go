package app

import (
	"net/url"
	"strings"
)

// appSchemes are the webview origins the bundled mobile shells report.
// A native shell cannot present a real web origin, so these pass even
// when CORS is restricted; auth still rides on the bearer token.
var appSchemes = []string{"capacitor://", "ionic://"}

// allowOrigin builds the origin check for the configured patterns.
// Hosts match exactly, "*." prefixes match any subdomain, ":*" suffixes
// match any port.
func allowOrigin(patterns []string) func(origin string) bool {
	return func(origin string) bool {
		for _, scheme := range appSchemes {
			if strings.HasPrefix(origin, scheme) {
				return true
			}
		}
		host := originHost(origin)
		for _, pattern := range patterns {
			if matchOriginPattern(pattern, host) {
				return true
			}
		}
		return false
	}
}

func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

func matchOriginPattern(pattern, host string) bool {
	switch {
	case pattern == host:
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(host, pattern[1:])
	case strings.HasSuffix(pattern, ":*"):
		return strings.HasPrefix(host, pattern[:len(pattern)-1])
	default:
		return false
	}
}
