package reverse

import (
	"net/http"
	"strings"
)

// DefaultCookieName is the name of the magic tracking cookie.
const DefaultCookieName = "yummy_magical_cookie"

// RoutingState is the per-connection record of the rule a request was
// routed through. The response path reads it to set the tracking cookie.
type RoutingState struct {
	MatchedPath string
}

// Matched reports whether a rule has been recorded.
func (s *RoutingState) Matched() bool {
	return s != nil && s.MatchedPath != ""
}

// Reset clears the state at the end of a request cycle.
func (s *RoutingState) Reset() {
	s.MatchedPath = ""
}

// AffinityCookie builds the tracking cookie for the rule recorded in s.
// It returns nil when no rule was matched.
func AffinityCookie(name string, s *RoutingState) *http.Cookie {
	if !s.Matched() {
		return nil
	}
	if name == "" {
		name = DefaultCookieName
	}
	return &http.Cookie{
		Name:  name,
		Value: s.MatchedPath,
		Path:  "/",
	}
}

// cookieValue finds name=value in a Cookie header and returns value, up to
// the next ';'.
func cookieValue(header, name string) (string, bool) {
	token := name + "="
	for offset := 0; offset < len(header); {
		i := strings.Index(header[offset:], token)
		if i < 0 {
			return "", false
		}
		i += offset

		if i == 0 || header[i-1] == ' ' || header[i-1] == ';' {
			value := header[i+len(token):]
			if j := strings.IndexByte(value, ';'); j >= 0 {
				value = value[:j]
			}
			return strings.TrimSpace(value), true
		}
		offset = i + 1
	}
	return "", false
}
