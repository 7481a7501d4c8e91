package reverse

import (
	"log/slog"
	"strings"
)

// Rule maps a request path prefix onto a backend base URL.
type Rule struct {
	Path string
	URL  string
}

// Registry is the ordered rule table. Fill it during configuration load;
// lookups after that need no locking.
type Registry struct {
	rules  []Rule // newest first
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Add registers a rule for path. An empty path means "/". Invalid rules
// are logged and dropped; Add reports whether the rule was kept.
func (r *Registry) Add(path, url string) bool {
	if url == "" {
		r.logger.Warn("Illegal reverse proxy rule: missing url")
		return false
	}

	if !strings.Contains(url, "://") {
		r.logger.Warn("Skipping reverse proxy rule: not a valid url",
			slog.String("url", url))
		return false
	}

	if path != "" && path[0] != '/' {
		r.logger.Warn("Skipping reverse proxy rule: path doesn't start with a /",
			slog.String("path", path))
		return false
	}

	if path == "" {
		path = "/"
	}

	r.rules = append([]Rule{{Path: path, URL: url}}, r.rules...)

	r.logger.Info("Added reverse proxy rule",
		slog.String("path", path),
		slog.String("url", url))
	return true
}

// Lookup returns the first rule, newest first, whose path is a byte-wise
// prefix of url. "/foo" matches "/foobar".
func (r *Registry) Lookup(url string) (Rule, bool) {
	for _, rule := range r.rules {
		if strings.HasPrefix(url, rule.Path) {
			return rule, true
		}
	}
	return Rule{}, false
}

func (r *Registry) Len() int {
	return len(r.rules)
}

// Rules returns a copy of the table in lookup order.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}
