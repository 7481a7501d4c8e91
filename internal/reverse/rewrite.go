package reverse

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/angeloszaimis/tinyproxy/pkg/logger"
)

// ErrRoutingDenied is returned in reverse-only mode when no rule matches.
// The client has already been sent a 400 when it is returned.
var ErrRoutingDenied = errors.New("no reverse proxy rule matches request")

// Header is the read side of a request header map. http.Header satisfies
// it; lookups are expected to ignore case.
type Header interface {
	Get(key string) string
}

// Conn is the client connection a request arrived on.
type Conn interface {
	RoutingState() *RoutingState

	// IndicateError sends an error page to the client. details are
	// label/value pairs.
	IndicateError(status int, reason string, details ...string) error
}

type Options struct {
	// ReverseOnly rejects requests no rule matches instead of handing them
	// to the forward proxy.
	ReverseOnly bool

	// MagicCookie enables routing by the tracking cookie and recording of
	// the matched rule for the response path.
	MagicCookie bool

	CookieName string
}

// Result is the outcome of a rewrite. URL is empty when nothing matched.
type Result struct {
	URL       string
	Rule      Rule
	ViaCookie bool
}

func (r Result) Rewritten() bool {
	return r.URL != ""
}

// Engine rewrites request paths against a Registry.
type Engine struct {
	registry *Registry
	opts     Options
	logger   *slog.Logger
}

func NewEngine(registry *Registry, opts Options, logger *slog.Logger) *Engine {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: registry,
		opts:     opts,
		logger:   logger,
	}
}

func (e *Engine) Options() Options {
	return e.opts
}

// Rewrite maps url, a request path as sent by the client, onto a backend
// URL.
//
// A direct match replaces the matched prefix with the rule's URL. Failing
// that, and with the magic cookie enabled, the cookie's value is looked up
// as a path; a match there appends url minus its leading '/' to the rule's
// URL. In reverse-only mode a request that matched neither way gets a 400
// and ErrRoutingDenied. Otherwise an empty Result tells the caller to treat
// the request as a forward proxy request.
func (e *Engine) Rewrite(ctx context.Context, conn Conn, headers Header, url string) (Result, error) {
	var res Result

	if strings.HasPrefix(url, "/") {
		if rule, ok := e.registry.Lookup(url); ok {
			res = Result{
				URL:  rule.URL + url[len(rule.Path):],
				Rule: rule,
			}
		} else if e.opts.MagicCookie {
			res = e.rewriteByCookie(ctx, headers, url)
		}
	}

	if !res.Rewritten() && e.opts.ReverseOnly {
		e.logger.Error("Bad request", slog.String("url", url))
		if conn != nil {
			if err := conn.IndicateError(http.StatusBadRequest, "Bad Request",
				"detail", "Request has an invalid URL",
				"url", url); err != nil {
				e.logger.Warn("Unable to send error page", slog.String("error", err.Error()))
			}
		}
		return Result{}, ErrRoutingDenied
	}

	to := res.URL
	if to == "" {
		to = "(none)"
	}
	e.logger.Log(ctx, logger.LevelConn, "Rewriting URL",
		slog.String("from", url),
		slog.String("to", to))

	// Only a match made by this call may be recorded.
	if e.opts.MagicCookie && res.Rewritten() && conn != nil {
		if st := conn.RoutingState(); st != nil {
			st.MatchedPath = res.Rule.Path
		}
	}

	return res, nil
}

func (e *Engine) rewriteByCookie(ctx context.Context, headers Header, url string) Result {
	if headers == nil {
		return Result{}
	}

	cookie := headers.Get("Cookie")
	if cookie == "" {
		return Result{}
	}

	value, ok := cookieValue(cookie, e.opts.CookieName)
	if !ok {
		return Result{}
	}

	rule, ok := e.registry.Lookup(value)
	if !ok {
		return Result{}
	}

	e.logger.InfoContext(ctx, "Magical tracking cookie says",
		slog.String("path", rule.Path))

	return Result{
		URL:       rule.URL + url[1:],
		Rule:      rule,
		ViaCookie: true,
	}
}
