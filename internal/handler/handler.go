package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"syscall"
	"time"

	"github.com/angeloszaimis/tinyproxy/internal/metrics"
	"github.com/angeloszaimis/tinyproxy/internal/reverse"
	"github.com/angeloszaimis/tinyproxy/internal/sock"
	"github.com/angeloszaimis/tinyproxy/pkg/logger"
)

const peerLookupTimeout = 5 * time.Second

// Establisher opens upstream connections and identifies clients.
// *sock.Establisher implements it.
type Establisher interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
	PeerInfo(ctx context.Context, fd int) (ip, host string, err error)
}

type ProxyHandler struct {
	logger           *slog.Logger
	engine           *reverse.Engine
	establisher      Establisher
	metricsCollector *metrics.Collector
	proxy            *httputil.ReverseProxy
}

type exchangeKey struct{}

// exchange carries the routing outcome from ServeHTTP to the reverse proxy
// callbacks.
type exchange struct {
	conn   *requestConn
	target *url.URL
	rule   string
}

func NewProxyHandler(logger *slog.Logger, engine *reverse.Engine, establisher Establisher, collector *metrics.Collector) *ProxyHandler {
	h := &ProxyHandler{
		logger:           logger,
		engine:           engine,
		establisher:      establisher,
		metricsCollector: collector,
	}

	h.proxy = &httputil.ReverseProxy{
		Rewrite:        h.rewriteOutbound,
		ModifyResponse: h.modifyResponse,
		ErrorHandler:   h.handleUpstreamError,
		Transport: &http.Transport{
			DialContext:           establisher.DialContext,
			DisableKeepAlives:     true,
			ResponseHeaderTimeout: 60 * time.Second,
		},
	}

	return h
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.logger.Log(ctx, logger.LevelConn, "Request",
		slog.String("from", r.RemoteAddr),
		slog.String("method", r.Method),
		slog.String("uri", r.RequestURI),
		slog.String("proto", r.Proto))

	rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	conn := &requestConn{w: rec, start: time.Now()}

	res, err := h.engine.Rewrite(ctx, conn, r.Header, r.RequestURI)
	if errors.Is(err, reverse.ErrRoutingDenied) {
		h.metricsCollector.Emit(metrics.MetricEvent{Type: metrics.EventDenied})
		return
	}

	ex := &exchange{conn: conn}

	switch {
	case res.Rewritten():
		target, err := url.Parse(res.URL)
		if err != nil || target.Host == "" {
			h.logger.Error("Rewritten URL is not usable",
				slog.String("url", res.URL),
				slog.String("rule", res.Rule.Path))
			h.metricsCollector.Emit(metrics.MetricEvent{Type: metrics.EventDenied})
			_ = conn.IndicateError(http.StatusBadRequest, "Bad Request",
				"detail", "Reverse proxy rule produced an invalid URL",
				"url", res.URL)
			return
		}
		ex.target = target
		ex.rule = res.Rule.Path

		eventType := metrics.EventRewritten
		if res.ViaCookie {
			eventType = metrics.EventCookieRewritten
		}
		h.metricsCollector.Emit(metrics.MetricEvent{Type: eventType, Rule: ex.rule})

	case r.URL.IsAbs() && r.URL.Host != "":
		target := *r.URL
		ex.target = &target
		h.metricsCollector.Emit(metrics.MetricEvent{Type: metrics.EventPassThrough})

	default:
		h.logger.Warn("Unknown destination", slog.String("uri", r.RequestURI))
		h.metricsCollector.Emit(metrics.MetricEvent{Type: metrics.EventDenied})
		_ = conn.IndicateError(http.StatusBadRequest, "Bad Request",
			"detail", "Unknown destination",
			"url", r.RequestURI)
		return
	}

	h.proxy.ServeHTTP(rec, r.WithContext(context.WithValue(ctx, exchangeKey{}, ex)))

	h.metricsCollector.Emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Rule:       ex.rule,
		Duration:   time.Since(conn.start),
		StatusCode: rec.statusCode,
	})
}

func (h *ProxyHandler) rewriteOutbound(pr *httputil.ProxyRequest) {
	ex := exchangeFrom(pr.In.Context())
	if ex == nil {
		return
	}

	out := *ex.target
	pr.Out.URL = &out
	pr.Out.Host = out.Host
	pr.Out.Header.Add("Via", strconv.Itoa(pr.In.ProtoMajor)+"."+strconv.Itoa(pr.In.ProtoMinor)+" tinyproxy")
}

func (h *ProxyHandler) modifyResponse(resp *http.Response) error {
	ex := exchangeFrom(resp.Request.Context())
	if ex == nil {
		return nil
	}

	opts := h.engine.Options()
	if !opts.MagicCookie {
		return nil
	}
	if cookie := reverse.AffinityCookie(opts.CookieName, ex.conn.RoutingState()); cookie != nil {
		resp.Header.Add("Set-Cookie", cookie.String())
	}
	return nil
}

func (h *ProxyHandler) handleUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	ex := exchangeFrom(r.Context())
	if ex == nil {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	if errors.Is(err, context.Canceled) {
		h.logger.Debug("Client went away", slog.String("url", ex.target.String()))
		return
	}

	h.metricsCollector.Emit(metrics.MetricEvent{Type: metrics.EventUpstreamFailed, Rule: ex.rule})

	host := ex.target.Hostname()
	h.logger.Error("Unable to connect to upstream",
		slog.String("host", host),
		slog.String("url", ex.target.String()),
		slog.String("error", err.Error()))

	if errors.Is(err, sock.ErrResolution) || errors.Is(err, sock.ErrConnect) {
		_ = ex.conn.IndicateError(http.StatusBadGateway, "Unable to connect",
			"detail", "Unable to connect to "+host,
			"error", err.Error())
		return
	}

	_ = ex.conn.IndicateError(http.StatusBadGateway, "Bad Gateway",
		"detail", "Upstream server "+host+" did not send a valid response",
		"error", err.Error())
}

// ConnState logs each accepted client with its address and best-effort
// hostname. Install it as the server's ConnState hook.
func (h *ProxyHandler) ConnState(c net.Conn, state http.ConnState) {
	if state != http.StateNew {
		return
	}
	go h.logPeer(c)
}

func (h *ProxyHandler) logPeer(c net.Conn) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), peerLookupTimeout)
	defer cancel()

	var (
		fd       int
		ip, host string
		peerErr  error
	)
	err = raw.Control(func(d uintptr) {
		fd = int(d)
		ip, host, peerErr = h.establisher.PeerInfo(ctx, fd)
	})
	if err != nil || peerErr != nil {
		h.logger.Warn("Unable to identify client",
			slog.String("remote", c.RemoteAddr().String()))
		return
	}

	h.logger.Log(ctx, logger.LevelConn, "Connect",
		slog.Int("fd", fd),
		slog.String("host", host),
		slog.String("ip", ip))
}

func exchangeFrom(ctx context.Context) *exchange {
	ex, _ := ctx.Value(exchangeKey{}).(*exchange)
	return ex
}
