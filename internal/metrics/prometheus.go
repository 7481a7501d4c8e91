package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	descRewrites = prometheus.NewDesc(
		"tinyproxy_rewrites_total",
		"Requests rewritten by a reverse proxy rule",
		[]string{"rule", "match"}, nil,
	)
	descUpstreamFailures = prometheus.NewDesc(
		"tinyproxy_upstream_failures_total",
		"Upstream connections that could not be established",
		[]string{"rule"}, nil,
	)
	descResponses = prometheus.NewDesc(
		"tinyproxy_responses_total",
		"Responses relayed to clients",
		[]string{"rule", "code"}, nil,
	)
	descResponseP95 = prometheus.NewDesc(
		"tinyproxy_response_p95_seconds",
		"95th percentile upstream response time",
		[]string{"rule"}, nil,
	)
	descDenied = prometheus.NewDesc(
		"tinyproxy_denied_total",
		"Requests refused in reverse-only mode",
		nil, nil,
	)
	descPassThrough = prometheus.NewDesc(
		"tinyproxy_pass_through_total",
		"Requests handed to the forward proxy",
		nil, nil,
	)
)

// PrometheusCollector exports collector snapshots.
type PrometheusCollector struct {
	source *Collector
}

func NewPrometheusCollector(source *Collector) *PrometheusCollector {
	return &PrometheusCollector{source: source}
}

func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descRewrites
	ch <- descUpstreamFailures
	ch <- descResponses
	ch <- descResponseP95
	ch <- descDenied
	ch <- descPassThrough
}

func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := p.source.Snapshot()

	ch <- prometheus.MustNewConstMetric(descDenied, prometheus.CounterValue, float64(snap.Denied))
	ch <- prometheus.MustNewConstMetric(descPassThrough, prometheus.CounterValue, float64(snap.PassThrough))

	for rule, rm := range snap.Rules {
		ch <- prometheus.MustNewConstMetric(descRewrites, prometheus.CounterValue, float64(rm.Rewrites), rule, "path")
		ch <- prometheus.MustNewConstMetric(descRewrites, prometheus.CounterValue, float64(rm.CookieRewrites), rule, "cookie")
		ch <- prometheus.MustNewConstMetric(descUpstreamFailures, prometheus.CounterValue, float64(rm.UpstreamFailures), rule)
		ch <- prometheus.MustNewConstMetric(descResponseP95, prometheus.GaugeValue, rm.P95Response.Seconds(), rule)

		for code, n := range rm.StatusCodes {
			ch <- prometheus.MustNewConstMetric(descResponses, prometheus.CounterValue, float64(n), rule, strconv.Itoa(code))
		}
	}
}
