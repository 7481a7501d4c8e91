package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/tinyproxy/internal/metrics"
)

func setupRouter(metricsCollector *metrics.Collector) (*http.ServeMux, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(metrics.NewPrometheusCollector(metricsCollector)); err != nil {
		return nil, err
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/metrics.json", metricsCollector.Handler())

	return mux, nil
}
