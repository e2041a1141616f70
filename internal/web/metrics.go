// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// metrics are exported on /metrics from a registry owned by the server.
type metrics struct {
	registry *prometheus.Registry

	conversions *prometheus.CounterVec
	duration    prometheus.Histogram
	tiles       *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdf2shp",
			Name:      "conversions_total",
			Help:      "Uploaded documents converted, by result status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pdf2shp",
			Name:      "conversion_duration_seconds",
			Help:      "Time spent converting an uploaded document.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		tiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdf2shp",
			Name:      "tile_requests_total",
			Help:      "Basemap tile requests, by provider and result.",
		}, []string{"provider", "result"}),
	}
	m.registry.MustRegister(
		m.conversions,
		m.duration,
		m.tiles,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
