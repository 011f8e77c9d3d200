package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airolog_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "airolog_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	LogUploads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airolog_log_uploads_total",
		Help: "Total number of flight log uploads accepted",
	})

	LogUploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "airolog_log_upload_bytes",
		Help:    "Size distribution of uploaded flight logs",
		Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
	})

	ParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airolog_parse_failures_total",
		Help: "Total number of uploaded files the log reader rejected",
	})

	ExtractDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "airolog_extract_duration_seconds",
		Help:    "Metadata extraction duration per file",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	})
)
