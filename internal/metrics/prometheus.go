package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder exports metrics through a dedicated Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	redirects        *prometheus.CounterVec
	redirectCache    *prometheus.CounterVec
	redirectDuration prometheus.Histogram
	deviceCache      *prometheus.CounterVec
	geoLookups       *prometheus.CounterVec
	analyticsWrites  *prometheus.CounterVec
	analyticsEvents  *prometheus.CounterVec
	batchSize        prometheus.Histogram
	batchDuration    prometheus.Histogram
	queueDepth       prometheus.Gauge
	ingestLag        prometheus.Histogram
	retentionPurged  prometheus.Counter
	eventSinkPushes  *prometheus.CounterVec
}

// NewPrometheus builds a Recorder backed by a fresh registry with Go and process collectors.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		redirects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smartlinks_redirects_total",
			Help: "Redirect requests by outcome",
		}, []string{"outcome"}),
		redirectCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smartlinks_link_cache_lookups_total",
			Help: "Link cache lookups by result",
		}, []string{"result"}),
		redirectDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartlinks_redirect_duration_seconds",
			Help:    "Time spent resolving a redirect",
			Buckets: prometheus.DefBuckets,
		}),
		deviceCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smartlinks_device_cache_lookups_total",
			Help: "Device detection cache lookups by result",
		}, []string{"result"}),
		geoLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smartlinks_geo_lookups_total",
			Help: "IP geolocation lookups by result",
		}, []string{"result"}),
		analyticsWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smartlinks_analytics_writes_total",
			Help: "Analytics event writes by status",
		}, []string{"status"}),
		analyticsEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smartlinks_analytics_events_processed_total",
			Help: "Analytics stream events processed by the worker",
		}, []string{"status"}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartlinks_analytics_batch_size",
			Help:    "Analytics worker batch sizes",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartlinks_analytics_batch_duration_seconds",
			Help:    "Analytics worker batch processing time",
			Buckets: prometheus.DefBuckets,
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "smartlinks_analytics_queue_depth",
			Help: "Pending entries in the analytics stream",
		}),
		ingestLag: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartlinks_analytics_ingest_lag_seconds",
			Help:    "Delay between click and analytics persistence",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60, 300},
		}),
		retentionPurged: f.NewCounter(prometheus.CounterOpts{
			Name: "smartlinks_retention_purged_rows_total",
			Help: "Analytics rows removed by the retention sweep",
		}),
		eventSinkPushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smartlinks_event_sink_pushes_total",
			Help: "Outbound event sink pushes by status",
		}, []string{"status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *PrometheusRecorder) IncRedirect(outcome string) {
	p.redirects.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncRedirectCacheHit() {
	p.redirectCache.WithLabelValues("hit").Inc()
}

func (p *PrometheusRecorder) IncRedirectCacheMiss() {
	p.redirectCache.WithLabelValues("miss").Inc()
}

func (p *PrometheusRecorder) ObserveRedirectDuration(duration time.Duration) {
	p.redirectDuration.Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncDeviceCache(hit bool) {
	if hit {
		p.deviceCache.WithLabelValues("hit").Inc()
		return
	}
	p.deviceCache.WithLabelValues("miss").Inc()
}

func (p *PrometheusRecorder) IncGeoLookup(result string) {
	p.geoLookups.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) IncAnalyticsWrite(status string) {
	p.analyticsWrites.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncAnalyticsEventProcessed(status string) {
	p.analyticsEvents.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveAnalyticsBatchSize(size int) {
	p.batchSize.Observe(float64(size))
}

func (p *PrometheusRecorder) ObserveAnalyticsBatchDuration(duration time.Duration) {
	p.batchDuration.Observe(duration.Seconds())
}

func (p *PrometheusRecorder) SetAnalyticsQueueDepth(depth int64) {
	p.queueDepth.Set(float64(depth))
}

func (p *PrometheusRecorder) ObserveAnalyticsIngestLag(lag time.Duration) {
	p.ingestLag.Observe(lag.Seconds())
}

func (p *PrometheusRecorder) AddRetentionPurged(rows int64) {
	p.retentionPurged.Add(float64(rows))
}

func (p *PrometheusRecorder) IncEventSinkPush(status string) {
	p.eventSinkPushes.WithLabelValues(status).Inc()
}
