package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 指标管理器
type Metrics struct {
	registry *prometheus.Registry

	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 数据库指标
	dbQueryDuration *prometheus.HistogramVec

	// 缓存指标
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec

	// 告警业务指标
	alertsCreated        *prometheus.CounterVec
	fanoutDuration       prometheus.Histogram
	fanoutRecipients     prometheus.Histogram
	notificationsTotal   *prometheus.CounterVec
	broadcastsTotal      *prometheus.CounterVec
	guidanceTotal        *prometheus.CounterVec
	guidanceDuration     prometheus.Histogram
	websocketConnections prometheus.Gauge
}

// NewMetrics 创建指标管理器，所有指标注册在独立 registry 上
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		dbQueryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table", "status"},
		),

		cacheHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type", "operation"},
		),
		cacheMissesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type", "operation"},
		),

		alertsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilix_alerts_created_total",
				Help: "Alerts persisted, by alert type",
			},
			[]string{"alert_type"},
		),
		fanoutDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "resilix_fanout_duration_seconds",
			Help:    "Wall time of one alert fanout",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		fanoutRecipients: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "resilix_fanout_recipients",
			Help:    "Users attempted per fanout",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		notificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilix_notifications_total",
				Help: "Notification attempts by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		broadcastsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilix_broadcasts_total",
				Help: "Realtime broadcasts by outcome",
			},
			[]string{"outcome"},
		),
		guidanceTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilix_guidance_total",
				Help: "First-aid guidance generations by outcome",
			},
			[]string{"outcome"},
		),
		guidanceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "resilix_guidance_duration_seconds",
			Help:    "Guidance generation latency",
			Buckets: prometheus.DefBuckets,
		}),
		websocketConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "resilix_websocket_connections",
			Help: "Live realtime connections",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordHTTPRequest 记录HTTP请求指标
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDBQuery 记录数据库查询指标
func (m *Metrics) RecordDBQuery(operation, table, status string, duration time.Duration) {
	m.dbQueryDuration.WithLabelValues(operation, table, status).Observe(duration.Seconds())
}

// RecordCacheHit 记录缓存命中
func (m *Metrics) RecordCacheHit(cacheType, operation string) {
	m.cacheHitsTotal.WithLabelValues(cacheType, operation).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (m *Metrics) RecordCacheMiss(cacheType, operation string) {
	m.cacheMissesTotal.WithLabelValues(cacheType, operation).Inc()
}

func (m *Metrics) RecordAlertCreated(alertType string) {
	m.alertsCreated.WithLabelValues(alertType).Inc()
}

// RecordFanout 记录一次扇出的耗时与人数
func (m *Metrics) RecordFanout(attempted int, duration time.Duration) {
	m.fanoutRecipients.Observe(float64(attempted))
	m.fanoutDuration.Observe(duration.Seconds())
}

// RecordNotification outcome 取 success / failed / skipped
func (m *Metrics) RecordNotification(channel, outcome string) {
	m.notificationsTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) RecordBroadcast(outcome string) {
	m.broadcastsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordGuidance(outcome string, duration time.Duration) {
	m.guidanceTotal.WithLabelValues(outcome).Inc()
	m.guidanceDuration.Observe(duration.Seconds())
}

func (m *Metrics) SetWebsocketConnections(n int) {
	m.websocketConnections.Set(float64(n))
}
