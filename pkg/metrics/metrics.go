// Package metrics はPrometheus形式のメトリクスを収集・公開する。
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// outcomeUnavailable は上流に到達できなかった呼び出しのラベル値。
const outcomeUnavailable = "unavailable"

// unmatchedRoute はどのルートにも一致しなかったリクエストのラベル値。
const unmatchedRoute = "unmatched"

// Metrics はBFFが公開するコレクタ一式を保持する。
// 専用のレジストリに登録するため、複数インスタンスを並行して生成できる。
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// New は新しいレジストリにコレクタを登録したMetricsを生成する。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "処理したHTTPリクエストの総数。",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTPリクエストの処理時間。",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms〜約10s
			},
			[]string{"method", "route"},
		),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_requests_total",
				Help: "上流サービスへのリクエストの総数。",
			},
			[]string{"service", "method", "outcome"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upstream_request_duration_seconds",
				Help:    "上流サービスへのリクエストの所要時間。",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"service"},
		),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.upstreamRequests,
		m.upstreamDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry はコレクタを登録したレジストリを返す。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler は登録済みメトリクスを公開するHTTPハンドラーを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware はリクエスト数と処理時間を記録するGinミドルウェアを返す。
// ルートラベルにはルート定義のパスを使い、パスパラメータによるラベル爆発を防ぐ。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := strings.ToUpper(c.Request.Method)

		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveUpstream は上流サービス呼び出しの結果を記録する。
// httpclient.Observerとして渡せるシグネチャを持つ。status が0の場合は到達不能として扱う。
func (m *Metrics) ObserveUpstream(service, method string, status int, elapsed time.Duration) {
	outcome := outcomeUnavailable
	if status > 0 {
		outcome = strconv.Itoa(status)
	}
	m.upstreamRequests.WithLabelValues(service, method, outcome).Inc()
	m.upstreamDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}
