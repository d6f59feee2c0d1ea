// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ID解決の結果ラベル
const (
	OutcomeCreated   = "created"
	OutcomeRefreshed = "refreshed"
	OutcomeRejected  = "rejected"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordIdentityResolution(outcome string)
	RecordProductMutation(operation string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(method, route string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	identityResolutions *prometheus.CounterVec
	productMutations    *prometheus.CounterVec
	httpStatus          *prometheus.CounterVec
	requestLatency      *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		identityResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockroom_identity_resolutions_total",
			Help: "外部IDからのユーザー解決の結果別件数",
		}, []string{"outcome"}),
		productMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockroom_product_mutations_total",
			Help: "商品の作成・更新・削除の操作別件数",
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockroom_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockroom_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.identityResolutions,
		c.productMutations,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordIdentityResolution はID解決の結果を記録する。
func (c *Collector) RecordIdentityResolution(outcome string) {
	c.identityResolutions.WithLabelValues(outcome).Inc()
}

// RecordProductMutation は商品の変更操作を記録する。
func (c *Collector) RecordProductMutation(operation string) {
	c.productMutations.WithLabelValues(operation).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
// routeにはパスパラメータを展開しないルートパターンを渡す。
func (c *Collector) RecordRequestLatency(method, route string, duration time.Duration) {
	c.requestLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
