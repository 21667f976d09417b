// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// アップロード結果のラベル値
const (
	UploadStored   = "stored"
	UploadRejected = "rejected"
	UploadFailed   = "failed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordUpload(result string, sizeBytes int64)
	RecordAuthFailure(guard string)
	RecordLogin(success bool)
	RecordReset(failedSteps int)
	SetSlotOccupied(occupied bool)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	uploads        *prometheus.CounterVec
	uploadBytes    prometheus.Histogram
	authFailures   *prometheus.CounterVec
	logins         *prometheus.CounterVec
	resets         *prometheus.CounterVec
	slotOccupied   prometheus.Gauge
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cabinet_uploads_total",
			Help: "結果別のアップロード数",
		}, []string{"result"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cabinet_upload_size_bytes",
			Help:    "保存されたファイルのサイズ（バイト）",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cabinet_auth_failures_total",
			Help: "ガード別の認証失敗数",
		}, []string{"guard"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cabinet_logins_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cabinet_resets_total",
			Help: "結果別のシステムリセット数",
		}, []string{"result"}),
		slotOccupied: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cabinet_slot_occupied",
			Help: "スロットにファイルが保存されている場合は1",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cabinet_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cabinet_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.uploads,
		c.uploadBytes,
		c.authFailures,
		c.logins,
		c.resets,
		c.slotOccupied,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordUpload はアップロード結果を記録する。保存成功時のみサイズを観測する。
func (c *Collector) RecordUpload(result string, sizeBytes int64) {
	c.uploads.WithLabelValues(result).Inc()
	if result == UploadStored {
		c.uploadBytes.Observe(float64(sizeBytes))
	}
}

// RecordAuthFailure はガードでの認証失敗を記録する。
func (c *Collector) RecordAuthFailure(guard string) {
	c.authFailures.WithLabelValues(guard).Inc()
}

// RecordLogin はログイン試行を記録する。
func (c *Collector) RecordLogin(success bool) {
	c.logins.WithLabelValues(resultLabel(success)).Inc()
}

// RecordReset はシステムリセットを記録する。
func (c *Collector) RecordReset(failedSteps int) {
	c.resets.WithLabelValues(resultLabel(failedSteps == 0)).Inc()
}

// SetSlotOccupied はスロットの状態を記録する。
func (c *Collector) SetSlotOccupied(occupied bool) {
	if occupied {
		c.slotOccupied.Set(1)
		return
	}
	c.slotOccupied.Set(0)
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
