// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベルの値
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ブローカー、ミドルウェアから利用する。
type MetricsCollector interface {
	RecordRoomCreated(attempts int)
	RecordRoomJoin(result string)
	RecordUpload(result string, duration time.Duration)
	RecordPhotoUpserted()
	AddLiveSubscriptions(delta int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	roomsCreated      prometheus.Counter
	roomCodeAttempts  prometheus.Histogram
	roomJoins         *prometheus.CounterVec
	uploads           *prometheus.CounterVec
	uploadLatency     prometheus.Histogram
	photosUpserted    prometheus.Counter
	liveSubscriptions prometheus.Gauge
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoroom_rooms_created_total",
			Help: "作成されたルームの合計数",
		}),
		roomCodeAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "photoroom_room_code_attempts",
			Help:    "ルーム作成1回あたりのコード生成試行回数",
			Buckets: []float64{1, 2, 3, 5, 10},
		}),
		roomJoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoroom_room_joins_total",
			Help: "結果別のルーム参加試行数",
		}, []string{"result"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoroom_uploads_total",
			Help: "結果別の画像アップロード数",
		}, []string{"result"}),
		uploadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "photoroom_upload_latency_seconds",
			Help:    "外部アップロード先へのリレーのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		photosUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoroom_photos_upserted_total",
			Help: "保存（作成または置換）された写真の合計数",
		}),
		liveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "photoroom_live_subscriptions",
			Help: "アクティブなギャラリー購読数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoroom_http_responses_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.roomsCreated,
		c.roomCodeAttempts,
		c.roomJoins,
		c.uploads,
		c.uploadLatency,
		c.photosUpserted,
		c.liveSubscriptions,
		c.httpStatus,
	)

	return c
}

// RecordRoomCreated はルーム作成と、空きコードが見つかるまでの試行回数を記録する。
func (c *Collector) RecordRoomCreated(attempts int) {
	c.roomsCreated.Inc()
	c.roomCodeAttempts.Observe(float64(attempts))
}

// RecordRoomJoin はルーム参加の結果を記録する。
func (c *Collector) RecordRoomJoin(result string) {
	c.roomJoins.WithLabelValues(result).Inc()
}

// RecordUpload はアップロードの結果とレイテンシを記録する。
func (c *Collector) RecordUpload(result string, duration time.Duration) {
	c.uploads.WithLabelValues(result).Inc()
	c.uploadLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordPhotoUpserted() {
	c.photosUpserted.Inc()
}

// AddLiveSubscriptions は購読数ゲージを増減する。
func (c *Collector) AddLiveSubscriptions(delta int) {
	c.liveSubscriptions.Add(float64(delta))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordRoomCreated(int)              {}
func (Nop) RecordRoomJoin(string)              {}
func (Nop) RecordUpload(string, time.Duration) {}
func (Nop) RecordPhotoUpserted()               {}
func (Nop) AddLiveSubscriptions(int)           {}
func (Nop) RecordHTTPStatus(int)               {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
