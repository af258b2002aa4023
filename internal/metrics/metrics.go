// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// アクションの結果ラベル
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder はメトリクス記録のインターフェース。
// モデレーション処理、外部クライアント、HTTPミドルウェアから利用する。
type Recorder interface {
	RecordAction(action, outcome string)
	ObserveRemoteCall(service, operation string, elapsed time.Duration, err error)
	RecordPredictionsWritten(source string, count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	actions            *prometheus.CounterVec
	remoteCallLatency  *prometheus.HistogramVec
	remoteCallFailures *prometheus.CounterVec
	predictionsWritten *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toxguard_actions_total",
			Help: "モデレーション操作の実行数（操作種別・結果別）",
		}, []string{"action", "outcome"}),
		remoteCallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toxguard_remote_call_seconds",
			Help:    "外部サービス呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "operation"}),
		remoteCallFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toxguard_remote_call_failures_total",
			Help: "外部サービス呼び出しの失敗数",
		}, []string{"service", "operation"}),
		predictionsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toxguard_predictions_written_total",
			Help: "書き込まれた予測ラベルの数（書き込み元別）",
		}, []string{"source"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toxguard_http_responses_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.actions,
		c.remoteCallLatency,
		c.remoteCallFailures,
		c.predictionsWritten,
		c.httpStatus,
	)

	return c
}

// RecordAction はモデレーション操作の結果を記録する。
func (c *Collector) RecordAction(action, outcome string) {
	c.actions.WithLabelValues(action, outcome).Inc()
}

// ObserveRemoteCall は外部サービス呼び出しのレイテンシと失敗を記録する。
func (c *Collector) ObserveRemoteCall(service, operation string, elapsed time.Duration, err error) {
	c.remoteCallLatency.WithLabelValues(service, operation).Observe(elapsed.Seconds())
	if err != nil {
		c.remoteCallFailures.WithLabelValues(service, operation).Inc()
	}
}

// RecordPredictionsWritten は書き込まれた予測ラベル数を記録する。
func (c *Collector) RecordPredictionsWritten(source string, count int) {
	c.predictionsWritten.WithLabelValues(source).Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないRecorder。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordAction(string, string)                            {}
func (Nop) ObserveRemoteCall(string, string, time.Duration, error) {}
func (Nop) RecordPredictionsWritten(string, int)                   {}
func (Nop) RecordHTTPStatus(int)                                   {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
