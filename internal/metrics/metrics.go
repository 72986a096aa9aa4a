// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー層やワーカーから利用する。
type MetricsCollector interface {
	RecordRegistration(reclaimed bool)
	RecordVerification()
	RecordLoginSuccess()
	RecordLoginFailure(code string)
	RecordFederatedLogin()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordSweptAccounts(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations  *prometheus.CounterVec
	verifications  prometheus.Counter
	loginSuccess   prometheus.Counter
	loginFailure   *prometheus.CounterVec
	federatedLogin prometheus.Counter
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	sweptAccounts  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_registrations_total",
			Help: "アカウント登録受付の合計数（新規/再取得別）",
		}, []string{"kind"}),
		verifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_verifications_total",
			Help: "検証済みへの昇格の合計数",
		}),
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_login_success_total",
			Help: "ローカルログイン成功の合計数",
		}),
		loginFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_login_failure_total",
			Help: "ローカルログイン失敗のエラーコード別合計数",
		}, []string{"code"}),
		federatedLogin: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_federated_login_total",
			Help: "フェデレーションログイン処理の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "accounts_request_latency_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sweptAccounts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accounts_swept_unverified_total",
			Help: "掃除ワーカーが削除した期限切れ未検証アカウントの合計数",
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.verifications,
		c.loginSuccess,
		c.loginFailure,
		c.federatedLogin,
		c.httpStatus,
		c.requestLatency,
		c.sweptAccounts,
	)

	return c
}

// RecordRegistration は登録受付を記録する。
func (c *Collector) RecordRegistration(reclaimed bool) {
	kind := "created"
	if reclaimed {
		kind = "reclaimed"
	}
	c.registrations.WithLabelValues(kind).Inc()
}

// RecordVerification は検証済みへの昇格を記録する。
func (c *Collector) RecordVerification() {
	c.verifications.Inc()
}

// RecordLoginSuccess はローカルログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はローカルログイン失敗をエラーコード別に記録する。
func (c *Collector) RecordLoginFailure(code string) {
	c.loginFailure.WithLabelValues(code).Inc()
}

// RecordFederatedLogin はフェデレーションログイン処理を記録する。
func (c *Collector) RecordFederatedLogin() {
	c.federatedLogin.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordSweptAccounts は掃除ワーカーが削除したアカウント数を記録する。
func (c *Collector) RecordSweptAccounts(count int64) {
	c.sweptAccounts.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
