// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordNeighborhoodCreated()
	RecordNameConflict()
	RecordJoin()
	RecordLeave()
	RecordLoginOutcome(outcome string)
	RecordTokenVerification(valid bool)
	RecordStoreRetry()
	RecordHTTPStatus(statusCode int)
}

// ログイン結果のラベル値。
const (
	LoginOutcomeSuccess        = "success"
	LoginOutcomeInvalidState   = "invalid_state"
	LoginOutcomeExchangeFailed = "exchange_failed"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	nbhdCreated   prometheus.Counter
	nameConflicts prometheus.Counter
	joins         prometheus.Counter
	leaves        prometheus.Counter
	logins        *prometheus.CounterVec
	tokenVerify   *prometheus.CounterVec
	storeRetries  prometheus.Counter
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		nbhdCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nbhdcity_neighborhoods_created_total",
			Help: "作成された近隣の合計数",
		}),
		nameConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nbhdcity_name_conflicts_total",
			Help: "近隣名の衝突で拒否された作成の合計数",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nbhdcity_joins_total",
			Help: "近隣への参加の合計数",
		}),
		leaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nbhdcity_leaves_total",
			Help: "近隣からの退会の合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nbhdcity_logins_total",
			Help: "OAuthログイン試行の結果別合計数",
		}, []string{"outcome"}),
		tokenVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nbhdcity_token_verifications_total",
			Help: "セッショントークン検証の結果別合計数",
		}, []string{"valid"}),
		storeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nbhdcity_store_retries_total",
			Help: "一時障害によるストア操作リトライの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nbhdcity_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.nbhdCreated,
		c.nameConflicts,
		c.joins,
		c.leaves,
		c.logins,
		c.tokenVerify,
		c.storeRetries,
		c.httpStatus,
	)

	return c
}

// RecordNeighborhoodCreated は近隣の作成を記録する。
func (c *Collector) RecordNeighborhoodCreated() {
	c.nbhdCreated.Inc()
}

// RecordNameConflict は近隣名の衝突を記録する。
func (c *Collector) RecordNameConflict() {
	c.nameConflicts.Inc()
}

// RecordJoin は参加を記録する。
func (c *Collector) RecordJoin() {
	c.joins.Inc()
}

// RecordLeave は退会を記録する。
func (c *Collector) RecordLeave() {
	c.leaves.Inc()
}

// RecordLoginOutcome はログイン試行の結果を記録する。
func (c *Collector) RecordLoginOutcome(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordTokenVerification はセッショントークン検証の結果を記録する。
func (c *Collector) RecordTokenVerification(valid bool) {
	c.tokenVerify.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

// RecordStoreRetry はストア操作のリトライを記録する。
func (c *Collector) RecordStoreRetry() {
	c.storeRetries.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
