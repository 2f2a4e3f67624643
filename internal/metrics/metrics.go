// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ドメインイベント名
const (
	EventShowSubmitted   = "show_submitted"
	EventShowApproved    = "show_approved"
	EventShowRejected    = "show_rejected"
	EventEntryCreated    = "entry_created"
	EventEntryDeleted    = "entry_deleted"
	EventReactionToggled = "reaction_toggled"
	EventCommentAdded    = "comment_added"
	EventFriendRequested = "friend_requested"
	EventFriendAccepted  = "friend_accepted"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(statusCode int, duration time.Duration)
	RecordDomainEvent(event string)
	RecordNotification(notificationType, result string)
	RecordCacheLookup(hit bool)
	RecordShowsImported(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests  *prometheus.CounterVec
	httpDuration  prometheus.Histogram
	domainEvents  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	showsImported prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagelog_http_requests_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stagelog_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		domainEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagelog_domain_events_total",
			Help: "ドメインイベント別の発生数",
		}, []string{"event"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagelog_notifications_total",
			Help: "通知種別・結果別の通知数",
		}, []string{"type", "result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagelog_catalog_cache_lookups_total",
			Help: "カタログキャッシュの参照結果別の件数",
		}, []string{"result"}),
		showsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stagelog_shows_imported_total",
			Help: "フィード取り込みで登録された演目の合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.domainEvents,
		c.notifications,
		c.cacheLookups,
		c.showsImported,
	)

	return c
}

// RecordHTTPRequest はHTTPレスポンスのステータスコードと処理時間を記録する。
func (c *Collector) RecordHTTPRequest(statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.httpDuration.Observe(duration.Seconds())
}

// RecordDomainEvent はドメインイベントの発生を記録する。
func (c *Collector) RecordDomainEvent(event string) {
	c.domainEvents.WithLabelValues(event).Inc()
}

// RecordNotification は通知の送信結果を記録する。
func (c *Collector) RecordNotification(notificationType, result string) {
	c.notifications.WithLabelValues(notificationType, result).Inc()
}

// RecordCacheLookup はカタログキャッシュのヒット/ミスを記録する。
func (c *Collector) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// RecordShowsImported は取り込まれた演目数を記録する。
func (c *Collector) RecordShowsImported(count int) {
	c.showsImported.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordHTTPRequest(int, time.Duration) {}
func (Nop) RecordDomainEvent(string)             {}
func (Nop) RecordNotification(string, string)    {}
func (Nop) RecordCacheLookup(bool)               {}
func (Nop) RecordShowsImported(int)              {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
