// Package notification は演目投稿・承認の通知を配送する。
// API側はキューへ発行し、ワーカー側がWebhookへ配送する。
package notification

import (
	"context"
	"log/slog"

	"github.com/hitoshi/stagelog/internal/metrics"
)

// Type は通知の種別。
type Type string

const (
	// TypeNewShow は演目投稿時に管理者へ送る通知。
	TypeNewShow Type = "new_show"
	// TypeShowApproved は承認時に投稿者へ送る通知。
	TypeShowApproved Type = "show_approved"
)

// Notification はキューに流れる通知メッセージ。
type Notification struct {
	Type           Type     `json:"type"`
	ShowTitle      string   `json:"show_title"`
	SubmitterEmail string   `json:"submitter_email,omitempty"`
	AdminEmails    []string `json:"admin_emails,omitempty"`
}

// Publisher は通知を配送経路へ送るインターフェース。
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Notifier は失敗を呼び出し元へ返さない通知インターフェース。
// ドメインサービスはこちらを使う。
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Discard は通知を捨てるNotifier。
type Discard struct{}

// Notify は何もしない。
func (Discard) Notify(context.Context, Notification) {}

// BestEffort はPublisherの失敗をログとメトリクスに記録して握りつぶす。
type BestEffort struct {
	publisher Publisher
	metrics   metrics.MetricsCollector
}

// NewBestEffort はBestEffortを生成する。
func NewBestEffort(publisher Publisher, m metrics.MetricsCollector) *BestEffort {
	if m == nil {
		m = metrics.Nop{}
	}
	return &BestEffort{publisher: publisher, metrics: m}
}

// Notify は通知を発行する。失敗しても呼び出し元の処理は継続させる。
func (b *BestEffort) Notify(ctx context.Context, n Notification) {
	if err := b.publisher.Publish(ctx, n); err != nil {
		b.metrics.RecordNotification(string(n.Type), "failed")
		slog.Warn("failed to publish notification",
			slog.String("type", string(n.Type)),
			slog.String("show_title", n.ShowTitle),
			slog.String("error", err.Error()),
		)
		return
	}
	b.metrics.RecordNotification(string(n.Type), "published")
}

var (
	_ Notifier = Discard{}
	_ Notifier = (*BestEffort)(nil)
)
