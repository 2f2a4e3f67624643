package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/stagelog/internal/model"
)

// ErrPermanent は再試行しても成功しない配送失敗を表す。
var ErrPermanent = errors.New("permanent notification failure")

// RecipientResolver は管理者のメールアドレスを解決する。
// repository.UserRepositoryの部分集合として定義する。
type RecipientResolver interface {
	ListEmailsByRole(ctx context.Context, role string) ([]string, error)
}

// webhookMessage はWebhookへ送るメール送信依頼。
type webhookMessage struct {
	Type    Type     `json:"type"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// WebhookDispatcher は通知をメール送信依頼に変換してWebhookへPOSTする。
type WebhookDispatcher struct {
	client     *http.Client
	url        string
	recipients RecipientResolver
}

// NewWebhookDispatcher はWebhookDispatcherを生成する。
func NewWebhookDispatcher(url string, timeout time.Duration, recipients RecipientResolver) *WebhookDispatcher {
	return &WebhookDispatcher{
		client:     &http.Client{Timeout: timeout},
		url:        url,
		recipients: recipients,
	}
}

// Dispatch は通知を配送する。
// 宛先が存在しない、または4xx応答の場合はErrPermanentでラップしたエラーを返す。
func (d *WebhookDispatcher) Dispatch(ctx context.Context, n Notification) error {
	msg, err := d.buildMessage(ctx, n)
	if err != nil {
		return err
	}
	if msg == nil {
		slog.Info("notification has no recipients",
			slog.String("type", string(n.Type)),
			slog.String("show_title", n.ShowTitle),
		)
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal webhook message: %v", ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to build webhook request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call notification webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: webhook returned status %d", ErrPermanent, resp.StatusCode)
	default:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
}

// Publish はDispatchを直接呼ぶ。RabbitMQを使わない構成で使用する。
func (d *WebhookDispatcher) Publish(ctx context.Context, n Notification) error {
	return d.Dispatch(ctx, n)
}

// buildMessage は通知種別ごとに宛先と本文を組み立てる。宛先がなければnilを返す。
func (d *WebhookDispatcher) buildMessage(ctx context.Context, n Notification) (*webhookMessage, error) {
	switch n.Type {
	case TypeNewShow:
		to := n.AdminEmails
		if len(to) == 0 {
			emails, err := d.recipients.ListEmailsByRole(ctx, model.RoleAdmin)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve admin recipients: %w", err)
			}
			to = emails
		}
		if len(to) == 0 {
			return nil, nil
		}
		return &webhookMessage{
			Type:    n.Type,
			To:      to,
			Subject: "New Show Awaiting Approval",
			Text:    fmt.Sprintf("A new show has been submitted and is awaiting your approval: %s", n.ShowTitle),
		}, nil

	case TypeShowApproved:
		if n.SubmitterEmail == "" {
			return nil, nil
		}
		return &webhookMessage{
			Type:    n.Type,
			To:      []string{n.SubmitterEmail},
			Subject: "Your Show Has Been Approved!",
			Text:    fmt.Sprintf("Your show submission has been approved and is now visible to all users: %s", n.ShowTitle),
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown notification type %q", ErrPermanent, n.Type)
	}
}

var _ Publisher = (*WebhookDispatcher)(nil)
