package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hitoshi/stagelog/internal/metrics"
)

const (
	consumerPrefetch   = 10
	consumerMaxBackoff = 30 * time.Second
)

// Dispatcher は通知を最終的な宛先へ配送する。
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// acknowledger はamqp.Deliveryの確認応答部分。
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Consumer は通知キューを購読し、Dispatcherへ渡すワーカー。
type Consumer struct {
	url        string
	queue      string
	dispatcher Dispatcher
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewConsumer はConsumerを生成する。
func NewConsumer(url, queue string, dispatcher Dispatcher, m metrics.MetricsCollector, logger *slog.Logger) *Consumer {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Consumer{
		url:        url,
		queue:      queue,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
	}
}

// Run はコンテキストがキャンセルされるまでキューを購読する。
// 接続が切れた場合は指数バックオフで再接続する。
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("notification consumer failed to dial broker",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff),
			)
			if !sleepContext(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, consumerMaxBackoff)
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			c.logger.Info("notification consumer stopped")
			return nil
		}
		c.logger.Warn("notification consume loop ended, reconnecting",
			slog.String("error", err.Error()),
		)
		if !sleepContext(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(consumerPrefetch, 0, false); err != nil {
		c.logger.Warn("failed to set QoS", slog.String("error", err.Error()))
	}
	if _, err := declareQueue(ch, c.queue); err != nil {
		return err
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue: %w", err)
	}

	c.logger.Info("notification consumer started", slog.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, d, d.Body, d.Redelivered)
		}
	}
}

// handle は1メッセージを処理して確認応答を返す。
// 不正なメッセージと恒久的な失敗は破棄し、一時的な失敗は1回だけ再配送させる。
func (c *Consumer) handle(ctx context.Context, ack acknowledger, body []byte, redelivered bool) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		c.logger.Error("dropping malformed notification", slog.String("error", err.Error()))
		c.nack(ack, n.Type, false)
		return
	}

	err := c.dispatcher.Dispatch(ctx, n)
	switch {
	case err == nil:
		c.metrics.RecordNotification(string(n.Type), "sent")
		c.ack(ack, n.Type)
	case errors.Is(err, ErrPermanent):
		c.metrics.RecordNotification(string(n.Type), "dropped")
		c.logger.Warn("dropping notification",
			slog.String("type", string(n.Type)),
			slog.String("error", err.Error()),
		)
		c.ack(ack, n.Type)
	case redelivered:
		c.metrics.RecordNotification(string(n.Type), "dropped")
		c.logger.Error("notification failed after redelivery",
			slog.String("type", string(n.Type)),
			slog.String("error", err.Error()),
		)
		c.nack(ack, n.Type, false)
	default:
		c.metrics.RecordNotification(string(n.Type), "requeued")
		c.logger.Warn("notification failed, requeueing",
			slog.String("type", string(n.Type)),
			slog.String("error", err.Error()),
		)
		c.nack(ack, n.Type, true)
	}
}

// ack はAckを送り、失敗時はログに残す。チャネル断ではブローカーが未確認分を再配送する。
func (c *Consumer) ack(ack acknowledger, t Type) {
	if err := ack.Ack(false); err != nil {
		c.logger.Error("failed to ack notification",
			slog.String("type", string(t)),
			slog.String("error", err.Error()),
		)
	}
}

// nack はNackを送り、失敗時はログに残す。
func (c *Consumer) nack(ack acknowledger, t Type, requeue bool) {
	if err := ack.Nack(false, requeue); err != nil {
		c.logger.Error("failed to nack notification",
			slog.String("type", string(t)),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
	}
}

// sleepContext はdだけ待機する。途中でキャンセルされた場合はfalseを返す。
func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
