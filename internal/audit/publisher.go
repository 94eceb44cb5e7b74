package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"ChainChat/internal/tools"
	"ChainChat/pkg/logger"
)

// Config 描述审计事件队列的连接参数。
type Config struct {
	URL     string
	Queue   string
	Durable bool
}

// Event 是投递到队列的审计事件，每次工具调用一条。
type Event struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	Tool       string          `json:"tool"`
	Args       json.RawMessage `json:"args,omitempty"`
	OK         bool            `json:"ok"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	CreatedAt  int64           `json:"created_at"`
}

// Publisher 把工具调用记录投递到 RabbitMQ，供外部审计系统消费。
// 投递失败只记日志，不影响会话。
type Publisher struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	queue     string
	sessionID string
}

// NewPublisher 创建审计发布器并声明队列。
func NewPublisher(cfg Config, sessionID string) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "chainchat.audit"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, queue: queue, sessionID: sessionID}, nil
}

// Record 实现 tools.Recorder，把一次工具调用转成审计事件发布。
func (p *Publisher) Record(ctx context.Context, inv tools.Invocation) {
	if p == nil || p.ch == nil {
		return
	}

	event := Event{
		ID:         uuid.NewString(),
		SessionID:  p.sessionID,
		Tool:       inv.Tool,
		Args:       inv.Args,
		OK:         inv.OK,
		Error:      inv.Error,
		DurationMS: inv.Duration.Milliseconds(),
		CreatedAt:  time.Now().Unix(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		logger.Named("audit").Warn("序列化审计事件失败", slog.Any("error", err))
		return
	}

	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	}); err != nil {
		logger.Named("audit").Warn("发布审计事件失败",
			slog.String("tool", inv.Tool),
			slog.Any("error", err),
		)
		return
	}

	logger.Audit().Info("链上操作审计",
		slog.String("event_id", event.ID),
		slog.String("session_id", event.SessionID),
		slog.String("tool", event.Tool),
		slog.Bool("ok", event.OK),
		slog.Int64("duration_ms", event.DurationMS),
	)
}

// Close 关闭 RabbitMQ 连接。
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
