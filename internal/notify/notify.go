package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Message — уведомление внешнему каналу: текст плюс метаданные.
type Message struct {
	EventID   string            `json:"eventId"`
	Type      string            `json:"type"`
	CompanyID int               `json:"companyId,omitempty"`
	UserID    int               `json:"userId,omitempty"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NewMessage заполняет служебные поля уведомления.
func NewMessage(msgType, subject, body string) Message {
	return Message{
		EventID:   uuid.New().String(),
		Type:      msgType,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
}

// Notifier — узкий порт отправки одного уведомления. Реализации
// взаимозаменяемы: лог, Kafka.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier пишет уведомления в структурированный лог.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, msg Message) error {
	zap.L().Info("notification",
		zap.String("event_id", msg.EventID),
		zap.String("type", msg.Type),
		zap.Int("company_id", msg.CompanyID),
		zap.Int("user_id", msg.UserID),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}

const (
	dispatchTimeout     = 10 * time.Second
	dispatchConcurrency = 8
)

// Dispatcher рассылает уведомления после коммита основной транзакции.
// Вызывающий не ждет результата, любые ошибки поглощаются и логируются.
type Dispatcher struct {
	notifier Notifier
}

func NewDispatcher(notifier Notifier) *Dispatcher {
	return &Dispatcher{notifier: notifier}
}

// DispatchAsync запускает рассылку в фоне и сразу возвращается.
// Контекст вызывающего не используется: рассылка не должна
// обрываться вместе с HTTP-запросом.
func (d *Dispatcher) DispatchAsync(msgs ...Message) {
	if d == nil || d.notifier == nil || len(msgs) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		d.dispatch(ctx, msgs)
	}()
}

func (d *Dispatcher) dispatch(ctx context.Context, msgs []Message) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dispatchConcurrency)
	for _, msg := range msgs {
		msg := msg
		g.Go(func() error {
			if err := d.notifier.Send(gctx, msg); err != nil {
				zap.L().Warn("notification failed",
					zap.String("event_id", msg.EventID),
					zap.String("type", msg.Type),
					zap.Error(err))
			}
			// Ошибки отправки не прерывают остальную рассылку.
			return nil
		})
	}
	g.Wait()
}
