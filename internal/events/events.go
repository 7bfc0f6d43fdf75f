// Package events publishes ticket lifecycle events to external sinks
// (Kafka, RabbitMQ, HTTP webhook). Publishing is best-effort.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/psds-microservice/support-ticket-service/internal/clock"
	"github.com/psds-microservice/support-ticket-service/internal/model"
)

const (
	TypeTicketCreated = "ticket.created"
	TypeTicketUpdated = "ticket.updated"
)

const publishTimeout = 5 * time.Second

type Event struct {
	ID         uuid.UUID    `json:"id"`
	Type       string       `json:"event"`
	OccurredAt time.Time    `json:"occurred_at"`
	Ticket     model.Ticket `json:"ticket"`
}

// Publisher: приёмник событий. Реализации должны быть безопасны для конкурентного вызова.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Fanout sends every event to all sinks; one failing sink does not stop the others.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config lists the sinks to open. Empty values disable the sink.
type Config struct {
	KafkaBrokers     []string
	KafkaTopic       string
	RabbitMQURL      string
	RabbitMQExchange string
	WebhookURL       string
}

// Open connects every configured sink. A sink that cannot connect is
// logged and skipped so the API still starts.
func Open(cfg Config) Fanout {
	var out Fanout
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		out = append(out, NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
		slog.Info("events: kafka sink enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}
	if cfg.RabbitMQURL != "" {
		p, err := NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			slog.Warn("events: rabbitmq sink disabled", "error", err)
		} else {
			out = append(out, p)
			slog.Info("events: rabbitmq sink enabled", "exchange", cfg.RabbitMQExchange)
		}
	}
	if cfg.WebhookURL != "" {
		out = append(out, NewWebhookPublisher(cfg.WebhookURL))
		slog.Info("events: webhook sink enabled", "url", cfg.WebhookURL)
	}
	return out
}

// Notifier turns store changes into events. The zero sink set makes it a no-op.
type Notifier struct {
	pub   Publisher
	clock clock.Clock
	wg    sync.WaitGroup
}

func NewNotifier(pub Publisher, clk clock.Clock) *Notifier {
	if clk == nil {
		clk = clock.Real()
	}
	if f, ok := pub.(Fanout); ok && len(f) == 0 {
		pub = nil
	}
	return &Notifier{pub: pub, clock: clk}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.pub != nil
}

func (n *Notifier) TicketCreated(t *model.Ticket) { n.async(TypeTicketCreated, t) }
func (n *Notifier) TicketUpdated(t *model.Ticket) { n.async(TypeTicketUpdated, t) }

// Publish sends one event synchronously and returns the sink error.
func (n *Notifier) Publish(ctx context.Context, typ string, t *model.Ticket) error {
	if !n.Enabled() {
		return nil
	}
	return n.pub.Publish(ctx, n.event(typ, t))
}

// async не блокирует ответ API: ошибки только логируются.
func (n *Notifier) async(typ string, t *model.Ticket) {
	if !n.Enabled() || t == nil {
		return
	}
	ev := n.event(typ, t)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := n.pub.Publish(ctx, ev); err != nil {
			slog.Warn("events: publish failed", "event", ev.Type, "ticket_id", ev.Ticket.ID, "error", err)
		}
	}()
}

func (n *Notifier) event(typ string, t *model.Ticket) Event {
	return Event{
		ID:         uuid.New(),
		Type:       typ,
		OccurredAt: n.clock.Now(),
		Ticket:     *t,
	}
}

// Close waits for in-flight events and closes the sinks.
func (n *Notifier) Close() error {
	if !n.Enabled() {
		return nil
	}
	n.wg.Wait()
	return n.pub.Close()
}
