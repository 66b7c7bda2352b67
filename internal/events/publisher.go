package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/finvault/transaction-service/internal/infrastructure/kafka"
	"github.com/finvault/transaction-service/internal/infrastructure/notifier"
	"github.com/finvault/transaction-service/internal/infrastructure/observability"
	"github.com/shopspring/decimal"
)

// Event is the "transaction completed" notice carried on the bus topic.
// Consumers are required to be idempotent per transaction id and user id.
type Event struct {
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          string          `json:"kind"`
	State         string          `json:"state"`
	Message       string          `json:"message"`
}

// EventPublisher accepts events off the critical path. Delivery is
// at-most-once best effort and must never fail the triggering transaction.
type EventPublisher interface {
	Publish(event Event)
}

// Publisher feeds a bounded queue drained by one background worker. The
// worker tries the bus first; if publication fails it falls back to a
// synchronous direct notification, and a double failure is logged and
// swallowed.
type Publisher struct {
	producer    kafka.KafkaProducer
	direct      notifier.DirectNotifier
	queue       chan Event
	done        chan struct{}
	sendTimeout time.Duration
}

func NewPublisher(producer kafka.KafkaProducer, direct notifier.DirectNotifier, queueSize int, sendTimeout time.Duration) *Publisher {
	p := &Publisher{
		producer:    producer,
		direct:      direct,
		queue:       make(chan Event, queueSize),
		done:        make(chan struct{}),
		sendTimeout: sendTimeout,
	}
	go p.run()
	return p
}

// Publish never blocks; if the queue is full the event is dropped and
// counted.
func (p *Publisher) Publish(event Event) {
	select {
	case p.queue <- event:
	default:
		observability.EventsPublished.WithLabelValues("dropped").Inc()
		slog.Warn("event queue full, dropping transaction event",
			"transaction_id", event.TransactionID,
			"user_id", event.UserID)
	}
}

// Close stops accepting events and drains the queue.
func (p *Publisher) Close() {
	close(p.queue)
	<-p.done
}

func (p *Publisher) run() {
	defer close(p.done)
	for event := range p.queue {
		p.deliver(event)
	}
}

func (p *Publisher) deliver(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal transaction event",
			"transaction_id", event.TransactionID,
			"error", err)
		p.fallback(event)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.sendTimeout)
	err = p.producer.Send(ctx, event.TransactionID, payload)
	cancel()
	if err != nil {
		slog.Error("failed to publish transaction event, falling back to direct notification",
			"transaction_id", event.TransactionID,
			"error", err)
		p.fallback(event)
		return
	}

	observability.EventsPublished.WithLabelValues("published").Inc()
	slog.Info("transaction event published",
		"transaction_id", event.TransactionID,
		"user_id", event.UserID,
		"kind", event.Kind)
}

// fallback runs on its own timeout: a bus attempt that timed out has already
// consumed its whole budget, and the direct path must still get one.
func (p *Publisher) fallback(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.sendTimeout)
	defer cancel()

	err := p.direct.SendEmail(ctx, notifier.Request{
		UserID:  event.UserID,
		Type:    notifier.TypeEmail,
		Message: "Fallback: " + event.Message,
	})
	if err != nil {
		// Best effort only: notification loss never fails a transaction
		// that already reached its terminal state.
		observability.EventsPublished.WithLabelValues("lost").Inc()
		slog.Error("direct notification fallback failed, dropping event",
			"transaction_id", event.TransactionID,
			"user_id", event.UserID,
			"error", err)
		return
	}
	observability.EventsPublished.WithLabelValues("fallback").Inc()
	slog.Info("transaction event delivered via direct notification",
		"transaction_id", event.TransactionID,
		"user_id", event.UserID)
}
