package transaction

import (
	"context"
	"log"
)

// Domain event types
const (
	EventTransactionCreated   = "transaction.created"
	EventTransactionUpdated   = "transaction.updated"
	EventTransactionDeleted   = "transaction.deleted"
	EventMaintenanceCharged   = "maintenance.charged"
	EventProductBlocked       = "product.blocked"
	EventCompensationPending  = "compensation.pending"
	EventCompensationResolved = "compensation.resolved"
)

// Publisher emits domain events. Publishing is best effort; callers log failures.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// Alerter notifies operators about conditions that need a human.
type Alerter interface {
	Alert(ctx context.Context, title, body string, data map[string]string) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// LogAlerter writes alerts to the process log.
type LogAlerter struct{}

func (LogAlerter) Alert(_ context.Context, title, body string, data map[string]string) error {
	log.Printf("ALERT: %s: %s %v", title, body, data)
	return nil
}

func publish(ctx context.Context, p Publisher, eventType string, data any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, eventType, data); err != nil {
		log.Printf("Failed to publish %s event: %v", eventType, err)
	}
}
