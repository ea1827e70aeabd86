/*
events.go - Domain events emitted after a ledger write commits

PURPOSE:
  A committed payment, reversal or edit is announced as a JSON PaymentEvent
  through a Publisher. Events are informational: the ledger row is the
  source of truth and a failed publish never undoes it.

SEE ALSO:
  - events/amqp.go: RabbitMQ publisher
  - rental/service.go: publishes after WithTx returns
*/
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Kakungulu256/rcms/ledger"
)

// EventType doubles as the AMQP routing key.
type EventType string

const (
	PaymentRecorded EventType = "payment.recorded"
	PaymentReversed EventType = "payment.reversed"
	PaymentEdited   EventType = "payment.edited"
)

// PaymentEvent describes one committed ledger row.
type PaymentEvent struct {
	Type              EventType         `json:"type"`
	PaymentID         ledger.PaymentID  `json:"payment_id"`
	TenantID          ledger.TenantID   `json:"tenant_id"`
	Amount            ledger.Money      `json:"amount"`
	Method            string            `json:"method"`
	PaymentDate       string            `json:"payment_date"`
	Allocation        ledger.Allocation `json:"allocation"`
	Unapplied         ledger.Money      `json:"unapplied"`
	ReversedPaymentID ledger.PaymentID  `json:"reversed_payment_id,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}

// NewPaymentEvent builds an event from a persisted payment.
func NewPaymentEvent(typ EventType, p ledger.Payment, at time.Time) *PaymentEvent {
	return &PaymentEvent{
		Type:              typ,
		PaymentID:         p.ID,
		TenantID:          p.TenantID,
		Amount:            p.Amount,
		Method:            string(p.Method),
		PaymentDate:       p.PaymentDate.Format("2006-01-02"),
		Allocation:        p.Allocation,
		Unapplied:         p.Unapplied,
		ReversedPaymentID: p.ReversedPaymentID,
		Timestamp:         at.UTC(),
	}
}

func (e *PaymentEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func PaymentEventFromJSON(data []byte) (*PaymentEvent, error) {
	var e PaymentEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event *PaymentEvent) error
	Close() error
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, *PaymentEvent) error { return nil }
func (Nop) Close() error { return nil }
