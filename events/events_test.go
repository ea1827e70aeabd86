package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Kakungulu256/rcms/ledger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = append(f.declared, name+"/"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func samplePayment() ledger.Payment {
	return ledger.Payment{
		ID:          "p1",
		TenantID:    "t1",
		Amount:      ledger.MustParseMoney("2500"),
		Method:      ledger.MethodCash,
		PaymentDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Allocation: ledger.Allocation{
			"2024-01": ledger.MustParseMoney("1000"),
			"2024-02": ledger.MustParseMoney("1000"),
			"2024-03": ledger.MustParseMoney("500"),
		},
		Unapplied: ledger.ZeroMoney(),
	}
}

func TestPaymentEvent_JSON(t *testing.T) {
	at := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	event := NewPaymentEvent(PaymentRecorded, samplePayment(), at)

	body, err := event.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"allocation":{"2024-01":1000.00,"2024-02":1000.00,"2024-03":500.00}`)
	assert.Contains(t, string(body), `"payment_date":"2024-03-15"`)

	back, err := PaymentEventFromJSON(body)
	require.NoError(t, err)
	assert.Equal(t, PaymentRecorded, back.Type)
	assert.Equal(t, "2500.00", back.Amount.String())
	assert.Equal(t, event.Allocation.Strings(), back.Allocation.Strings())
	assert.True(t, at.Equal(back.Timestamp))
}

func TestAMQPPublisher_RoutesByType(t *testing.T) {
	// GIVEN: A publisher over a fake channel
	// WHEN: A reversal event is published
	// THEN: The exchange is declared direct and the routing key is the event type

	ch := &fakeChannel{}
	p, err := newAMQPPublisher(ch, "rcms", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"rcms/direct"}, ch.declared)

	rev := samplePayment()
	rev.ID, rev.IsReversal, rev.ReversedPaymentID = "r1", true, "p1"
	require.NoError(t, p.Publish(context.Background(), NewPaymentEvent(PaymentReversed, rev, time.Now())))

	require.Len(t, ch.published, 1)
	assert.Equal(t, []string{"payment.reversed"}, ch.keys)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, "r1", ch.published[0].MessageId)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestAMQPPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p, err := newAMQPPublisher(ch, "rcms", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), NewPaymentEvent(PaymentEdited, samplePayment(), time.Now()))
	assert.ErrorContains(t, err, "payment.edited")
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), &PaymentEvent{}))
	assert.NoError(t, p.Close())
}
