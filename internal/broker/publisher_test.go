package broker

import (
	"context"
	"errors"
	"testing"

	"studiobook/internal/events"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	declareErr error
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if f.declareErr != nil {
		return amqp.Queue{}, f.declareErr
	}
	if durable {
		f.declared = append(f.declared, name)
	}
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
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

func TestPublisher_ForwardsEveryEvent(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultQueue}, ch.declared)

	bus := events.NewEventBus(nil)
	p.Subscribe(bus)

	require.NoError(t, bus.PublishJSON(events.EventReservationCreated, events.ReservationEventPayload{ReservationID: 1}))
	require.NoError(t, bus.PublishJSON(events.EventAttendanceRecorded, events.AttendanceEventPayload{SlotID: 2}))

	require.Len(t, ch.published, 2)
	first := ch.published[0]
	assert.Equal(t, events.EventReservationCreated, first.Type)
	assert.Equal(t, uint8(amqp.Persistent), first.DeliveryMode)
	assert.Equal(t, "application/json", first.ContentType)
	assert.NotEmpty(t, first.MessageId)
	assert.JSONEq(t, `{"reservation_id":1,"client_id":0,"client_name":"","client_email":"","slot_id":0,"date":"","start_time":"","end_time":"","status":"","capacity_current":0,"capacity_max":0,"classes_remaining":0}`, string(first.Body))
	assert.Equal(t, []string{DefaultQueue, DefaultQueue}, ch.keys)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublisher_Errors(t *testing.T) {
	_, err := NewPublisher(&fakeChannel{declareErr: errors.New("access refused")}, "q", nil)
	assert.Error(t, err)

	p, err := NewPublisher(&fakeChannel{publishErr: errors.New("channel closed")}, "q", nil)
	require.NoError(t, err)
	assert.Error(t, p.Handle(&events.Event{Type: events.EventReservationCancelled, Payload: []byte(`{}`)}))
}
