package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stay-engine/engine"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQP_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQP{ch: ch, exchange: "stay.events"}
	at := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), engine.Event{
		Type:       engine.EventBookingCompleted,
		BookingID:  "bkg-1",
		PropertyID: "home-1",
		ActorID:    "owner-1",
		Amount:     engine.NewAmountFromInt(200, engine.CurrencyLKR),
		At:         at,
	})
	require.NoError(t, err)
	require.Len(t, ch.sent, 1)

	sent := ch.sent[0]
	assert.Equal(t, "stay.events", sent.exchange)
	assert.Equal(t, "booking.completed", sent.key)
	assert.Equal(t, uint8(amqp.Persistent), sent.msg.DeliveryMode)

	var m Message
	require.NoError(t, json.Unmarshal(sent.msg.Body, &m))
	assert.Equal(t, "bkg-1", m.BookingID)
	assert.Equal(t, "200.00", m.Amount)
	assert.Equal(t, "LKR", m.Currency)
	assert.True(t, m.At.Equal(at))

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestAMQP_PublishFailure(t *testing.T) {
	p := &AMQP{ch: &fakeChannel{err: errors.New("channel closed")}, exchange: "x"}
	err := p.Publish(context.Background(), engine.Event{Type: engine.EventReviewAdded})
	assert.ErrorContains(t, err, "review.added")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, engine.Event{}), context.Canceled)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Publish(context.Background(), engine.Event{Type: engine.EventBookingCreated}))
	require.NoError(t, r.Publish(context.Background(), engine.Event{Type: engine.EventBookingCancelled}))
	require.Len(t, r.Events(), 2)
	r.Reset()
	assert.Empty(t, r.Events())

	assert.NoError(t, Nop{}.Publish(context.Background(), engine.Event{}))
}
