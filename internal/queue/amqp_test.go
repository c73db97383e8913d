package queue

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brunao23/GerenciaIA-sub000/internal/model"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	published  []published
	bound      []string
	deliveries chan amqp.Delivery
	closed     bool
}

func (c *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{Name: "amq.gen-1"}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bound = append(c.bound, name+"/"+key+"/"+exchange)
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// acker records what the consumer did with each delivery tag.
type acker struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *acker) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *acker) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *acker) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func (a *acker) settled() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked) + len(a.nacked)
}

func newTestAMQPQueue(ch *fakeChannel) *AMQPQueue {
	return &AMQPQueue{
		ch:          ch,
		openChannel: func() (channel, error) { return ch, nil },
		exchange:    DefaultExchange,
		logger:      zap.NewNop(),
	}
}

func TestAMQPQueue_PublishEncodesEvent(t *testing.T) {
	ch := &fakeChannel{}
	q := newTestAMQPQueue(ch)

	event := model.FollowUpEvent{Type: model.EventDispatched, SessionID: "sess-1", ScheduleID: 7, AttemptNumber: 2, MessageID: "MSG1"}
	require.NoError(t, q.Publish(TopicFollowUpEvents, event))

	require.Len(t, ch.published, 1)
	p := ch.published[0]
	assert.Equal(t, DefaultExchange, p.exchange)
	assert.Equal(t, TopicFollowUpEvents, p.key)
	assert.Equal(t, "application/json", p.msg.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), p.msg.DeliveryMode)
	assert.Equal(t, string(model.EventDispatched), p.msg.Type)

	var decoded model.FollowUpEvent
	require.NoError(t, json.Unmarshal(p.msg.Body, &decoded))
	assert.Equal(t, "sess-1", decoded.SessionID)
	assert.Equal(t, int64(7), decoded.ScheduleID)
	assert.Equal(t, 2, decoded.AttemptNumber)
}

func TestAMQPQueue_SubscribeAcksAndRequeuesOnce(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 4)}
	q := newTestAMQPQueue(ch)

	var mu sync.Mutex
	var got []string
	require.NoError(t, q.Subscribe(TopicFollowUpEvents, func(e model.FollowUpEvent) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.SessionID)
		if e.SessionID == "bad" {
			return errors.New("handler failed")
		}
		return nil
	}))
	assert.Equal(t, []string{"amq.gen-1/" + TopicFollowUpEvents + "/" + DefaultExchange}, ch.bound)

	body := func(session string) []byte {
		b, _ := json.Marshal(model.FollowUpEvent{Type: model.EventStopped, SessionID: session})
		return b
	}
	ack := &acker{}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body("ok")}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: body("bad")}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: body("bad"), Redelivered: true}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 4, Body: []byte("not json")}
	close(ch.deliveries)

	require.Eventually(t, func() bool { return ack.settled() == 4 }, time.Second, 5*time.Millisecond)

	ack.mu.Lock()
	defer ack.mu.Unlock()
	assert.Equal(t, []uint64{1, 4}, ack.acked)
	assert.Equal(t, []uint64{2, 3}, ack.nacked)
	assert.Equal(t, []bool{true, false}, ack.requeue)
	mu.Lock()
	assert.Equal(t, []string{"ok", "bad", "bad"}, got)
	mu.Unlock()
}
