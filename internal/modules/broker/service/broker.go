package service

import (
	"context"
	"sync"
	"time"

	"trade_core/internal/helper"
	"trade_core/internal/models"
	"trade_core/internal/notify"
	"trade_core/pkg/logger"
	"trade_core/pkg/tracing"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Handler processes one message. Returning an error reschedules the
// message with exponential backoff unless the error is wrapped with
// Permanent, in which case the message fails immediately.
type Handler func(ctx context.Context, msg *models.BrokerMessage) error

type SubscribeOptions struct {
	MaxRetries      int
	RetryDelay      time.Duration
	MaxRetryDelay   time.Duration // 0 = uncapped, per contract
	DeadLetterTopic string
}

// Subscription is the registration handle; handlers are not comparable
// in Go, so cancellation goes through the handle instead of
// unsubscribe(topic, handler).
type Subscription struct {
	id      uint64
	topic   string
	handler Handler
	opts    SubscribeOptions
	broker  *Broker
}

func (s *Subscription) Cancel() {
	s.broker.remove(s.topic, s.id)
}

type listener struct {
	id uint64
	ch chan *models.BrokerMessage
}

// Broker is a topic-based pub/sub with a durable per-topic queue and an
// advisory live fan-out. The queue is authoritative: a slow or absent
// live listener never loses data. One consumer goroutine per topic pops
// one message at a time and pauses a fixed short interval between
// iterations.
type Broker struct {
	store Store
	bus   *notify.Bus
	poll  time.Duration

	mu        sync.Mutex
	subs      map[string][]*Subscription
	listeners map[string][]*listener
	loops     map[string]context.CancelFunc
	nextID    uint64
	closed    bool

	wg sync.WaitGroup
}

func NewBroker(store Store, bus *notify.Bus, poll time.Duration) *Broker {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &Broker{
		store:     store,
		bus:       bus,
		poll:      poll,
		subs:      make(map[string][]*Subscription),
		listeners: make(map[string][]*listener),
		loops:     make(map[string]context.CancelFunc),
	}
}

// Publish appends the message to the topic queue and fans it out to
// live listeners. payload is sonic-marshaled unless it is already raw
// bytes.
func (b *Broker) Publish(ctx context.Context, topic string, payload any, source string) (string, error) {
	raw, ok := payload.([]byte)
	if !ok {
		var err error
		raw, err = sonic.Marshal(payload)
		if err != nil {
			return "", err
		}
	}

	now := time.Now()
	msg := &models.BrokerMessage{
		ID:          uuid.NewString(),
		Topic:       topic,
		Payload:     raw,
		Source:      source,
		CreatedAt:   now,
		NextAttempt: now,
	}

	if err := b.store.Append(ctx, msg); err != nil {
		return "", err
	}

	b.fanout(msg)
	b.bus.Emit(ctx, notify.Event{
		Kind:      notify.EventMessagePublished,
		Topic:     topic,
		MessageID: msg.ID,
		Detail:    source,
	})
	return msg.ID, nil
}

// Subscribe registers handler and starts the topic's consumer loop if
// this is the first registration.
func (b *Broker) Subscribe(topic string, h Handler, opts SubscribeOptions) (*Subscription, error) {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}

	b.nextID++
	sub := &Subscription{
		id:      b.nextID,
		topic:   topic,
		handler: h,
		opts:    opts,
		broker:  b,
	}
	b.subs[topic] = append(b.subs[topic], sub)

	if _, running := b.loops[topic]; !running {
		ctx, cancel := context.WithCancel(context.Background())
		b.loops[topic] = cancel
		b.wg.Add(1)
		go b.consume(ctx, topic)
	}
	return sub, nil
}

// Listen returns a best-effort live feed for topic. Messages are
// dropped when the buffer is full; the queue remains authoritative.
func (b *Broker) Listen(topic string, buffer int) (<-chan *models.BrokerMessage, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	b.mu.Lock()
	b.nextID++
	l := &listener{id: b.nextID, ch: make(chan *models.BrokerMessage, buffer)}
	b.listeners[topic] = append(b.listeners[topic], l)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		ls := b.listeners[topic]
		for i, it := range ls {
			if it.id == l.id {
				b.listeners[topic] = append(ls[:i:i], ls[i+1:]...)
				return
			}
		}
	}
	return l.ch, cancel
}

// Unsubscribe drops every handler on topic and stops its consumer loop.
func (b *Broker) Unsubscribe(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, topic)
	if cancel, ok := b.loops[topic]; ok {
		cancel()
		delete(b.loops, topic)
	}
}

// Depth reports the current queue length for topic.
func (b *Broker) Depth(ctx context.Context, topic string) (int, error) {
	return b.store.Len(ctx, topic)
}

// Shutdown stops every consumer loop and waits for them to drain.
// Rescheduled messages stay in the store with their NextAttempt set, so
// stopping the loops also stops all pending retries.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	b.closed = true
	for topic, cancel := range b.loops {
		cancel()
		delete(b.loops, topic)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Broker) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
		if cancel, ok := b.loops[topic]; ok {
			cancel()
			delete(b.loops, topic)
		}
	}
}

func (b *Broker) fanout(msg *models.BrokerMessage) {
	b.mu.Lock()
	ls := b.listeners[msg.Topic]
	for _, l := range ls {
		select {
		case l.ch <- msg:
		default:
			// listener is slow; the queue still has the message
		}
	}
	b.mu.Unlock()
}

func (b *Broker) consume(ctx context.Context, topic string) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := b.store.PopDue(ctx, topic, time.Now())
		if err != nil {
			logger.Error("broker: pop %s: %v", topic, err)
			b.pause(ctx)
			continue
		}
		if msg != nil {
			b.deliver(ctx, msg)
		}
		b.pause(ctx)
	}
}

func (b *Broker) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(b.poll):
	}
}

func (b *Broker) deliver(ctx context.Context, msg *models.BrokerMessage) {
	span, ctx := tracing.StartSpan(ctx, "broker.deliver")
	defer span.Finish()
	span.SetTag("topic", msg.Topic)
	span.SetTag("message_id", msg.ID)

	b.mu.Lock()
	subs := make([]*Subscription, len(b.subs[msg.Topic]))
	copy(subs, b.subs[msg.Topic])
	b.mu.Unlock()

	if len(subs) == 0 {
		// raced with unsubscribe; put the message back untouched
		msg.NextAttempt = time.Now().Add(b.poll)
		if err := b.store.Append(ctx, msg); err != nil {
			logger.Error("broker: requeue %s: %v", msg.ID, err)
		}
		return
	}

	var firstErr error
	var failedOpts SubscribeOptions
	for _, sub := range subs {
		if err := b.invoke(ctx, sub, msg); err != nil && firstErr == nil {
			firstErr = err
			failedOpts = sub.opts
		}
	}

	if firstErr == nil {
		b.bus.Emit(ctx, notify.Event{
			Kind:      notify.EventMessageProcessed,
			Topic:     msg.Topic,
			MessageID: msg.ID,
		})
		return
	}

	if IsPermanent(firstErr) || msg.RetryCount >= failedOpts.MaxRetries {
		b.fail(ctx, msg, firstErr, failedOpts)
		return
	}

	// delay(k) = base * 2^k for the k-th retry
	delay := helper.Backoff(failedOpts.RetryDelay, msg.RetryCount, failedOpts.MaxRetryDelay)
	msg.RetryCount++
	msg.NextAttempt = time.Now().Add(delay)
	if err := b.store.Append(ctx, msg); err != nil {
		logger.Error("broker: reschedule %s: %v", msg.ID, err)
		return
	}
	b.bus.Emit(ctx, notify.Event{
		Kind:      notify.EventMessageRetried,
		Topic:     msg.Topic,
		MessageID: msg.ID,
		Err:       firstErr,
		Detail:    delay.String(),
	})
}

func (b *Broker) invoke(ctx context.Context, sub *Subscription, msg *models.BrokerMessage) (err error) {
	// one malformed or unlucky message must never crash the consumer
	defer func() {
		if p := recover(); p != nil {
			err = errPanic(p)
		}
	}()
	return sub.handler(ctx, msg)
}

func (b *Broker) fail(ctx context.Context, msg *models.BrokerMessage, cause error, opts SubscribeOptions) {
	b.bus.Emit(ctx, notify.Event{
		Kind:      notify.EventMessageFailed,
		Topic:     msg.Topic,
		MessageID: msg.ID,
		Err:       cause,
	})

	if opts.DeadLetterTopic == "" {
		logger.Error("broker: dropping %s from %s after %d retries: %v",
			msg.ID, msg.Topic, msg.RetryCount, cause)
		return
	}

	now := time.Now()
	msg.OriginTopic = msg.Topic
	msg.Topic = opts.DeadLetterTopic
	msg.FailedAt = now
	msg.LastError = cause.Error()
	msg.NextAttempt = now
	if err := b.store.Append(ctx, msg); err != nil {
		logger.Error("broker: dead-letter %s: %v", msg.ID, err)
		return
	}
	b.bus.Emit(ctx, notify.Event{
		Kind:      notify.EventMessageDeadlettered,
		Topic:     msg.OriginTopic,
		MessageID: msg.ID,
		Detail:    opts.DeadLetterTopic,
		Err:       cause,
	})
}
