package service

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"trade_core/internal/models"
	"trade_core/internal/notify"
	"trade_core/pkg/logger"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	b := NewBroker(NewMemoryStore(), notify.NewBus(), 2*time.Millisecond)
	t.Cleanup(b.Shutdown)
	return b
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPublishDelivers(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	got := make(chan []byte, 1)
	_, err := b.Subscribe("orders", func(ctx context.Context, msg *models.BrokerMessage) error {
		got <- msg.Payload
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)

	id, err := b.Publish(ctx, "orders", map[string]string{"k": "v"}, "test")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case payload := <-got:
		assert.Contains(t, string(payload), `"k":"v"`)
	case <-time.After(3 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestRetryExhaustionDeadLetters(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	var attempts atomic.Int32
	_, err := b.Subscribe("flaky", func(ctx context.Context, msg *models.BrokerMessage) error {
		attempts.Add(1)
		return errors.New("boom")
	}, SubscribeOptions{
		MaxRetries:      2,
		RetryDelay:      time.Millisecond,
		DeadLetterTopic: "flaky.dlq",
	})
	require.NoError(t, err)

	_, err = b.Publish(ctx, "flaky", []byte(`{}`), "test")
	require.NoError(t, err)

	waitFor(t, func() bool {
		n, _ := b.Depth(ctx, "flaky.dlq")
		return n == 1
	}, "message never dead-lettered")

	// initial attempt plus MaxRetries retries
	assert.Equal(t, int32(3), attempts.Load())

	dead, err := b.store.PopDue(ctx, "flaky.dlq", time.Now())
	require.NoError(t, err)
	require.NotNil(t, dead)
	assert.Equal(t, "flaky", dead.OriginTopic)
	assert.Equal(t, "flaky.dlq", dead.Topic)
	assert.Equal(t, 2, dead.RetryCount)
	assert.Contains(t, dead.LastError, "boom")
	assert.False(t, dead.FailedAt.IsZero())
}

func TestPermanentErrorSkipsRetries(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	var attempts atomic.Int32
	_, err := b.Subscribe("strict", func(ctx context.Context, msg *models.BrokerMessage) error {
		attempts.Add(1)
		return Permanent(errors.New("malformed"))
	}, SubscribeOptions{
		MaxRetries:      5,
		RetryDelay:      time.Millisecond,
		DeadLetterTopic: "strict.dlq",
	})
	require.NoError(t, err)

	_, err = b.Publish(ctx, "strict", []byte(`{}`), "test")
	require.NoError(t, err)

	waitFor(t, func() bool {
		n, _ := b.Depth(ctx, "strict.dlq")
		return n == 1
	}, "permanent failure not dead-lettered")

	assert.Equal(t, int32(1), attempts.Load())
}

func TestHandlerPanicDeadLetters(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	_, err := b.Subscribe("panicky", func(ctx context.Context, msg *models.BrokerMessage) error {
		panic("oops")
	}, SubscribeOptions{
		MaxRetries:      0,
		RetryDelay:      time.Millisecond,
		DeadLetterTopic: "panicky.dlq",
	})
	require.NoError(t, err)

	_, err = b.Publish(ctx, "panicky", []byte(`{}`), "test")
	require.NoError(t, err)

	waitFor(t, func() bool {
		n, _ := b.Depth(ctx, "panicky.dlq")
		return n == 1
	}, "panic not contained")

	dead, err := b.store.PopDue(ctx, "panicky.dlq", time.Now())
	require.NoError(t, err)
	require.NotNil(t, dead)
	assert.Contains(t, dead.LastError, "handler panic")
}

func TestListenIsAdvisory(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	ch, cancel := b.Listen("live", 4)
	defer cancel()

	_, err := b.Publish(ctx, "live", []byte(`{"x":1}`), "test")
	require.NoError(t, err)

	select {
	case msg := <-ch:
		assert.Equal(t, "live", msg.Topic)
	case <-time.After(time.Second):
		t.Fatal("live listener got nothing")
	}

	// no subscriber consumes, so the queue keeps the message
	n, err := b.Depth(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubscriptionCancelStopsConsumption(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	sub, err := b.Subscribe("quiet", func(ctx context.Context, msg *models.BrokerMessage) error {
		return nil
	}, SubscribeOptions{})
	require.NoError(t, err)
	sub.Cancel()

	_, err = b.Publish(ctx, "quiet", []byte(`{}`), "test")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	n, err := b.Depth(ctx, "quiet")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubscribeAfterShutdown(t *testing.T) {
	b := NewBroker(NewMemoryStore(), notify.NewBus(), time.Millisecond)
	b.Shutdown()

	_, err := b.Subscribe("late", func(ctx context.Context, msg *models.BrokerMessage) error {
		return nil
	}, SubscribeOptions{})
	assert.ErrorIs(t, err, ErrBrokerClosed)
}
