package service

import (
	"context"
	"testing"
	"time"

	"trade_core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreFIFO(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(ctx, &models.BrokerMessage{
			ID: id, Topic: "t", CreatedAt: now, NextAttempt: now,
		}))
	}

	for _, want := range []string{"a", "b", "c"} {
		msg, err := s.PopDue(ctx, "t", time.Now())
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, want, msg.ID)
	}

	msg, err := s.PopDue(ctx, "t", time.Now())
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestMemoryStoreSkipsNotDue(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Append(ctx, &models.BrokerMessage{
		ID: "delayed", Topic: "t", CreatedAt: now, NextAttempt: now.Add(time.Hour),
	}))
	require.NoError(t, s.Append(ctx, &models.BrokerMessage{
		ID: "due", Topic: "t", CreatedAt: now.Add(time.Millisecond), NextAttempt: now,
	}))

	msg, err := s.PopDue(ctx, "t", time.Now())
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "due", msg.ID)

	// the delayed one stays queued until its NextAttempt
	msg, err = s.PopDue(ctx, "t", time.Now())
	require.NoError(t, err)
	assert.Nil(t, msg)

	n, err := s.Len(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStoreTopicsIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Append(ctx, &models.BrokerMessage{ID: "x", Topic: "one", CreatedAt: now, NextAttempt: now}))

	msg, err := s.PopDue(ctx, "other", time.Now())
	require.NoError(t, err)
	assert.Nil(t, msg)

	n, err := s.Len(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
