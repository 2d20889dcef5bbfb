package service

import (
	"context"
	"sync"
	"time"

	"trade_core/internal/models"
)

// Store is the durable per-topic queue behind the broker. The queue is
// authoritative for delivery; the live fan-out channel is advisory.
type Store interface {
	Append(ctx context.Context, msg *models.BrokerMessage) error
	// PopDue removes and returns the oldest message on topic whose
	// NextAttempt is not after now. (nil, nil) when nothing is due.
	PopDue(ctx context.Context, topic string, now time.Time) (*models.BrokerMessage, error)
	Len(ctx context.Context, topic string) (int, error)
}

// MemoryStore keeps queues in process memory. Durability is scoped to
// the process lifetime, which matches the documented process-local
// limitation of the pipeline.
type MemoryStore struct {
	mu     sync.Mutex
	queues map[string][]*models.BrokerMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{queues: make(map[string][]*models.BrokerMessage)}
}

func (s *MemoryStore) Append(_ context.Context, msg *models.BrokerMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[msg.Topic] = append(s.queues[msg.Topic], msg)
	return nil
}

func (s *MemoryStore) PopDue(_ context.Context, topic string, now time.Time) (*models.BrokerMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[topic]
	for i, msg := range q {
		if msg.NextAttempt.After(now) {
			continue
		}
		s.queues[topic] = append(q[:i:i], q[i+1:]...)
		return msg, nil
	}
	return nil, nil
}

func (s *MemoryStore) Len(_ context.Context, topic string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[topic]), nil
}
