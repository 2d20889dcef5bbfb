package models

import "time"

// BrokerMessage is one unit of delivery in the durable topic queue.
// RetryCount only ever grows; once it reaches the subscription's retry
// budget the message is moved to the dead-letter topic (or dropped).
type BrokerMessage struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Payload    []byte    `json:"payload"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"createdAt"`
	RetryCount int       `json:"retryCount"`

	// NextAttempt gates redelivery after a backoff reschedule.
	NextAttempt time.Time `json:"nextAttempt"`

	// Failure metadata, filled in only when the message is dead-lettered.
	FailedAt    time.Time `json:"failedAt,omitempty"`
	OriginTopic string    `json:"originTopic,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
}
