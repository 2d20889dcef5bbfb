package service

import (
	"context"
	"time"

	"trade_core/internal/models"
	"trade_core/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// PgStore is the postgres-backed queue used in production wiring: the
// queue survives a process restart, in-flight retries do not.
type PgStore struct {
	db *db.PgTxManager
}

func NewPgStore(txm *db.PgTxManager) *PgStore {
	return &PgStore{db: txm}
}

func (s *PgStore) Append(ctx context.Context, msg *models.BrokerMessage) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.BrokerAppend")
		}
	}()

	_, err = s.db.Conn().Exec(ctx, `
		INSERT INTO broker_messages
			(id, topic, payload, source, created_at, retry_count, next_attempt, origin_topic, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			topic = EXCLUDED.topic,
			retry_count = EXCLUDED.retry_count,
			next_attempt = EXCLUDED.next_attempt,
			origin_topic = EXCLUDED.origin_topic,
			last_error = EXCLUDED.last_error`,
		msg.ID, msg.Topic, msg.Payload, msg.Source, msg.CreatedAt,
		msg.RetryCount, msg.NextAttempt, msg.OriginTopic, msg.LastError,
	)
	return err
}

func (s *PgStore) PopDue(ctx context.Context, topic string, now time.Time) (msg *models.BrokerMessage, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.BrokerPopDue")
		}
	}()

	err = s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctxTx, `
			SELECT id, topic, payload, source, created_at, retry_count, next_attempt, origin_topic, last_error
			FROM broker_messages
			WHERE topic = $1 AND next_attempt <= $2
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED`,
			topic, now,
		)

		var m models.BrokerMessage
		scanErr := row.Scan(&m.ID, &m.Topic, &m.Payload, &m.Source, &m.CreatedAt,
			&m.RetryCount, &m.NextAttempt, &m.OriginTopic, &m.LastError)
		if scanErr == pgx.ErrNoRows {
			return nil
		}
		if scanErr != nil {
			return scanErr
		}

		if _, delErr := tx.Exec(ctxTx, `DELETE FROM broker_messages WHERE id = $1`, m.ID); delErr != nil {
			return delErr
		}
		msg = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *PgStore) Len(ctx context.Context, topic string) (n int, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.BrokerLen")
		}
	}()

	row := s.db.Conn().QueryRow(ctx, `SELECT count(*) FROM broker_messages WHERE topic = $1`, topic)
	err = row.Scan(&n)
	return n, err
}
