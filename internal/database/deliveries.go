package database

import (
	"context"
	"fmt"
	"time"

	"dailyjokes/internal/models"
)

type DeliveryRepository struct {
	db *DB
}

func NewDeliveryRepository(db *DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// RecordDelivery marks every joke sent to one subscriber in a single
// transaction: last_sent moves to sentAt and one delivery_logs row is
// appended per joke. Either the whole batch commits or none of it does;
// times_sent is deliberately untouched here.
func (r *DeliveryRepository) RecordDelivery(ctx context.Context, subscriberID int64, jokeIDs []int64, sentAt time.Time) error {
	if len(jokeIDs) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delivery record: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, jokeID := range jokeIDs {
		tag, err := tx.Exec(ctx,
			"UPDATE jokes SET last_sent = $1 WHERE id = $2", sentAt, jokeID)
		if err != nil {
			return fmt.Errorf("mark joke %d sent: %w", jokeID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: id %d", ErrJokeNotFound, jokeID)
		}

		_, err = tx.Exec(ctx,
			"INSERT INTO delivery_logs (joke_id, subscriber_id, sent_at) VALUES ($1, $2, $3)",
			jokeID, subscriberID, sentAt)
		if err != nil {
			return fmt.Errorf("log delivery of joke %d: %w", jokeID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delivery record: %w", err)
	}
	return nil
}

func (r *DeliveryRepository) CountForSubscriber(ctx context.Context, subscriberID int64) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM delivery_logs WHERE subscriber_id = $1", subscriberID).Scan(&count)
	return count, err
}

func (r *DeliveryRepository) ListRecent(ctx context.Context, limit int) ([]models.DeliveryLog, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, joke_id, subscriber_id, sent_at
		FROM delivery_logs
		ORDER BY sent_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.DeliveryLog
	for rows.Next() {
		var l models.DeliveryLog
		if err := rows.Scan(&l.ID, &l.JokeID, &l.SubscriberID, &l.SentAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
