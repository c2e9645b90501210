package database

import (
	"context"
	"errors"
	"fmt"

	"dailyjokes/internal/models"

	"github.com/jackc/pgx/v5"
)

// SubscribeOutcome says what Subscribe actually did with the email.
type SubscribeOutcome int

const (
	SubscribeCreated SubscribeOutcome = iota
	SubscribeReactivated
	SubscribeAlready
)

func (o SubscribeOutcome) String() string {
	switch o {
	case SubscribeCreated:
		return "subscribed"
	case SubscribeReactivated:
		return "reactivated"
	case SubscribeAlready:
		return "already_subscribed"
	default:
		return "unknown"
	}
}

type SubscriberRepository struct {
	db *DB
}

func NewSubscriberRepository(db *DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

const subscriberColumns = `id, email, is_active, preferences, to_char(delivery_time, 'HH24:MI'), subscribed_at`

func scanSubscriber(row pgx.Row) (*models.Subscriber, error) {
	var sub models.Subscriber
	var deliveryTime string
	err := row.Scan(&sub.ID, &sub.Email, &sub.IsActive, &sub.Preferences, &deliveryTime, &sub.SubscribedAt)
	if err != nil {
		return nil, err
	}
	sub.DeliveryTime, err = models.ParseDeliveryTime(deliveryTime)
	if err != nil {
		return nil, fmt.Errorf("stored delivery time is corrupt: %w", err)
	}
	return &sub, nil
}

// Subscribe enrolls an email address, reusing the existing row when the email
// was seen before. An already-active subscriber is left untouched; an
// inactive one is reactivated with the new preferences and delivery time.
func (r *SubscriberRepository) Subscribe(ctx context.Context, email string, prefs models.Preferences, deliveryTime models.DeliveryTime) (*models.Subscriber, SubscribeOutcome, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("begin subscribe: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := scanSubscriber(tx.QueryRow(ctx,
		"SELECT "+subscriberColumns+" FROM subscribers WHERE email = $1 FOR UPDATE", email))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, fmt.Errorf("look up subscriber: %w", err)
	}

	if existing != nil {
		if existing.IsActive {
			return existing, SubscribeAlready, nil
		}

		updated, err := scanSubscriber(tx.QueryRow(ctx, `
			UPDATE subscribers
			SET is_active = true, preferences = $1, delivery_time = $2::time
			WHERE id = $3
			RETURNING `+subscriberColumns,
			prefs, deliveryTime.String(), existing.ID))
		if err != nil {
			return nil, 0, fmt.Errorf("reactivate subscriber: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, 0, fmt.Errorf("commit subscribe: %w", err)
		}
		return updated, SubscribeReactivated, nil
	}

	created, err := scanSubscriber(tx.QueryRow(ctx, `
		INSERT INTO subscribers (email, preferences, delivery_time)
		VALUES ($1, $2, $3::time)
		RETURNING `+subscriberColumns,
		email, prefs, deliveryTime.String()))
	if err != nil {
		return nil, 0, fmt.Errorf("insert subscriber: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit subscribe: %w", err)
	}
	return created, SubscribeCreated, nil
}

// Unsubscribe soft-deletes; an unknown email is a silent no-op.
func (r *SubscriberRepository) Unsubscribe(ctx context.Context, email string) error {
	_, err := r.db.Pool.Exec(ctx,
		"UPDATE subscribers SET is_active = false WHERE email = $1", email)
	return err
}

func (r *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	sub, err := scanSubscriber(r.db.Pool.QueryRow(ctx,
		"SELECT "+subscriberColumns+" FROM subscribers WHERE email = $1", email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

// ListDueAt returns the active subscribers whose delivery time matches the
// given hour and minute exactly.
func (r *SubscriberRepository) ListDueAt(ctx context.Context, hour, minute int) ([]models.Subscriber, error) {
	query := `
		SELECT ` + subscriberColumns + `
		FROM subscribers
		WHERE is_active = true
		  AND EXTRACT(HOUR FROM delivery_time) = $1
		  AND EXTRACT(MINUTE FROM delivery_time) = $2
		ORDER BY id
	`
	rows, err := r.db.Pool.Query(ctx, query, hour, minute)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subscribers []models.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subscribers = append(subscribers, *sub)
	}
	return subscribers, rows.Err()
}

func (r *SubscriberRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM subscribers WHERE is_active = true").Scan(&count)
	return count, err
}
