package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dailyjokes/internal/models"
	"dailyjokes/pkg/logger"
)

type SubscriberSource interface {
	ListDueAt(ctx context.Context, hour, minute int) ([]models.Subscriber, error)
}

type JokeSource interface {
	ListByCategory(ctx context.Context, categoryName string) ([]models.Joke, error)
}

type DeliveryStore interface {
	RecordDelivery(ctx context.Context, subscriberID int64, jokeIDs []int64, sentAt time.Time) error
}

type Sender interface {
	SendJokes(ctx context.Context, subscriber models.Subscriber, jokes []models.Joke) error
}

// Dispatcher serves one (hour, minute) tick: it finds the due subscribers,
// selects one joke per preferred category, sends a single bundled email per
// subscriber and records the sends atomically per subscriber.
type Dispatcher struct {
	subscribers SubscriberSource
	jokes       JokeSource
	deliveries  DeliveryStore
	sender      Sender
	policy      Policy
	now         func() time.Time

	mu         sync.Mutex
	lastHour   int
	lastMinute int
	served     bool
}

type Option func(*Dispatcher)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func NewDispatcher(subscribers SubscriberSource, jokes JokeSource, deliveries DeliveryStore, sender Sender, policy Policy, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		subscribers: subscribers,
		jokes:       jokes,
		deliveries:  deliveries,
		sender:      sender,
		policy:      policy,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dispatch runs one tick for the given hour and minute. A repeat call for
// the minute this process last served is a no-op, so an overlapping manual
// trigger cannot double-send. Per-subscriber failures are logged and
// swallowed; only a failure to load the due subscribers is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, hour, minute int) error {
	if !d.claim(hour, minute) {
		logger.Debug("tick already dispatched, skipping",
			logger.Int("hour", hour),
			logger.Int("minute", minute),
		)
		return nil
	}

	subscribers, err := d.subscribers.ListDueAt(ctx, hour, minute)
	if err != nil {
		d.release(hour, minute)
		return fmt.Errorf("list due subscribers: %w", err)
	}

	if len(subscribers) == 0 {
		return nil
	}

	logger.Info("dispatching jokes",
		logger.Int("hour", hour),
		logger.Int("minute", minute),
		logger.Int("subscribers", len(subscribers)),
	)

	for _, subscriber := range subscribers {
		d.serve(ctx, subscriber)
	}

	return nil
}

// claim reserves the (hour, minute) tick. It returns false when this process
// already served that exact minute.
func (d *Dispatcher) claim(hour, minute int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.served && d.lastHour == hour && d.lastMinute == minute {
		return false
	}
	d.lastHour = hour
	d.lastMinute = minute
	d.served = true
	return true
}

// release undoes a claim whose tick could not start, so a retry within the
// same minute is allowed again.
func (d *Dispatcher) release(hour, minute int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.served && d.lastHour == hour && d.lastMinute == minute {
		d.served = false
	}
}

// serve handles one subscriber. Nothing it does can abort the tick: errors
// are logged and the dispatcher moves on to the next subscriber.
func (d *Dispatcher) serve(ctx context.Context, subscriber models.Subscriber) {
	now := d.now().UTC()

	var picks []models.Joke
	for _, categoryName := range subscriber.Preferences.Categories {
		candidates, err := d.jokes.ListByCategory(ctx, categoryName)
		if err != nil {
			logger.Error("failed to load jokes for category",
				logger.Err(err),
				logger.String("category", categoryName),
				logger.String("email", subscriber.Email),
			)
			continue
		}
		// Unknown or inactive category names come back empty and fall
		// through here with no pick.
		if joke := d.policy.Select(candidates, now); joke != nil {
			picks = append(picks, *joke)
		}
	}

	if len(picks) == 0 {
		logger.Debug("no eligible jokes for subscriber",
			logger.String("email", subscriber.Email),
		)
		return
	}

	if err := d.sender.SendJokes(ctx, subscriber, picks); err != nil {
		logger.Error("failed to send jokes",
			logger.Err(err),
			logger.String("email", subscriber.Email),
			logger.Int("jokes", len(picks)),
		)
		return
	}

	jokeIDs := make([]int64, len(picks))
	for i, joke := range picks {
		jokeIDs[i] = joke.ID
	}

	if err := d.deliveries.RecordDelivery(ctx, subscriber.ID, jokeIDs, now); err != nil {
		logger.Error("failed to record delivery",
			logger.Err(err),
			logger.String("email", subscriber.Email),
		)
		return
	}

	logger.Info("jokes delivered",
		logger.String("email", subscriber.Email),
		logger.Int("jokes", len(picks)),
	)
}
