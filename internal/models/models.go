package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Admin struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Subscriber struct {
	ID           int64        `json:"id"`
	Email        string       `json:"email"`
	IsActive     bool         `json:"is_active"`
	Preferences  Preferences  `json:"preferences"`
	DeliveryTime DeliveryTime `json:"delivery_time"`
	SubscribedAt time.Time    `json:"subscribed_at"`
}

type Joke struct {
	ID         int64      `json:"id"`
	Content    string     `json:"content"`
	CategoryID int64      `json:"category_id"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSent   *time.Time `json:"last_sent"`
	Rating     float64    `json:"rating"`
	TimesSent  int        `json:"times_sent"`
}

type DeliveryLog struct {
	ID           int64     `json:"id"`
	JokeID       int64     `json:"joke_id"`
	SubscriberID int64     `json:"subscriber_id"`
	SentAt       time.Time `json:"sent_at"`
}

// Preferences is the set of category names a subscriber wants jokes from.
// Stored as {"categories": [...]} JSON. Names that no longer resolve to an
// active category simply never match anything; they are not an error.
type Preferences struct {
	Categories []string `json:"categories"`
}

// NewPreferences normalizes a raw list of category names: trims whitespace,
// drops empties, removes duplicates while keeping first-seen order.
func NewPreferences(names ...string) Preferences {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return Preferences{Categories: out}
}

// DefaultPreferences is what a subscriber gets when they pick nothing.
func DefaultPreferences() Preferences {
	return NewPreferences("general")
}

func (p Preferences) IsEmpty() bool {
	return len(p.Categories) == 0
}

var ErrInvalidDeliveryTime = fmt.Errorf("delivery time must be HH:MM")

// DeliveryTime is a time of day with minute granularity. It carries no date
// and no timezone; all comparisons happen against the server clock in UTC.
type DeliveryTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseDeliveryTime parses "HH:MM" (24-hour clock).
func ParseDeliveryTime(s string) (DeliveryTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return DeliveryTime{}, fmt.Errorf("%w: got %q", ErrInvalidDeliveryTime, s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return DeliveryTime{}, fmt.Errorf("%w: bad hour in %q", ErrInvalidDeliveryTime, s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return DeliveryTime{}, fmt.Errorf("%w: bad minute in %q", ErrInvalidDeliveryTime, s)
	}

	return DeliveryTime{Hour: hour, Minute: minute}, nil
}

func (t DeliveryTime) Matches(hour, minute int) bool {
	return t.Hour == hour && t.Minute == minute
}

func (t DeliveryTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// NextRating folds one vote into a joke's running weighted mean:
//
//	next = (rating*timesSent + vote) / (timesSent + 1)
//
// and bumps timesSent. Earlier votes end up weighted more heavily than later
// ones; votes are never stored individually.
func NextRating(rating float64, timesSent int, vote int) (float64, int) {
	next := (rating*float64(timesSent) + float64(vote)) / float64(timesSent+1)
	return next, timesSent + 1
}
