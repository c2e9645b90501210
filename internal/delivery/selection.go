package delivery

import (
	"time"

	"dailyjokes/internal/models"
)

// DefaultStalenessWindow is how long a joke stays off-limits after a send.
const DefaultStalenessWindow = 7 * 24 * time.Hour

// Policy picks which joke of a category goes out next. A joke is eligible
// when it has never been sent or when its last send is at least Window ago;
// among eligible jokes the one sent longest ago wins, with never-sent jokes
// sorting before everything. That rotates through a category before any joke
// repeats.
type Policy struct {
	Window time.Duration
}

func (p Policy) window() time.Duration {
	if p.Window <= 0 {
		return DefaultStalenessWindow
	}
	return p.Window
}

// Select returns the next joke due for rotation, or nil when nothing is
// eligible. A nil result is a normal outcome, not a failure.
func (p Policy) Select(jokes []models.Joke, now time.Time) *models.Joke {
	cutoff := now.Add(-p.window())

	var best *models.Joke
	for i := range jokes {
		joke := &jokes[i]
		if joke.LastSent != nil && joke.LastSent.After(cutoff) {
			continue
		}
		if best == nil || sentEarlier(joke, best) {
			best = joke
		}
	}
	return best
}

// sentEarlier reports whether a should rotate out before b. A nil LastSent
// sorts before any timestamp.
func sentEarlier(a, b *models.Joke) bool {
	if a.LastSent == nil {
		return b.LastSent != nil
	}
	if b.LastSent == nil {
		return false
	}
	return a.LastSent.Before(*b.LastSent)
}
