package delivery

import (
	"context"
	"fmt"
	"time"

	"dailyjokes/internal/models"
	"dailyjokes/pkg/logger"

	"github.com/robfig/cron/v3"
)

const (
	ScheduleMinutely = "minutely"
	ScheduleDaily    = "daily"
)

// Trigger fires the dispatcher on a cron schedule: every minute by default,
// or once a day at a fixed HH:MM. There is no catch-up; minutes the process
// misses are simply not served.
type Trigger struct {
	cron       *cron.Cron
	dispatcher *Dispatcher
	spec       string
	now        func() time.Time
}

func NewTrigger(dispatcher *Dispatcher, schedule string, dailyAt models.DeliveryTime) (*Trigger, error) {
	var spec string
	switch schedule {
	case ScheduleMinutely, "":
		spec = "* * * * *"
	case ScheduleDaily:
		spec = fmt.Sprintf("%d %d * * *", dailyAt.Minute, dailyAt.Hour)
	default:
		return nil, fmt.Errorf("unknown delivery schedule %q", schedule)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	return &Trigger{
		cron:       cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
		dispatcher: dispatcher,
		spec:       spec,
		now:        time.Now,
	}, nil
}

func (t *Trigger) Start(ctx context.Context) error {
	if _, err := t.cron.AddFunc(t.spec, func() { t.tick(ctx) }); err != nil {
		return fmt.Errorf("register dispatch schedule: %w", err)
	}

	t.cron.Start()
	logger.Info("delivery trigger started", logger.String("spec", t.spec))
	return nil
}

// Stop halts the schedule and waits for an in-flight tick to finish.
func (t *Trigger) Stop() {
	<-t.cron.Stop().Done()
	logger.Info("delivery trigger stopped")
}

// tick runs one dispatch pass for the current wall-clock minute. Nothing a
// tick does may prevent the next minute from firing, so errors and panics
// both stop here.
func (t *Trigger) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch tick panicked", logger.Any("panic", r))
		}
	}()

	now := t.now().UTC()
	if err := t.dispatcher.Dispatch(ctx, now.Hour(), now.Minute()); err != nil {
		logger.Error("dispatch tick failed",
			logger.Err(err),
			logger.Int("hour", now.Hour()),
			logger.Int("minute", now.Minute()),
		)
	}
}
