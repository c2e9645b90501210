package delivery

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"dailyjokes/internal/models"
	"dailyjokes/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init("error", io.Discard)
	os.Exit(m.Run())
}

type fakeSubscribers struct {
	subscribers []models.Subscriber
	err         error
	calls       int
}

func (f *fakeSubscribers) ListDueAt(_ context.Context, hour, minute int) ([]models.Subscriber, error) {
	f.calls++
	if f.err != nil {
		err := f.err
		f.err = nil
		return nil, err
	}
	var due []models.Subscriber
	for _, sub := range f.subscribers {
		if sub.IsActive && sub.DeliveryTime.Matches(hour, minute) {
			due = append(due, sub)
		}
	}
	return due, nil
}

type fakeJokes struct {
	byCategory map[string][]models.Joke
}

func (f *fakeJokes) ListByCategory(_ context.Context, name string) ([]models.Joke, error) {
	return f.byCategory[name], nil
}

type recordedDelivery struct {
	subscriberID int64
	jokeIDs      []int64
	sentAt       time.Time
}

type fakeDeliveries struct {
	records []recordedDelivery
	err     error
}

func (f *fakeDeliveries) RecordDelivery(_ context.Context, subscriberID int64, jokeIDs []int64, sentAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, recordedDelivery{subscriberID, jokeIDs, sentAt})
	return nil
}

type sentMail struct {
	email string
	jokes []models.Joke
}

type fakeSender struct {
	sent    []sentMail
	failFor map[string]error
}

func (f *fakeSender) SendJokes(_ context.Context, subscriber models.Subscriber, jokes []models.Joke) error {
	if err := f.failFor[subscriber.Email]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMail{subscriber.Email, jokes})
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var tickTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestDispatcher(subs *fakeSubscribers, jokes *fakeJokes, deliveries *fakeDeliveries, sender *fakeSender) *Dispatcher {
	return NewDispatcher(subs, jokes, deliveries, sender, Policy{}, WithClock(fixedClock(tickTime)))
}

func TestDispatchDeliversDueSubscriber(t *testing.T) {
	subs := &fakeSubscribers{subscribers: []models.Subscriber{{
		ID:           1,
		Email:        "reader@example.com",
		IsActive:     true,
		Preferences:  models.NewPreferences("animals"),
		DeliveryTime: models.DeliveryTime{Hour: 9, Minute: 0},
	}}}
	jokes := &fakeJokes{byCategory: map[string][]models.Joke{
		"animals": {{ID: 7, Content: "What do you call a fish with no eyes? A fsh.", TimesSent: 3}},
	}}
	deliveries := &fakeDeliveries{}
	sender := &fakeSender{}

	d := newTestDispatcher(subs, jokes, deliveries, sender)
	if err := d.Dispatch(context.Background(), 9, 0); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	if sender.sent[0].email != "reader@example.com" {
		t.Errorf("sent to %s, want reader@example.com", sender.sent[0].email)
	}
	if len(sender.sent[0].jokes) != 1 || sender.sent[0].jokes[0].ID != 7 {
		t.Errorf("sent jokes %v, want exactly joke 7", sender.sent[0].jokes)
	}

	if len(deliveries.records) != 1 {
		t.Fatalf("expected 1 delivery record, got %d", len(deliveries.records))
	}
	rec := deliveries.records[0]
	if rec.subscriberID != 1 {
		t.Errorf("recorded subscriber %d, want 1", rec.subscriberID)
	}
	if len(rec.jokeIDs) != 1 || rec.jokeIDs[0] != 7 {
		t.Errorf("recorded jokes %v, want [7]", rec.jokeIDs)
	}
	if !rec.sentAt.Equal(tickTime) {
		t.Errorf("recorded sentAt %v, want tick time %v", rec.sentAt, tickTime)
	}
}

func TestDispatchNoDueSubscribersIsNoOp(t *testing.T) {
	subs := &fakeSubscribers{subscribers: []models.Subscriber{{
		ID:           1,
		Email:        "reader@example.com",
		IsActive:     true,
		Preferences:  models.NewPreferences("animals"),
		DeliveryTime: models.DeliveryTime{Hour: 17, Minute: 30},
	}}}
	deliveries := &fakeDeliveries{}
	sender := &fakeSender{}

	d := newTestDispatcher(subs, &fakeJokes{}, deliveries, sender)
	if err := d.Dispatch(context.Background(), 9, 0); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	if len(sender.sent) != 0 {
		t.Errorf("expected no emails, got %d", len(sender.sent))
	}
	if len(deliveries.records) != 0 {
		t.Errorf("expected no delivery records, got %d", len(deliveries.records))
	}
}

func TestDispatchNeverServesInactiveSubscriber(t *testing.T) {
	subs := &fakeSubscribers{subscribers: []models.Subscriber{{
		ID:           1,
		Email:        "gone@example.com",
		IsActive:     false,
		Preferences:  models.NewPreferences("animals"),
		DeliveryTime: models.DeliveryTime{Hour: 9, Minute: 0},
	}}}
	jokes := &fakeJokes{byCategory: map[string][]models.Joke{
		"animals": {{ID: 7, Content: "joke"}},
	}}
	sender := &fakeSender{}

	d := newTestDispatcher(subs, jokes, &fakeDeliveries{}, sender)
	if err := d.Dispatch(context.Background(), 9, 0); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	if len(sender.sent) != 0 {
		t.Errorf("unsubscribed reader still got %d emails", len(sender.sent))
	}
}

func TestDispatchBundlesCategoriesIntoOneEmail(t *testing.T) {
	subs := &fakeSubscribers{subscribers: []models.Subscriber{{
		ID:           1,
		Email:        "reader@example.com",
		IsActive:     true,
		Preferences:  models.NewPreferences("animals", "puns", "retired"),
		DeliveryTime: models.DeliveryTime{Hour: 9, Minute: 0},
	}}}
	jokes := &fakeJokes{byCategory: map[string][]models.Joke{
		"animals": {{ID: 1, Content: "a"}},
		"puns":    {{ID: 2, Content: "b"}},
		// "retired" resolves to nothing, as an inactive category would.
	}}
	deliveries := &fakeDeliveries{}
	sender := &fakeSender{}

	d := newTestDispatcher(subs, jokes, deliveries, sender)
	if err := d.Dispatch(context.Background(), 9, 0); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 bundled email, got %d", len(sender.sent))
	}
	if len(sender.sent[0].jokes) != 2 {
		t.Errorf("expected 2 jokes bundled, got %d", len(sender.sent[0].jokes))
	}
	if len(deliveries.records) != 1 || len(deliveries.records[0].jokeIDs) != 2 {
		t.Errorf("expected one record with 2 jokes, got %+v", deliveries.records)
	}
}

func TestDispatchSkipsSubscriberWithNoEligibleJokes(t *testing.T) {
	lastNight := tickTime.Add(-12 * time.Hour)
	subs := &fakeSubscribers{subscribers: []models.Subscriber{{
		ID:           1,
		Email:        "reader@example.com",
		IsActive:     true,
		Preferences:  models.NewPreferences("animals"),
		DeliveryTime: models.DeliveryTime{Hour: 9, Minute: 0},
	}}}
	jokes := &fakeJokes{byCategory: map[string][]models.Joke{
		"animals": {{ID: 1, Content: "fresh", LastSent: &lastNight}},
	}}
	sender := &fakeSender{}
	deliveries := &fakeDeliveries{}

	d := newTestDispatcher(subs, jokes, deliveries, sender)
	if err := d.Dispatch(context.Background(), 9, 0); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	if len(sender.sent) != 0 {
		t.Errorf("expected no email when nothing is eligible, got %d", len(sender.sent))
	}
	if len(deliveries.records) != 0 {
		t.Errorf("expected no delivery records, got %d", len(deliveries.records))
	}
}

func TestDispatchIsolatesSendFailures(t *testing.T) {
	subs := &fakeSubscribers{subscribers: []models.Subscriber{
		{
			ID: 1, Email: "broken@example.com", IsActive: true,
			Preferences:  models.NewPreferences("animals"),
			DeliveryTime: models.DeliveryTime{Hour: 9, Minute: 0},
		},
		{
			ID: 2, Email: "fine@example.com", IsActive: true,
			Preferences:  models.NewPreferences("animals"),
			DeliveryTime: models.DeliveryTime{Hour: 9, Minute: 0},
		},
	}}
	jokes := &fakeJokes{byCategory: map[string][]models.Joke{
		"animals": {{ID: 1, Content: "a"}},
	}}
	deliveries := &fakeDeliveries{}
	sender := &fakeSender{failFor: map[string]error{
		"broken@example.com": errors.New("smtp: connection reset"),
	}}

	d := newTestDispatcher(subs, jokes, deliveries, sender)
	if err := d.Dispatch(context.Background(), 9, 0); err != nil {
		t.Fatalf("Dispatch should not surface per-subscriber errors, got %v", err)
	}

	if len(sender.sent) != 1 || sender.sent[0].email != "fine@example.com" {
		t.Errorf("second subscriber should still be served, sent = %+v", sender.sent)
	}
	if len(deliveries.records) != 1 || deliveries.records[0].subscriberID != 2 {
		t.Errorf("only the successful send should be recorded, got %+v", deliveries.records)
	}
}

func TestDispatchSkipsRecordOnCommitFailure(t *testing.T) {
	subs := &fakeSubscribers{subscribers: []models.Subscriber{{
		ID: 1, Email: "reader@example.com", IsActive: true,
		Preferences:  models.NewPreferences("animals"),
		DeliveryTime: models.DeliveryTime{Hour: 9, Minute: 0},
	}}}
	jokes := &fakeJokes{byCategory: map[string][]models.Joke{
		"animals": {{ID: 1, Content: "a"}},
	}}
	deliveries := &fakeDeliveries{err: errors.New("database gone away")}
	sender := &fakeSender{}

	d := newTestDispatcher(subs, jokes, deliveries, sender)
	if err := d.Dispatch(context.Background(), 9, 0); err != nil {
		t.Fatalf("commit failures must stay per-subscriber, got %v", err)
	}
}

func TestDispatchSameMinuteTwiceSendsOnce(t *testing.T) {
	subs := &fakeSubscribers{subscribers: []models.Subscriber{{
		ID: 1, Email: "reader@example.com", IsActive: true,
		Preferences:  models.NewPreferences("animals"),
		DeliveryTime: models.DeliveryTime{Hour: 9, Minute: 0},
	}}}
	jokes := &fakeJokes{byCategory: map[string][]models.Joke{
		"animals": {{ID: 1, Content: "a"}},
	}}
	sender := &fakeSender{}

	d := newTestDispatcher(subs, jokes, &fakeDeliveries{}, sender)
	if err := d.Dispatch(context.Background(), 9, 0); err != nil {
		t.Fatalf("first Dispatch error: %v", err)
	}
	if err := d.Dispatch(context.Background(), 9, 0); err != nil {
		t.Fatalf("second Dispatch error: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Errorf("duplicate tick for the same minute sent %d emails, want 1", len(sender.sent))
	}
	if subs.calls != 1 {
		t.Errorf("duplicate tick queried subscribers %d times, want 1", subs.calls)
	}
}

func TestDispatchDifferentMinutesBothServe(t *testing.T) {
	subs := &fakeSubscribers{subscribers: []models.Subscriber{
		{
			ID: 1, Email: "nine@example.com", IsActive: true,
			Preferences:  models.NewPreferences("animals"),
			DeliveryTime: models.DeliveryTime{Hour: 9, Minute: 0},
		},
		{
			ID: 2, Email: "nineoh-one@example.com", IsActive: true,
			Preferences:  models.NewPreferences("puns"),
			DeliveryTime: models.DeliveryTime{Hour: 9, Minute: 1},
		},
	}}
	jokes := &fakeJokes{byCategory: map[string][]models.Joke{
		"animals": {{ID: 1, Content: "a"}},
		"puns":    {{ID: 2, Content: "b"}},
	}}
	sender := &fakeSender{}

	d := newTestDispatcher(subs, jokes, &fakeDeliveries{}, sender)
	if err := d.Dispatch(context.Background(), 9, 0); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if err := d.Dispatch(context.Background(), 9, 1); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	if len(sender.sent) != 2 {
		t.Errorf("expected both minutes served, got %d emails", len(sender.sent))
	}
}

func TestDispatchRetriesMinuteAfterListFailure(t *testing.T) {
	subs := &fakeSubscribers{
		subscribers: []models.Subscriber{{
			ID: 1, Email: "reader@example.com", IsActive: true,
			Preferences:  models.NewPreferences("animals"),
			DeliveryTime: models.DeliveryTime{Hour: 9, Minute: 0},
		}},
		err: errors.New("connection refused"),
	}
	jokes := &fakeJokes{byCategory: map[string][]models.Joke{
		"animals": {{ID: 1, Content: "a"}},
	}}
	sender := &fakeSender{}

	d := newTestDispatcher(subs, jokes, &fakeDeliveries{}, sender)
	if err := d.Dispatch(context.Background(), 9, 0); err == nil {
		t.Fatal("expected the list failure to surface")
	}

	// A manual retry within the same minute must still be possible after a
	// tick that never started serving.
	if err := d.Dispatch(context.Background(), 9, 0); err != nil {
		t.Fatalf("retry Dispatch error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("retry should serve the subscriber, got %d emails", len(sender.sent))
	}
}

func TestNewTriggerSpecs(t *testing.T) {
	d := newTestDispatcher(&fakeSubscribers{}, &fakeJokes{}, &fakeDeliveries{}, &fakeSender{})

	tests := []struct {
		name     string
		schedule string
		dailyAt  models.DeliveryTime
		wantSpec string
		wantErr  bool
	}{
		{"minutely", ScheduleMinutely, models.DeliveryTime{}, "* * * * *", false},
		{"default", "", models.DeliveryTime{}, "* * * * *", false},
		{"daily", ScheduleDaily, models.DeliveryTime{Hour: 9, Minute: 30}, "30 9 * * *", false},
		{"unknown", "hourly", models.DeliveryTime{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := NewTrigger(d, tt.schedule, tt.dailyAt)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTrigger error: %v", err)
			}
			if trigger.spec != tt.wantSpec {
				t.Errorf("spec = %q, want %q", trigger.spec, tt.wantSpec)
			}
		})
	}
}

func TestTriggerTickSurvivesPanic(t *testing.T) {
	// A dispatcher with a nil subscriber source panics inside Dispatch;
	// tick must swallow it so the next minute still fires.
	d := NewDispatcher(nil, &fakeJokes{}, &fakeDeliveries{}, &fakeSender{}, Policy{})
	trigger, err := NewTrigger(d, ScheduleMinutely, models.DeliveryTime{})
	if err != nil {
		t.Fatalf("NewTrigger error: %v", err)
	}

	trigger.tick(context.Background())
}
