package event_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	var (
		users  = domain.EventRoomUsers{RoomID: "r1"}
		board  = domain.EventLeaderboardUpdated{RoomID: "r1"}
		ended  = domain.EventQuizEnded{RoomID: "r1"}
		asked  = domain.EventQuestionSent{RoomID: "r2"}
		inputs = func(published []event.Event, subs ...subscriber) func() ([]event.Event, []subscriber) {
			return func() ([]event.Event, []subscriber) { return published, subs }
		}
	)

	tests := map[string]struct {
		arrange func() ([]event.Event, []subscriber)
		assert  func(t *testing.T, received map[string][]event.Event)
	}{
		"a single subscriber should receive only its events": {
			arrange: inputs(
				[]event.Event{users, board},
				subscriber{name: "s1", subscribeTo: []string{domain.EventNameRoomUsers}},
			),
			assert: func(t *testing.T, received map[string][]event.Event) {
				assert.ElementsMatch(t, []event.Event{users}, received["s1"])
			},
		},

		"a single subscriber should receive every published event": {
			arrange: inputs(
				[]event.Event{board, board},
				subscriber{name: "s1", subscribeTo: []string{domain.EventNameLeaderboardUpdated}},
			),
			assert: func(t *testing.T, received map[string][]event.Event) {
				assert.ElementsMatch(t, []event.Event{board, board}, received["s1"])
			},
		},

		"an event should be dispatched to all subscribers": {
			arrange: inputs(
				[]event.Event{ended},
				subscriber{name: "metrics", subscribeTo: []string{domain.EventNameQuizEnded}},
				subscriber{name: "pubsub", subscribeTo: []string{domain.EventNameQuizEnded}},
			),
			assert: func(t *testing.T, received map[string][]event.Event) {
				assert.ElementsMatch(t, []event.Event{ended}, received["metrics"])
				assert.ElementsMatch(t, []event.Event{ended}, received["pubsub"])
			},
		},

		"multiple events should be dispatched correctly to multiple subscribers": {
			arrange: inputs(
				[]event.Event{users, asked, users, ended},
				subscriber{name: "s1", subscribeTo: []string{domain.EventNameRoomUsers}},
				subscriber{name: "s2", subscribeTo: []string{domain.EventNameRoomUsers, domain.EventNameQuestionSent}},
				subscriber{name: "s3", subscribeTo: []string{domain.EventNameQuizEnded, domain.EventNameQuestionSent}},
			),
			assert: func(t *testing.T, received map[string][]event.Event) {
				assert.ElementsMatch(t, []event.Event{users, users}, received["s1"])
				assert.ElementsMatch(t, []event.Event{users, users, asked}, received["s2"])
				assert.ElementsMatch(t, []event.Event{asked, ended}, received["s3"])
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			published, subs := tt.arrange()
			mu := sync.Mutex{}
			received := make(map[string][]event.Event)

			b := event.NewBus()
			for _, s := range subs {
				for _, e := range s.subscribeTo {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						received[s.name] = append(received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, received)
		})
	}
}

func TestBus_HandlerPanicIsRecovered(t *testing.T) {
	b := event.NewBus()

	var calls atomic.Int32
	b.Subscribe(domain.EventNameQuizEnded, func(ctx context.Context, e event.Event) error {
		calls.Add(1)
		panic("boom")
	})

	b.Publish(context.Background(), domain.EventQuizEnded{})
	b.Publish(context.Background(), domain.EventQuizEnded{})
	b.Stop()

	assert.EqualValues(t, 2, calls.Load())
}

func TestBus_Options(t *testing.T) {
	b := event.NewBus(event.WithPoolSize(1), event.WithTimeout(50*time.Millisecond))

	var (
		running, peak atomic.Int32
		deadlines     atomic.Int32
	)
	b.Subscribe(domain.EventNameRoomUsers, func(ctx context.Context, e event.Event) error {
		n := running.Add(1)
		defer running.Add(-1)
		if n > peak.Load() {
			peak.Store(n)
		}

		if d, ok := ctx.Deadline(); ok && time.Until(d) <= 50*time.Millisecond {
			deadlines.Add(1)
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	for i := 0; i < 5; i++ {
		b.Publish(context.Background(), domain.EventRoomUsers{})
	}
	b.Stop()

	assert.EqualValues(t, 1, peak.Load(), "pool of one should serialize handlers")
	assert.EqualValues(t, 5, deadlines.Load())
}

type subscriber struct {
	name        string
	subscribeTo []string
}
