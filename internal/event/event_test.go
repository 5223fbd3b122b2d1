package event_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pathwise/pathwise/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a subscriber should only receive events it subscribed to": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("quiz.scored"),
						eventWithName("path.created"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"quiz.scored"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("quiz.scored")}, out.received["s1"])
			},
		},

		"repeated events should all be dispatched": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("quiz.scored"),
						eventWithName("quiz.scored"),
						eventWithName("quiz.scored"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"quiz.scored"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["s1"], 3)
			},
		},

		"an event should fan out to all its subscribers": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("path.completed"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"path.completed"},
						},
						{
							name:        "s2",
							subscribeTo: []string{"path.completed"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("path.completed")}, out.received["s1"])
				assert.ElementsMatch(t, []event.Event{eventWithName("path.completed")}, out.received["s2"])
			},
		},

		"mixed events should route to the right subscribers": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("quiz.scored"),
						eventWithName("path.created"),
						eventWithName("quiz.scored"),
						eventWithName("leaderboard.updated"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"quiz.scored"},
						},
						{
							name:        "s2",
							subscribeTo: []string{"quiz.scored", "path.created"},
						},
						{
							name:        "s3",
							subscribeTo: []string{"leaderboard.updated", "path.created"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("quiz.scored"), eventWithName("quiz.scored")}, out.received["s1"])
				assert.ElementsMatch(t, []event.Event{eventWithName("quiz.scored"), eventWithName("quiz.scored"), eventWithName("path.created")}, out.received["s2"])
				assert.ElementsMatch(t, []event.Event{eventWithName("leaderboard.updated"), eventWithName("path.created")}, out.received["s3"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus()
			for _, s := range in.subscribers {
				s := s
				for _, e := range s.subscribeTo {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

func TestBus_PanickingSubscriberDoesNotKillTheBus(t *testing.T) {
	b := event.NewBus()

	var (
		mu       sync.Mutex
		received int
	)
	b.Subscribe("e1", func(ctx context.Context, e event.Event) error {
		panic("boom")
	})
	b.Subscribe("e1", func(ctx context.Context, e event.Event) error {
		mu.Lock()
		received++
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), eventWithName("e1"))
	b.Publish(context.Background(), eventWithName("e1"))
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, received)
}

type eventWithName string

func (e eventWithName) Name() string {
	return string(e)
}

type subscriber struct {
	name        string
	subscribeTo []string
}
