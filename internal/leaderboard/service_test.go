package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/pathwise/internal/domain"
	"github.com/pathwise/pathwise/internal/event"
	"github.com/pathwise/pathwise/internal/leaderboard"
)

func TestComputeScore(t *testing.T) {
	tests := map[string]struct {
		sub  leaderboard.Submission
		want float64
	}{
		"perfect accuracy and speed with no bonus left": {
			sub: leaderboard.Submission{
				Score:               10,
				TotalPossible:       10,
				TimeTakenMinutes:    1,
				QuizTimeMinutes:     10,
				FastestPriorMinutes: 2,
				HasPrior:            true,
				HoursSinceTemplate:  13,
			},
			want: 90.0,
		},

		"first submission measures speed against a tenth of the quiz time": {
			sub: leaderboard.Submission{
				Score:              5,
				TotalPossible:      10,
				TimeTakenMinutes:   1,
				QuizTimeMinutes:    10,
				HasPrior:           false,
				HoursSinceTemplate: 0,
			},
			want: 70.0,
		},

		"overrunning the quiz time drives the speed component negative": {
			sub: leaderboard.Submission{
				Score:              10,
				TotalPossible:      10,
				TimeTakenMinutes:   12,
				QuizTimeMinutes:    10,
				HasPrior:           false,
				HoursSinceTemplate: 0,
			},
			want: 63.33,
		},

		"early bonus decays linearly after six hours": {
			sub: leaderboard.Submission{
				Score:               10,
				TotalPossible:       10,
				TimeTakenMinutes:    2,
				QuizTimeMinutes:     10,
				FastestPriorMinutes: 2,
				HasPrior:            true,
				HoursSinceTemplate:  9,
			},
			want: 95.0,
		},

		"early bonus is gone at twelve hours": {
			sub: leaderboard.Submission{
				Score:               10,
				TotalPossible:       10,
				TimeTakenMinutes:    2,
				QuizTimeMinutes:     10,
				FastestPriorMinutes: 2,
				HasPrior:            true,
				HoursSinceTemplate:  12,
			},
			want: 90.0,
		},

		"speed defaults to the maximum when fastest matches the quiz time": {
			sub: leaderboard.Submission{
				Score:               10,
				TotalPossible:       10,
				TimeTakenMinutes:    10,
				QuizTimeMinutes:     10,
				FastestPriorMinutes: 10,
				HasPrior:            true,
				HoursSinceTemplate:  0,
			},
			want: 100.0,
		},

		"zero possible marks yields no accuracy points": {
			sub: leaderboard.Submission{
				Score:               0,
				TotalPossible:       0,
				TimeTakenMinutes:    1,
				QuizTimeMinutes:     10,
				FastestPriorMinutes: 1,
				HasPrior:            true,
				HoursSinceTemplate:  0,
			},
			want: 40.0,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, leaderboard.ComputeScore(tt.sub), 1e-9)
		})
	}
}

func TestService_RecordAndTop(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	t0 := time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, "tmpl1", leaderboard.Entry{
		Username:         "u1",
		LeaderboardScore: 80,
		Score:            8,
		CompletedAt:      t0.Add(10 * time.Minute),
		TimeTakenMinutes: 5,
	}))
	require.NoError(t, s.Record(ctx, "tmpl1", leaderboard.Entry{
		Username:         "u2",
		LeaderboardScore: 90,
		Score:            9,
		CompletedAt:      t0.Add(20 * time.Minute),
		TimeTakenMinutes: 3,
	}))
	require.NoError(t, s.Record(ctx, "tmpl1", leaderboard.Entry{
		Username:         "u3",
		LeaderboardScore: 80,
		Score:            8,
		CompletedAt:      t0.Add(5 * time.Minute),
		TimeTakenMinutes: 7,
	}))

	l, err := s.Top(ctx, "tmpl1", 10)
	require.NoError(t, err)
	require.Len(t, l.Entries, 3)

	// Highest score first; equal scores are broken by earlier completion.
	assert.Equal(t, "u2", l.Entries[0].Username)
	assert.Equal(t, "u3", l.Entries[1].Username)
	assert.Equal(t, "u1", l.Entries[2].Username)
	for i, e := range l.Entries {
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Equal(t, 9, l.Entries[0].Score)
	assert.True(t, l.Entries[0].CompletedAt.Equal(t0.Add(20*time.Minute)))
}

func TestService_Top_Truncates(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		require.NoError(t, s.Record(ctx, "tmpl1", leaderboard.Entry{
			Username:         string(rune('a' + i)),
			LeaderboardScore: float64(i),
			CompletedAt:      time.Now().UTC(),
			TimeTakenMinutes: 5,
		}))
	}

	l, err := s.Top(ctx, "tmpl1", 10)
	require.NoError(t, err)
	assert.Len(t, l.Entries, 10)
}

func TestService_Top_EmptyBoard(t *testing.T) {
	s := makeService(t)

	l, err := s.Top(context.Background(), "tmpl1", 10)
	require.NoError(t, err, "a board without submissions is empty, not missing")
	assert.Equal(t, "tmpl1", l.TemplateID)
	assert.NotNil(t, l.Entries)
	assert.Empty(t, l.Entries)
}

func TestService_FastestPrior(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	_, has, err := s.FastestPrior(ctx, "tmpl1")
	require.NoError(t, err)
	assert.False(t, has, "empty board should have no prior")

	require.NoError(t, s.Record(ctx, "tmpl1", leaderboard.Entry{
		Username: "u1", LeaderboardScore: 50, CompletedAt: time.Now().UTC(), TimeTakenMinutes: 5,
	}))
	require.NoError(t, s.Record(ctx, "tmpl1", leaderboard.Entry{
		Username: "u2", LeaderboardScore: 60, CompletedAt: time.Now().UTC(), TimeTakenMinutes: 3,
	}))
	require.NoError(t, s.Record(ctx, "tmpl1", leaderboard.Entry{
		Username: "u3", LeaderboardScore: 70, CompletedAt: time.Now().UTC(), TimeTakenMinutes: 9,
	}))

	fastest, has, err := s.FastestPrior(ctx, "tmpl1")
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, 3.0, fastest)
}

func TestService_Record_PublishesLeaderboardUpdated(t *testing.T) {
	eb := event.NewBus()

	var (
		mu        sync.Mutex
		published []domain.EventLeaderboardUpdated
	)
	eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		published = append(published, e.(domain.EventLeaderboardUpdated))
		mu.Unlock()
		return nil
	})

	s := makeService(t, withEventBus(eb))

	err := s.Record(context.Background(), "tmpl1", leaderboard.Entry{
		Username:         "u1",
		LeaderboardScore: 88.5,
		Score:            9,
		CompletedAt:      time.Now().UTC(),
		TimeTakenMinutes: 4,
	})
	require.NoError(t, err)

	eb.Stop()

	require.Len(t, published, 1)
	assert.Equal(t, "tmpl1", published[0].Leaderboard.TemplateID)
	require.Len(t, published[0].Leaderboard.Entries, 1)
	assert.Equal(t, "u1", published[0].Leaderboard.Entries[0].Username)
	assert.Equal(t, 88.5, published[0].Leaderboard.Entries[0].LeaderboardScore)
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
		Prefix:   "test",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}
