package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pathwise/pathwise/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	LeaderboardUpdate struct {
		TemplateID string                   `json:"templateId"`
		Entries    []LeaderboardUpdateEntry `json:"entries"`
	}

	LeaderboardUpdateEntry struct {
		Rank          int    `json:"rank"`
		Username      string `json:"username"`
		Score         string `json:"leaderboardScore"`
		CompletedTime string `json:"completedTime"`
	}
)

// PublishLeaderboardUpdated pushes the fresh daily leaderboard to every ranked
// user's notification channel.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l := e.Leaderboard

	data := LeaderboardUpdate{
		TemplateID: l.TemplateID,
		Entries:    make([]LeaderboardUpdateEntry, 0, len(l.Entries)),
	}

	for _, entry := range l.Entries {
		data.Entries = append(data.Entries, LeaderboardUpdateEntry{
			Rank:          entry.Rank,
			Username:      entry.Username,
			Score:         strconv.FormatFloat(entry.LeaderboardScore, 'f', -1, 64),
			CompletedTime: entry.CompletedAt.Format(time.RFC3339),
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.Username, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}
