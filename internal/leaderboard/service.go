package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/pathwise/pathwise/internal/domain"
	"github.com/pathwise/pathwise/internal/event"
)

const (
	accuracyWeight = 60.0
	maxSpeedScore  = 30.0
	earlyBonusMax  = 10.0

	// A submission within this many hours of template creation earns the
	// full early bonus; the bonus then decays linearly to zero by hour 12.
	earlyBonusFullHours  = 6.0
	earlyBonusDecayHours = 6.0

	boardTTL = 48 * time.Hour
)

// Submission carries everything ComputeScore needs about one scored
// daily-quiz attempt.
type Submission struct {
	Score               int
	TotalPossible       int
	TimeTakenMinutes    float64
	QuizTimeMinutes     float64
	FastestPriorMinutes float64
	HasPrior            bool
	HoursSinceTemplate  float64
}

// ComputeScore ranks a daily-quiz submission by accuracy (up to 60 points),
// speed relative to the cohort's fastest prior attempt (up to 30, with no
// lower clamp, so overrunning the allotted time costs points), and an
// early-submission bonus (up to 10). Rounded to two decimals.
func ComputeScore(sub Submission) float64 {
	accuracy := 0.0
	if sub.TotalPossible > 0 {
		accuracy = float64(sub.Score) / float64(sub.TotalPossible) * accuracyWeight
	}

	fastest := sub.FastestPriorMinutes
	if !sub.HasPrior {
		fastest = sub.QuizTimeMinutes * 0.1
	}

	speed := maxSpeedScore
	if denom := sub.QuizTimeMinutes - fastest; denom > 0 {
		speed = math.Min(maxSpeedScore, (sub.QuizTimeMinutes-sub.TimeTakenMinutes)/denom*maxSpeedScore)
	}

	bonus := earlyBonusMax
	if sub.HoursSinceTemplate > earlyBonusFullHours {
		bonus = math.Max(0, earlyBonusMax-(sub.HoursSinceTemplate-earlyBonusFullHours)*earlyBonusMax/earlyBonusDecayHours)
	}

	total, _ := decimal.NewFromFloat(accuracy + speed + bonus).Round(2).Float64()
	return total
}

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service keeps the per-template daily-quiz scoreboard in redis: a ZSET of
// leaderboard scores for ranking, a min-only ZSET of attempt times for the
// fastest-prior lookup, and a hash of per-user submission metadata for
// tie-breaking.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	return &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

// Entry is one submission to record on a template's board.
type Entry struct {
	Username         string
	LeaderboardScore float64
	Score            int
	CompletedAt      time.Time
	TimeTakenMinutes float64
}

type entryMeta struct {
	Score       int       `json:"quizScore"`
	CompletedAt time.Time `json:"completedTime"`
}

// FastestPrior returns the fastest recorded attempt time for a template, in
// minutes, and whether any attempt exists.
func (s *Service) FastestPrior(ctx context.Context, templateID string) (float64, bool, error) {
	res, err := s.redis.ZRangeWithScores(ctx, s.timesKey(templateID), 0, 0).Result()
	if err != nil {
		return 0, false, fmt.Errorf("fastest prior: %w", err)
	}
	if len(res) == 0 {
		return 0, false, nil
	}
	return res[0].Score, true, nil
}

// Record writes a submission onto the board and publishes the refreshed
// leaderboard.
func (s *Service) Record(ctx context.Context, templateID string, e Entry) error {
	meta, err := json.Marshal(entryMeta{Score: e.Score, CompletedAt: e.CompletedAt})
	if err != nil {
		return fmt.Errorf("marshal entry meta: %w", err)
	}

	pipe := s.redis.Pipeline()
	pipe.ZAdd(ctx, s.boardKey(templateID), redis.Z{
		Score:  e.LeaderboardScore,
		Member: e.Username,
	})
	// LT keeps only each user's fastest time, and the board minimum is the
	// cohort's fastest prior attempt.
	pipe.ZAddLT(ctx, s.timesKey(templateID), redis.Z{
		Score:  e.TimeTakenMinutes,
		Member: e.Username,
	})
	pipe.HSet(ctx, s.metaKey(templateID), e.Username, meta)
	pipe.Expire(ctx, s.boardKey(templateID), boardTTL)
	pipe.Expire(ctx, s.timesKey(templateID), boardTTL)
	pipe.Expire(ctx, s.metaKey(templateID), boardTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record submission: %w", err)
	}

	l, err := s.Top(ctx, templateID, topSize)
	if err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})
	return nil
}

const topSize = 10

// Top returns the highest-ranked entries for a template, ordered by
// leaderboard score descending with earlier completion winning ties.
func (s *Service) Top(ctx context.Context, templateID string, n int) (*domain.Leaderboard, error) {
	scores, err := s.redis.ZRevRangeWithScores(ctx, s.boardKey(templateID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get board: %w", err)
	}
	if len(scores) == 0 {
		// A board nobody has submitted to yet is empty, not missing.
		return &domain.Leaderboard{
			TemplateID: templateID,
			Entries:    []domain.LeaderboardEntry{},
		}, nil
	}

	metas, err := s.redis.HGetAll(ctx, s.metaKey(templateID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get board meta: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(scores))
	for _, z := range scores {
		username := z.Member.(string)
		e := domain.LeaderboardEntry{
			Username:         username,
			LeaderboardScore: z.Score,
		}
		if raw, ok := metas[username]; ok {
			var m entryMeta
			if err := json.Unmarshal([]byte(raw), &m); err == nil {
				e.Score = m.Score
				e.CompletedAt = m.CompletedAt
			}
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].LeaderboardScore != entries[j].LeaderboardScore {
			return entries[i].LeaderboardScore > entries[j].LeaderboardScore
		}
		return entries[i].CompletedAt.Before(entries[j].CompletedAt)
	})

	if len(entries) > n {
		entries = entries[:n]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return &domain.Leaderboard{
		TemplateID: templateID,
		Entries:    entries,
	}, nil
}

func (s *Service) boardKey(templateID string) string {
	return fmt.Sprintf("%s:daily:%s:board", s.prefix, templateID)
}

func (s *Service) timesKey(templateID string) string {
	return fmt.Sprintf("%s:daily:%s:times", s.prefix, templateID)
}

func (s *Service) metaKey(templateID string) string {
	return fmt.Sprintf("%s:daily:%s:meta", s.prefix, templateID)
}
