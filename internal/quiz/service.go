package quiz

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pathwise/pathwise/internal/domain"
	"github.com/pathwise/pathwise/internal/errors"
	"github.com/pathwise/pathwise/internal/event"
	"github.com/pathwise/pathwise/internal/generate"
	"github.com/pathwise/pathwise/internal/leaderboard"
	"github.com/pathwise/pathwise/internal/path"
	"github.com/pathwise/pathwise/internal/store"
)

const (
	defaultCustomQuestions = 5
	dailyQuestions         = 10
)

// dailyTopics is the rotation pool for the shared daily template.
var dailyTopics = []string{"Mathematics", "Science", "History", "Literature", "Programming"}

type Config struct {
	EventBus    *event.Bus
	Quizzes     store.Quizzes
	Generator   generate.ContentGenerator
	Paths       *path.Service
	Leaderboard *leaderboard.Service
	Now         func() time.Time
}

type Service struct {
	eb        *event.Bus
	quizzes   store.Quizzes
	generator generate.ContentGenerator
	paths     *path.Service
	lb        *leaderboard.Service
	now       func() time.Time

	// dailySF collapses concurrent same-day template creations in-process;
	// the storage unique index catches races across processes.
	dailySF singleflight.Group
}

func NewService(c Config) *Service {
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Service{
		eb:        c.EventBus,
		quizzes:   c.Quizzes,
		generator: c.Generator,
		paths:     c.Paths,
		lb:        c.Leaderboard,
		now:       c.Now,
	}
}

type GenerateCustomRequest struct {
	OwnerID      string
	TopicName    string
	Difficulty   domain.Difficulty
	NumQuestions int
}

// GenerateCustom creates a standalone quiz on any topic.
func (s *Service) GenerateCustom(ctx context.Context, req GenerateCustomRequest) (*domain.Quiz, error) {
	if req.NumQuestions <= 0 {
		req.NumQuestions = defaultCustomQuestions
	}

	content, err := s.generator.GenerateQuiz(ctx, req.TopicName, req.Difficulty, req.NumQuestions, domain.VariantCustom)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate custom quiz: %w", err))
	}

	q, err := s.newQuiz(req.OwnerID, domain.VariantCustom, req.TopicName, req.Difficulty, content)
	if err != nil {
		return nil, err
	}

	if err := s.quizzes.Insert(ctx, q); err != nil {
		return nil, errors.Internal(fmt.Errorf("insert quiz: %w", err))
	}
	return q, nil
}

type GetDailyResponse struct {
	Quiz             *domain.Quiz
	AlreadySubmitted bool
}

// GetDaily returns the caller's quiz instance for today's shared daily
// template, creating the template and the instance as needed. The template is
// ownerless and created at most once per day.
func (s *Service) GetDaily(ctx context.Context, ownerID string) (*GetDailyResponse, error) {
	template, err := s.dailyTemplate(ctx, true)
	if err != nil {
		return nil, err
	}

	instance, err := s.quizzes.GetDailyInstance(ctx, ownerID, template.ID)
	if err == nil {
		return &GetDailyResponse{
			Quiz:             instance,
			AlreadySubmitted: instance.Result != domain.ResultPending,
		}, nil
	}
	if !stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.Internal(err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate quiz ID: %w", err))
	}

	instance = &domain.Quiz{
		ID:              id.String(),
		OwnerID:         ownerID,
		Variant:         domain.VariantDaily,
		ParentID:        template.ID,
		TopicName:       template.TopicName,
		Difficulty:      template.Difficulty,
		QuizTimeMinutes: template.QuizTimeMinutes,
		Questions:       template.Questions,
		Result:          domain.ResultPending,
		CreatedAt:       s.now(),
	}

	err = s.quizzes.Insert(ctx, instance)
	if stderrors.Is(err, store.ErrDuplicate) {
		// Lost a race against another request from the same user.
		instance, err = s.quizzes.GetDailyInstance(ctx, ownerID, template.ID)
		if err != nil {
			return nil, errors.Internal(err)
		}
		return &GetDailyResponse{
			Quiz:             instance,
			AlreadySubmitted: instance.Result != domain.ResultPending,
		}, nil
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("insert daily instance: %w", err))
	}

	return &GetDailyResponse{Quiz: instance}, nil
}

// DailyTemplate returns today's shared template without creating one.
func (s *Service) DailyTemplate(ctx context.Context) (*domain.Quiz, error) {
	return s.dailyTemplate(ctx, false)
}

func (s *Service) dailyTemplate(ctx context.Context, create bool) (*domain.Quiz, error) {
	today := s.now().UTC()

	template, err := s.quizzes.GetDailyTemplate(ctx, today)
	if err == nil {
		return template, nil
	}
	if !stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.Internal(err)
	}
	if !create {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no daily quiz available"))
	}

	key := today.Format("2006-01-02")
	v, err, _ := s.dailySF.Do(key, func() (any, error) {
		return s.createDailyTemplate(ctx, today)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Quiz), nil
}

func (s *Service) createDailyTemplate(ctx context.Context, today time.Time) (*domain.Quiz, error) {
	// Re-check under the singleflight.
	template, err := s.quizzes.GetDailyTemplate(ctx, today)
	if err == nil {
		return template, nil
	}
	if !stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.Internal(err)
	}

	topic := dailyTopics[rand.Intn(len(dailyTopics))]
	content, err := s.generator.GenerateQuiz(ctx, topic, domain.DifficultyMedium, dailyQuestions, domain.VariantDaily)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate daily quiz: %w", err))
	}

	template, err = s.newQuiz("", domain.VariantDaily, topic, domain.DifficultyMedium, content)
	if err != nil {
		return nil, err
	}

	err = s.quizzes.InsertDailyTemplate(ctx, template)
	if stderrors.Is(err, store.ErrDuplicate) {
		// Another process created today's template first; use theirs.
		template, err = s.quizzes.GetDailyTemplate(ctx, today)
		if err != nil {
			return nil, errors.Internal(err)
		}
		return template, nil
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("insert daily template: %w", err))
	}
	return template, nil
}

type SubmitRequest struct {
	OwnerID  string
	Username string
	QuizID   string
	Variant  domain.Variant
	Answers  []Answer
}

type SubmitResponse struct {
	Quiz    *domain.Quiz
	Message string
}

// Submit scores a quiz submission, enriches it with performance analysis
// (degrading to fallback text if the analyzer fails), applies path
// reconciliation for path-linked quizzes and leaderboard recording for daily
// quizzes, and persists the terminal quiz state.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	q, err := s.quizzes.Get(ctx, req.QuizID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found or unauthorized"))
	}
	if err != nil {
		return nil, errors.Internal(err)
	}

	if q.OwnerID == "" || q.OwnerID != req.OwnerID {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found or unauthorized"))
	}
	if q.Variant != req.Variant {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("quiz %s is a %s quiz, not %s", q.ID, q.Variant, req.Variant))
	}
	if q.Result != domain.ResultPending {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("quiz already submitted"))
	}

	outcome, err := Score(q.Questions, req.Answers)
	if err != nil {
		return nil, err
	}

	analysis := s.analyze(ctx, q, outcome)

	completedAt := s.now()
	q.Responses = outcome.Responses
	q.Score = outcome.Score
	q.Result = outcome.Result
	q.CompletedAt = &completedAt
	q.Strengths = analysis.Strengths
	q.Weaknesses = analysis.Weaknesses
	q.RecommendedResources = analysis.Resources
	attachRemedialResources(q, analysis.RemedialTopics)

	ranked := false
	if q.Variant == domain.VariantDaily && q.ParentID != "" {
		if err := s.scoreForLeaderboard(ctx, q, outcome, completedAt); err != nil {
			// Ranking failures must not lose the submission itself.
			slog.ErrorContext(ctx, "quiz: leaderboard scoring failed",
				"quiz", q.ID, "error", err)
		} else {
			ranked = true
		}
	}

	if err := s.quizzes.Update(ctx, q); err != nil {
		return nil, errors.Internal(fmt.Errorf("save scored quiz: %w", err))
	}

	if ranked {
		err := s.lb.Record(ctx, q.ParentID, leaderboard.Entry{
			Username:         req.Username,
			LeaderboardScore: q.LeaderboardScore,
			Score:            q.Score,
			CompletedAt:      completedAt,
			TimeTakenMinutes: completedAt.Sub(q.CreatedAt).Minutes(),
		})
		if err != nil {
			slog.ErrorContext(ctx, "quiz: record leaderboard entry failed",
				"quiz", q.ID, "error", err)
		}
	}

	if q.Variant == domain.VariantPathLinked && q.LearningPathID != "" {
		if err := s.paths.Reconcile(ctx, q, analysis.RemedialTopics); err != nil {
			// The quiz score is saved; reconciliation failure is logged, not
			// surfaced as a submission failure.
			slog.ErrorContext(ctx, "quiz: learning path reconciliation failed",
				"quiz", q.ID, "path", q.LearningPathID, "error", err)
		}
	}

	s.eb.Publish(ctx, domain.EventQuizScored{Quiz: *q})

	return &SubmitResponse{
		Quiz:    q,
		Message: "Quiz submitted successfully",
	}, nil
}

// analyze runs the performance classifier with the required fallback: a
// failing or malformed analysis never aborts the submission.
func (s *Service) analyze(ctx context.Context, q *domain.Quiz, outcome *Outcome) *generate.Analysis {
	analysis, err := s.generator.AnalyzePerformance(ctx, q.TopicName, q.Difficulty, outcome.Responses, q.Questions)
	if err != nil {
		slog.WarnContext(ctx, "quiz: performance analysis failed, using fallback",
			"quiz", q.ID, "error", err)
		return generate.FallbackAnalysis()
	}
	if analysis.Strengths == "" {
		analysis.Strengths = generate.FallbackAnalysis().Strengths
	}
	if analysis.Weaknesses == "" {
		analysis.Weaknesses = generate.FallbackAnalysis().Weaknesses
	}
	return analysis
}

func (s *Service) scoreForLeaderboard(ctx context.Context, q *domain.Quiz, outcome *Outcome, completedAt time.Time) error {
	template, err := s.quizzes.Get(ctx, q.ParentID)
	if err != nil {
		return fmt.Errorf("load daily template: %w", err)
	}

	fastest, hasPrior, err := s.lb.FastestPrior(ctx, q.ParentID)
	if err != nil {
		return err
	}

	q.LeaderboardScore = leaderboard.ComputeScore(leaderboard.Submission{
		Score:               outcome.Score,
		TotalPossible:       outcome.TotalPossible,
		TimeTakenMinutes:    completedAt.Sub(q.CreatedAt).Minutes(),
		QuizTimeMinutes:     float64(q.QuizTimeMinutes),
		FastestPriorMinutes: fastest,
		HasPrior:            hasPrior,
		HoursSinceTemplate:  completedAt.Sub(template.CreatedAt).Hours(),
	})
	return nil
}

// attachRemedialResources copies the remedial resources for a question's
// subtopic onto the incorrect response, so the client can render per-question
// study links.
func attachRemedialResources(q *domain.Quiz, remedial []generate.TopicContent) {
	if len(remedial) == 0 {
		return
	}

	bySubtopic := make(map[string][]domain.ResourceLink, len(remedial))
	for _, t := range remedial {
		bySubtopic[t.Name] = t.ResourceLinks
	}

	for i := range q.Responses {
		if q.Responses[i].IsCorrect || i >= len(q.Questions) {
			continue
		}
		if links, ok := bySubtopic[q.Questions[i].Subtopic]; ok {
			q.Responses[i].RemedialResources = links
		}
	}
}

func (s *Service) newQuiz(ownerID string, variant domain.Variant, topicName string, difficulty domain.Difficulty, content *generate.QuizContent) (*domain.Quiz, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate quiz ID: %w", err))
	}

	return &domain.Quiz{
		ID:              id.String(),
		OwnerID:         ownerID,
		Variant:         variant,
		TopicName:       topicName,
		Difficulty:      difficulty,
		QuizTimeMinutes: content.DurationMinutes,
		Questions:       content.Questions,
		Result:          domain.ResultPending,
		CreatedAt:       s.now(),
	}, nil
}

// ListByOwner returns the caller's quizzes across all variants.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	quizzes, err := s.quizzes.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return quizzes, nil
}
