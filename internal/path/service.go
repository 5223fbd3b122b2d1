package path

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise/internal/domain"
	"github.com/pathwise/pathwise/internal/errors"
	"github.com/pathwise/pathwise/internal/event"
	"github.com/pathwise/pathwise/internal/generate"
	"github.com/pathwise/pathwise/internal/store"
)

// maxMutationRetries bounds optimistic-update retries on a path document.
// Two quiz submissions racing on the same path serialize through the version
// check; more than a few conflicts in a row means something is wrong.
const maxMutationRetries = 3

const pathQuizQuestions = 5

type Config struct {
	EventBus  *event.Bus
	Paths     store.Paths
	Quizzes   store.Quizzes
	Generator generate.ContentGenerator
	Now       func() time.Time
}

type Service struct {
	eb        *event.Bus
	paths     store.Paths
	quizzes   store.Quizzes
	generator generate.ContentGenerator
	now       func() time.Time
}

func NewService(c Config) *Service {
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Service{
		eb:        c.EventBus,
		paths:     c.Paths,
		quizzes:   c.Quizzes,
		generator: c.Generator,
		now:       c.Now,
	}
}

type GenerateRequest struct {
	OwnerID    string
	CourseName string
	Difficulty domain.Difficulty
}

// Generate synthesizes a new learning path for a course and persists it.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*domain.LearningPath, error) {
	content, err := s.generator.GeneratePath(ctx, req.CourseName, req.Difficulty)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate learning path: %w", err))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate path ID: %w", err))
	}

	topics := make([]domain.Topic, 0, len(content.Topics))
	for i, t := range content.Topics {
		topics = append(topics, domain.Topic{
			Name:          t.Name,
			Description:   t.Description,
			ResourceLinks: t.ResourceLinks,
			Order:         i + 1,
		})
	}

	p := &domain.LearningPath{
		ID:         id.String(),
		OwnerID:    req.OwnerID,
		Name:       req.CourseName,
		Difficulty: req.Difficulty,
		Topics:     topics,
		Strengths:  content.Strength,
		Weaknesses: content.Weakness,
		CreatedAt:  s.now(),
	}
	p.RecomputeCompletion()

	if err := s.paths.Insert(ctx, p); err != nil {
		return nil, errors.Internal(fmt.Errorf("insert path: %w", err))
	}

	s.eb.Publish(ctx, domain.EventPathCreated{Path: *p})
	return p, nil
}

type TriggerQuizRequest struct {
	OwnerID       string
	PathID        string
	SubtopicNames []string
}

// TriggerQuiz generates a path-linked quiz over the given subtopics and
// registers it on the path's quiz list as not yet completed.
func (s *Service) TriggerQuiz(ctx context.Context, req TriggerQuizRequest) (*domain.Quiz, error) {
	if len(req.SubtopicNames) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("subtopicNames are required"))
	}

	p, err := s.Get(ctx, req.OwnerID, req.PathID)
	if err != nil {
		return nil, err
	}

	topicName := strings.Join(req.SubtopicNames, ", ")
	content, err := s.generator.GenerateQuiz(ctx, topicName, p.Difficulty, pathQuizQuestions, domain.VariantPathLinked)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate path quiz: %w", err))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate quiz ID: %w", err))
	}

	q := &domain.Quiz{
		ID:              id.String(),
		OwnerID:         req.OwnerID,
		Variant:         domain.VariantPathLinked,
		LearningPathID:  p.ID,
		TopicName:       topicName,
		Difficulty:      p.Difficulty,
		QuizTimeMinutes: content.DurationMinutes,
		Questions:       content.Questions,
		Result:          domain.ResultPending,
		CreatedAt:       s.now(),
	}

	if err := s.quizzes.Insert(ctx, q); err != nil {
		return nil, errors.Internal(fmt.Errorf("insert quiz: %w", err))
	}

	link := domain.QuizLink{
		QuizID:           q.ID,
		Completed:        false,
		CoveredSubtopics: req.SubtopicNames,
	}

	err = s.mutate(ctx, p.ID, func(p *domain.LearningPath) error {
		p.QuizLinks = append(p.QuizLinks, link)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return q, nil
}

// Reconcile applies a scored path-linked quiz back onto its learning path:
// the triggering quiz link is marked completed, score and gamification points
// accrue, remedial topics for incorrectly answered subtopics are appended,
// and the completion percent is re-derived.
//
// A missing path or quiz link is logged and swallowed: the quiz score is
// already saved and an orphaned link must not fail the submission.
func (s *Service) Reconcile(ctx context.Context, q *domain.Quiz, remedial []generate.TopicContent) error {
	var completedPath *domain.LearningPath

	err := s.mutate(ctx, q.LearningPathID, func(p *domain.LearningPath) error {
		// Reset on every attempt: only the write that actually persists may
		// decide completion.
		completedPath = nil

		idx := -1
		for i := range p.QuizLinks {
			if p.QuizLinks[i].QuizID == q.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return errOrphanedLink
		}
		if p.QuizLinks[idx].Completed {
			// Already reconciled; the quiz resubmission guard makes this
			// unreachable outside of replays.
			return errAlreadyReconciled
		}

		p.QuizLinks[idx].Completed = true
		p.CumulativeScore += q.Score
		p.GamificationPoints += q.Score * domain.PointsPerMark

		incorrect := domain.IncorrectSubtopics(q.Questions, q.Responses)
		base := p.MaxTopicOrder()
		appended := 0
		for _, t := range remedial {
			if !containsName(incorrect, t.Name) {
				continue
			}
			appended++
			p.Topics = append(p.Topics, domain.Topic{
				Name:          t.Name,
				Description:   t.Description,
				ResourceLinks: t.ResourceLinks,
				Order:         base + appended,
			})
		}

		p.RecomputeCompletion()

		if p.CompletionPercent == 100 && p.CompletionDate == nil {
			now := s.now()
			p.CompletionDate = &now
			completedPath = p
		}
		return nil
	})

	switch {
	case stderrors.Is(err, errOrphanedLink):
		slog.WarnContext(ctx, "path: orphaned quiz link, skipping reconciliation",
			"path", q.LearningPathID, "quiz", q.ID)
		return nil
	case stderrors.Is(err, errAlreadyReconciled):
		slog.WarnContext(ctx, "path: quiz link already reconciled",
			"path", q.LearningPathID, "quiz", q.ID)
		return nil
	case stderrors.Is(err, store.ErrNotFound):
		slog.WarnContext(ctx, "path: linked learning path not found, skipping reconciliation",
			"path", q.LearningPathID, "quiz", q.ID)
		return nil
	case err != nil:
		return err
	}

	if completedPath != nil {
		s.eb.Publish(ctx, domain.EventPathCompleted{Path: *completedPath})
	}
	return nil
}

var (
	errOrphanedLink      = stderrors.New("path: orphaned quiz link")
	errAlreadyReconciled = stderrors.New("path: quiz link already reconciled")
)

type MarkTopicCompleteRequest struct {
	OwnerID          string
	PathID           string
	TopicOrder       int
	TimeSpentMinutes int
}

// MarkTopicComplete flags a topic as completed and re-derives the path's
// completion percent. Completing the last topic sets the sticky completion
// date and fires the path-completed event exactly once.
func (s *Service) MarkTopicComplete(ctx context.Context, req MarkTopicCompleteRequest) (*domain.LearningPath, error) {
	if _, err := s.Get(ctx, req.OwnerID, req.PathID); err != nil {
		return nil, err
	}

	var (
		updated       *domain.LearningPath
		completedPath *domain.LearningPath
	)

	err := s.mutate(ctx, req.PathID, func(p *domain.LearningPath) error {
		// Reset on every attempt: only the write that actually persists may
		// decide completion.
		completedPath = nil

		idx := -1
		for i := range p.Topics {
			if p.Topics[i].Order == req.TopicOrder {
				idx = i
				break
			}
		}
		if idx < 0 {
			return errors.New(errors.CodeNotFound,
				errors.WithMessagef("topic %d not found in learning path", req.TopicOrder))
		}

		t := &p.Topics[idx]
		t.TimeSpentMinutes += req.TimeSpentMinutes
		if !t.CompletionStatus {
			t.CompletionStatus = true
			now := s.now()
			t.CompletionDate = &now
		}

		p.RecomputeCompletion()
		if p.CompletionPercent == 100 && p.CompletionDate == nil {
			now := s.now()
			p.CompletionDate = &now
			completedPath = p
		}

		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completedPath != nil {
		s.eb.Publish(ctx, domain.EventPathCompleted{Path: *completedPath})
	}
	return updated, nil
}

// Get loads a path and checks ownership; a path owned by someone else is
// reported as not found.
func (s *Service) Get(ctx context.Context, ownerID, pathID string) (*domain.LearningPath, error) {
	p, err := s.paths.Get(ctx, pathID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("learning path not found"))
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	if p.OwnerID != ownerID {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("learning path not found"))
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]domain.LearningPath, error) {
	paths, err := s.paths.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return paths, nil
}

// mutate runs a read-modify-write cycle on a path document, retrying on
// version conflicts so concurrent mutators serialize instead of losing
// updates.
func (s *Service) mutate(ctx context.Context, pathID string, fn func(p *domain.LearningPath) error) error {
	for attempt := 0; attempt < maxMutationRetries; attempt++ {
		p, err := s.paths.Get(ctx, pathID)
		if err != nil {
			return err
		}

		if err := fn(p); err != nil {
			return err
		}

		err = s.paths.Update(ctx, p)
		if stderrors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return errors.Internal(fmt.Errorf("update path: %w", err))
		}
		return nil
	}

	return errors.Internal(fmt.Errorf("path %s: gave up after %d conflicting updates", pathID, maxMutationRetries))
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
