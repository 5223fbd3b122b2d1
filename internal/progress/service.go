package progress

import (
	"context"

	"github.com/pathwise/pathwise/internal/domain"
	"github.com/pathwise/pathwise/internal/errors"
	"github.com/pathwise/pathwise/internal/event"
	"github.com/pathwise/pathwise/internal/store"
)

type Config struct {
	EventBus *event.Bus
	Users    store.Users
	Quizzes  store.Quizzes
	Paths    store.Paths
}

// Service is the single owner of User.progressMetrics writes. Each trigger
// fires exactly once per causal event: the publishers guard re-firing (the
// path reconciler's completion-date check, the quiz resubmission guard).
type Service struct {
	users   store.Users
	quizzes store.Quizzes
	paths   store.Paths
}

func NewService(c Config) *Service {
	s := &Service{
		users:   c.Users,
		quizzes: c.Quizzes,
		paths:   c.Paths,
	}

	c.EventBus.Subscribe(domain.EventNamePathCreated, func(ctx context.Context, e event.Event) error {
		return s.onPathCreated(ctx, e.(domain.EventPathCreated))
	})
	c.EventBus.Subscribe(domain.EventNamePathCompleted, func(ctx context.Context, e event.Event) error {
		return s.onPathCompleted(ctx, e.(domain.EventPathCompleted))
	})
	c.EventBus.Subscribe(domain.EventNameQuizScored, func(ctx context.Context, e event.Event) error {
		return s.onQuizScored(ctx, e.(domain.EventQuizScored))
	})

	return s
}

func (s *Service) onPathCreated(ctx context.Context, e domain.EventPathCreated) error {
	return s.users.AddProgress(ctx, e.Path.OwnerID, domain.ProgressMetrics{TotalCourses: 1})
}

func (s *Service) onPathCompleted(ctx context.Context, e domain.EventPathCompleted) error {
	return s.users.AddProgress(ctx, e.Path.OwnerID, domain.ProgressMetrics{CompletedCourses: 1})
}

func (s *Service) onQuizScored(ctx context.Context, e domain.EventQuizScored) error {
	// Path-linked quizzes accrue gamification points on the path itself,
	// handled by the reconciler.
	if e.Quiz.Variant == domain.VariantPathLinked {
		return nil
	}
	return s.users.AddProgress(ctx, e.Quiz.OwnerID, domain.ProgressMetrics{
		TotalPoints: e.Quiz.Score * domain.PointsPerMark,
	})
}

// Report is the user-facing progress rollup for the dashboard.
type Report struct {
	TotalCourses     int     `json:"totalCourses"`
	CompletedCourses int     `json:"completedCourses"`
	ActiveCourses    int     `json:"activeCourses"`
	TotalPoints      int     `json:"totalPoints"`
	TotalStudyTime   int     `json:"totalStudyTime"`
	TotalQuizzes     int     `json:"totalQuizzes"`
	AverageScore     float64 `json:"averageScore"`
	PassRate         float64 `json:"passRate"`
}

// Report assembles the progress rollup for one user.
func (s *Service) Report(ctx context.Context, userID string) (*Report, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, errors.Internal(err)
	}

	quizzes, err := s.quizzes.ListByOwner(ctx, userID)
	if err != nil {
		return nil, errors.Internal(err)
	}

	r := &Report{
		TotalCourses:     u.Metrics.TotalCourses,
		CompletedCourses: u.Metrics.CompletedCourses,
		ActiveCourses:    u.Metrics.TotalCourses - u.Metrics.CompletedCourses,
		TotalPoints:      u.Metrics.TotalPoints,
		TotalStudyTime:   u.Metrics.TotalStudyTime,
	}

	scored := 0
	passed := 0
	totalScore := 0
	for _, q := range quizzes {
		if q.Result == domain.ResultPending {
			continue
		}
		scored++
		totalScore += q.Score
		if q.Result == domain.ResultPass {
			passed++
		}
	}
	r.TotalQuizzes = scored
	if scored > 0 {
		r.AverageScore = float64(totalScore) / float64(scored)
		r.PassRate = float64(passed) / float64(scored) * 100
	}

	return r, nil
}

// CourseSummary is one learning path's dashboard row.
type CourseSummary struct {
	CourseName string `json:"courseName"`
	Progress   int    `json:"progress"`
	Strength   string `json:"strength,omitempty"`
	Weakness   string `json:"weakness,omitempty"`
	Points     int    `json:"points"`
}

// Dashboard combines the progress report with per-course summaries.
type Dashboard struct {
	Report  Report          `json:"report"`
	Courses []CourseSummary `json:"learningPaths"`
}

func (s *Service) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	report, err := s.Report(ctx, userID)
	if err != nil {
		return nil, err
	}

	paths, err := s.paths.ListByOwner(ctx, userID)
	if err != nil {
		return nil, errors.Internal(err)
	}

	d := &Dashboard{Report: *report}
	for _, p := range paths {
		d.Courses = append(d.Courses, CourseSummary{
			CourseName: p.Name,
			Progress:   p.CompletionPercent,
			Strength:   p.Strengths,
			Weakness:   p.Weaknesses,
			Points:     p.GamificationPoints,
		})
	}
	return d, nil
}
