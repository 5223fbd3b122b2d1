package store

import (
	"context"
	"errors"
	"time"

	"github.com/pathwise/pathwise/internal/domain"
)

var (
	// ErrNotFound is returned when the requested document does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a uniqueness constraint is violated,
	// notably on concurrent creation of the shared daily-quiz template.
	ErrDuplicate = errors.New("store: duplicate")
	// ErrVersionConflict is returned when an optimistic update lost a race
	// against another writer. Callers re-read and retry.
	ErrVersionConflict = errors.New("store: version conflict")
)

// Users reads user records and applies progress-counter deltas. Counter
// writes go through AddProgress only, so the increment stays atomic at the
// storage layer.
type Users interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	AddProgress(ctx context.Context, userID string, delta domain.ProgressMetrics) error
}

// Quizzes persists quizzes of all three variants. The shared daily template
// is the one ownerless row; InsertDailyTemplate enforces at most one template
// per day and reports ErrDuplicate when a concurrent creator won.
type Quizzes interface {
	Insert(ctx context.Context, q *domain.Quiz) error
	Get(ctx context.Context, id string) (*domain.Quiz, error)
	Update(ctx context.Context, q *domain.Quiz) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Quiz, error)

	GetDailyTemplate(ctx context.Context, day time.Time) (*domain.Quiz, error)
	InsertDailyTemplate(ctx context.Context, q *domain.Quiz) error
	GetDailyInstance(ctx context.Context, ownerID, templateID string) (*domain.Quiz, error)
}

// Paths persists learning-path documents. Update is optimistic: it only
// applies when the in-memory Version matches the stored one, returning
// ErrVersionConflict otherwise. This serializes concurrent path mutators.
type Paths interface {
	Insert(ctx context.Context, p *domain.LearningPath) error
	Get(ctx context.Context, id string) (*domain.LearningPath, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.LearningPath, error)
	Update(ctx context.Context, p *domain.LearningPath) error
}
