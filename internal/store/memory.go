package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pathwise/pathwise/internal/domain"
)

// In-memory implementations backed by maps, useful for tests and local
// development. Documents are cloned on the way in and out so callers never
// share state with the store.

type MemUsers struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewMemUsers() *MemUsers {
	return &MemUsers{users: make(map[string]*domain.User)}
}

// Put seeds a user record.
func (s *MemUsers) Put(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = clone(u)
}

func (s *MemUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (s *MemUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemUsers) AddProgress(_ context.Context, userID string, delta domain.ProgressMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Metrics.TotalCourses += delta.TotalCourses
	u.Metrics.CompletedCourses += delta.CompletedCourses
	u.Metrics.TotalStudyTime += delta.TotalStudyTime
	u.Metrics.TotalPoints += delta.TotalPoints
	return nil
}

type MemQuizzes struct {
	mu      sync.RWMutex
	quizzes map[string]*domain.Quiz
}

func NewMemQuizzes() *MemQuizzes {
	return &MemQuizzes{quizzes: make(map[string]*domain.Quiz)}
}

func (s *MemQuizzes) Insert(_ context.Context, q *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[q.ID]; ok {
		return ErrDuplicate
	}
	s.quizzes[q.ID] = clone(q)
	return nil
}

func (s *MemQuizzes) Get(_ context.Context, id string) (*domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quizzes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(q), nil
}

func (s *MemQuizzes) Update(_ context.Context, q *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[q.ID]; !ok {
		return ErrNotFound
	}
	s.quizzes[q.ID] = clone(q)
	return nil
}

func (s *MemQuizzes) ListByOwner(_ context.Context, ownerID string) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Quiz
	for _, q := range s.quizzes {
		if q.OwnerID == ownerID {
			out = append(out, *clone(q))
		}
	}
	return out, nil
}

func (s *MemQuizzes) GetDailyTemplate(_ context.Context, day time.Time) (*domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, q := range s.quizzes {
		if q.OwnerID == "" && q.Variant == domain.VariantDaily && sameDay(q.CreatedAt, day) {
			return clone(q), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemQuizzes) InsertDailyTemplate(_ context.Context, q *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.quizzes {
		if existing.OwnerID == "" && existing.Variant == domain.VariantDaily && sameDay(existing.CreatedAt, q.CreatedAt) {
			return ErrDuplicate
		}
	}
	s.quizzes[q.ID] = clone(q)
	return nil
}

func (s *MemQuizzes) GetDailyInstance(_ context.Context, ownerID, templateID string) (*domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, q := range s.quizzes {
		if q.Variant == domain.VariantDaily && q.OwnerID == ownerID && q.ParentID == templateID {
			return clone(q), nil
		}
	}
	return nil, ErrNotFound
}

type MemPaths struct {
	mu    sync.RWMutex
	paths map[string]*domain.LearningPath
}

func NewMemPaths() *MemPaths {
	return &MemPaths{paths: make(map[string]*domain.LearningPath)}
}

func (s *MemPaths) Insert(_ context.Context, p *domain.LearningPath) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.paths[p.ID]; ok {
		return ErrDuplicate
	}
	p.Version = 1
	stored := clone(p)
	stored.Version = 1
	s.paths[p.ID] = stored
	return nil
}

func (s *MemPaths) Get(_ context.Context, id string) (*domain.LearningPath, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.paths[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := clone(p)
	out.Version = p.Version
	return out, nil
}

func (s *MemPaths) ListByOwner(_ context.Context, ownerID string) ([]domain.LearningPath, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LearningPath
	for _, p := range s.paths {
		if p.OwnerID == ownerID {
			cp := clone(p)
			cp.Version = p.Version
			out = append(out, *cp)
		}
	}
	return out, nil
}

func (s *MemPaths) Update(_ context.Context, p *domain.LearningPath) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.paths[p.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Version != p.Version {
		return ErrVersionConflict
	}

	stored := clone(p)
	stored.Version = p.Version + 1
	s.paths[p.ID] = stored
	p.Version++
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// clone deep-copies a document via JSON. Fields excluded from JSON (the path
// version) are handled by the callers.
func clone[T any](v *T) *T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(b, out); err != nil {
		panic(err)
	}
	return out
}
