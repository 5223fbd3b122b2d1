package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pathwise/pathwise/internal/domain"
)

const codeUniqueViolation = "23505"

// Migrate creates the backing tables and indexes. The daily-template partial
// unique index is what makes concurrent first-requests-of-the-day safe: the
// loser of the race gets a unique violation and re-reads the winner's row.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id          TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	email            TEXT NOT NULL UNIQUE,
	total_courses    INTEGER NOT NULL DEFAULT 0,
	completed_courses INTEGER NOT NULL DEFAULT 0,
	total_study_time INTEGER NOT NULL DEFAULT 0,
	total_points     INTEGER NOT NULL DEFAULT 0,
	create_time      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS quizzes (
	quiz_id     TEXT PRIMARY KEY,
	owner_id    TEXT,
	variant     TEXT NOT NULL,
	parent_id   TEXT,
	path_id     TEXT,
	doc         JSONB NOT NULL,
	create_time TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS quizzes_daily_template_uniq
	ON quizzes ((create_time::date))
	WHERE owner_id IS NULL AND variant = 'daily';

CREATE UNIQUE INDEX IF NOT EXISTS quizzes_daily_instance_uniq
	ON quizzes (owner_id, parent_id)
	WHERE variant = 'daily' AND parent_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS learning_paths (
	path_id     TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	version     BIGINT NOT NULL DEFAULT 1,
	doc         JSONB NOT NULL,
	create_time TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS learning_paths_owner_idx ON learning_paths (owner_id);
`

	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// PGUsers is the postgres-backed Users implementation.
type PGUsers struct {
	db *pgxpool.Pool
}

func NewPGUsers(db *pgxpool.Pool) *PGUsers {
	return &PGUsers{db: db}
}

func (s *PGUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const stmt = `
SELECT user_id, name, email, total_courses, completed_courses, total_study_time, total_points, create_time
FROM users WHERE user_id = $1;`

	return s.scanUser(s.db.QueryRow(ctx, stmt, id))
}

func (s *PGUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const stmt = `
SELECT user_id, name, email, total_courses, completed_courses, total_study_time, total_points, create_time
FROM users WHERE email = $1;`

	return s.scanUser(s.db.QueryRow(ctx, stmt, email))
}

func (s *PGUsers) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.Email,
		&u.Metrics.TotalCourses, &u.Metrics.CompletedCourses,
		&u.Metrics.TotalStudyTime, &u.Metrics.TotalPoints,
		&u.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan user: %w", err)
	}
	return &u, nil
}

func (s *PGUsers) AddProgress(ctx context.Context, userID string, delta domain.ProgressMetrics) error {
	const stmt = `
UPDATE users SET
	total_courses = total_courses + $2,
	completed_courses = completed_courses + $3,
	total_study_time = total_study_time + $4,
	total_points = total_points + $5
WHERE user_id = $1;`

	ct, err := s.db.Exec(ctx, stmt, userID,
		delta.TotalCourses, delta.CompletedCourses, delta.TotalStudyTime, delta.TotalPoints)
	if err != nil {
		return fmt.Errorf("store: add progress: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PGQuizzes is the postgres-backed Quizzes implementation. Quiz documents are
// stored whole as JSONB with the dispatch columns broken out for indexing.
type PGQuizzes struct {
	db *pgxpool.Pool
}

func NewPGQuizzes(db *pgxpool.Pool) *PGQuizzes {
	return &PGQuizzes{db: db}
}

func (s *PGQuizzes) Insert(ctx context.Context, q *domain.Quiz) error {
	const stmt = `
INSERT INTO quizzes (quiz_id, owner_id, variant, parent_id, path_id, doc, create_time)
VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7);`

	doc, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("store: marshal quiz: %w", err)
	}

	_, err = s.db.Exec(ctx, stmt, q.ID, q.OwnerID, string(q.Variant), q.ParentID, q.LearningPathID, doc, q.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("store: insert quiz: %w", err)
	}
	return nil
}

func (s *PGQuizzes) Get(ctx context.Context, id string) (*domain.Quiz, error) {
	const stmt = `SELECT doc FROM quizzes WHERE quiz_id = $1;`
	return s.scanQuiz(s.db.QueryRow(ctx, stmt, id))
}

func (s *PGQuizzes) Update(ctx context.Context, q *domain.Quiz) error {
	const stmt = `UPDATE quizzes SET doc = $2 WHERE quiz_id = $1;`

	doc, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("store: marshal quiz: %w", err)
	}

	ct, err := s.db.Exec(ctx, stmt, q.ID, doc)
	if err != nil {
		return fmt.Errorf("store: update quiz: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGQuizzes) ListByOwner(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	const stmt = `SELECT doc FROM quizzes WHERE owner_id = $1 ORDER BY create_time;`

	rows, err := s.db.Query(ctx, stmt, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list quizzes: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Quiz, error) {
		var doc []byte
		if err := r.Scan(&doc); err != nil {
			return domain.Quiz{}, err
		}
		var q domain.Quiz
		if err := json.Unmarshal(doc, &q); err != nil {
			return domain.Quiz{}, err
		}
		return q, nil
	})
}

func (s *PGQuizzes) GetDailyTemplate(ctx context.Context, day time.Time) (*domain.Quiz, error) {
	const stmt = `
SELECT doc FROM quizzes
WHERE owner_id IS NULL AND variant = 'daily' AND create_time::date = $1::date;`

	return s.scanQuiz(s.db.QueryRow(ctx, stmt, day))
}

func (s *PGQuizzes) InsertDailyTemplate(ctx context.Context, q *domain.Quiz) error {
	return s.Insert(ctx, q)
}

func (s *PGQuizzes) GetDailyInstance(ctx context.Context, ownerID, templateID string) (*domain.Quiz, error) {
	const stmt = `
SELECT doc FROM quizzes
WHERE owner_id = $1 AND parent_id = $2 AND variant = 'daily';`

	return s.scanQuiz(s.db.QueryRow(ctx, stmt, ownerID, templateID))
}

func (s *PGQuizzes) scanQuiz(row pgx.Row) (*domain.Quiz, error) {
	var doc []byte
	err := row.Scan(&doc)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan quiz: %w", err)
	}

	var q domain.Quiz
	if err := json.Unmarshal(doc, &q); err != nil {
		return nil, fmt.Errorf("store: unmarshal quiz: %w", err)
	}
	return &q, nil
}

// PGPaths is the postgres-backed Paths implementation with optimistic
// versioning on the whole path document.
type PGPaths struct {
	db *pgxpool.Pool
}

func NewPGPaths(db *pgxpool.Pool) *PGPaths {
	return &PGPaths{db: db}
}

func (s *PGPaths) Insert(ctx context.Context, p *domain.LearningPath) error {
	const stmt = `
INSERT INTO learning_paths (path_id, owner_id, version, doc, create_time)
VALUES ($1, $2, 1, $3, $4);`

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: marshal path: %w", err)
	}

	p.Version = 1
	_, err = s.db.Exec(ctx, stmt, p.ID, p.OwnerID, doc, p.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("store: insert path: %w", err)
	}
	return nil
}

func (s *PGPaths) Get(ctx context.Context, id string) (*domain.LearningPath, error) {
	const stmt = `SELECT doc, version FROM learning_paths WHERE path_id = $1;`

	var (
		doc     []byte
		version int64
	)
	err := s.db.QueryRow(ctx, stmt, id).Scan(&doc, &version)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get path: %w", err)
	}

	var p domain.LearningPath
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("store: unmarshal path: %w", err)
	}
	p.Version = version
	return &p, nil
}

func (s *PGPaths) ListByOwner(ctx context.Context, ownerID string) ([]domain.LearningPath, error) {
	const stmt = `SELECT doc, version FROM learning_paths WHERE owner_id = $1 ORDER BY create_time;`

	rows, err := s.db.Query(ctx, stmt, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list paths: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LearningPath, error) {
		var (
			doc     []byte
			version int64
		)
		if err := r.Scan(&doc, &version); err != nil {
			return domain.LearningPath{}, err
		}
		var p domain.LearningPath
		if err := json.Unmarshal(doc, &p); err != nil {
			return domain.LearningPath{}, err
		}
		p.Version = version
		return p, nil
	})
}

func (s *PGPaths) Update(ctx context.Context, p *domain.LearningPath) error {
	const stmt = `
UPDATE learning_paths SET doc = $3, version = version + 1
WHERE path_id = $1 AND version = $2;`

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: marshal path: %w", err)
	}

	ct, err := s.db.Exec(ctx, stmt, p.ID, p.Version, doc)
	if err != nil {
		return fmt.Errorf("store: update path: %w", err)
	}
	if ct.RowsAffected() == 0 {
		// Either the path is gone or another writer bumped the version.
		if _, err := s.Get(ctx, p.ID); stderrors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	p.Version++
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
