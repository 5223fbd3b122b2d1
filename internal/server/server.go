package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pathwise/pathwise/internal/api"
	"github.com/pathwise/pathwise/internal/auth"
	"github.com/pathwise/pathwise/internal/event"
	"github.com/pathwise/pathwise/internal/generate"
	"github.com/pathwise/pathwise/internal/leaderboard"
	"github.com/pathwise/pathwise/internal/path"
	"github.com/pathwise/pathwise/internal/progress"
	"github.com/pathwise/pathwise/internal/quiz"
	"github.com/pathwise/pathwise/internal/store"
	"github.com/pathwise/pathwise/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Auth struct {
		Secret string
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Store struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}

	Generator struct {
		APIKey string
		Model  string
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	service struct {
		quiz        *quiz.Service
		path        *path.Service
		progress    *progress.Service
		leaderboard *leaderboard.Service
		verifier    *auth.Verifier
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg := s.c.Postgres.Store
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pg.User, pg.Pass, pg.Addr, pg.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	if err := store.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() {
	users := store.NewPGUsers(s.infra.postgres)
	quizzes := store.NewPGQuizzes(s.infra.postgres)
	paths := store.NewPGPaths(s.infra.postgres)

	var generator generate.ContentGenerator
	if s.c.Generator.APIKey != "" {
		generator = generate.NewGemini(generate.GeminiConfig{
			APIKey: s.c.Generator.APIKey,
			Model:  s.c.Generator.Model,
		})
	} else {
		// Local development without an API key runs on canned content.
		slog.Warn("server: no generator API key configured, using static content")
		generator = &generate.Static{}
	}

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})

	s.service.path = path.NewService(path.Config{
		EventBus:  s.eb,
		Paths:     paths,
		Quizzes:   quizzes,
		Generator: generator,
	})

	s.service.quiz = quiz.NewService(quiz.Config{
		EventBus:    s.eb,
		Quizzes:     quizzes,
		Generator:   generator,
		Paths:       s.service.path,
		Leaderboard: s.service.leaderboard,
	})

	s.service.progress = progress.NewService(progress.Config{
		EventBus: s.eb,
		Users:    users,
		Quizzes:  quizzes,
		Paths:    paths,
	})

	s.service.verifier = auth.NewVerifier(auth.Config{
		Secret: s.c.Auth.Secret,
		Users:  users,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Verifier:     s.service.verifier,
		Quiz:         s.service.quiz,
		Path:         s.service.path,
		Progress:     s.service.progress,
		Leaderboard:  s.service.leaderboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
	err := s.http.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
