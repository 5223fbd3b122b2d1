package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/pathwise/pathwise/internal/auth"
	"github.com/pathwise/pathwise/internal/domain"
	"github.com/pathwise/pathwise/internal/errors"
	"github.com/pathwise/pathwise/internal/event"
	"github.com/pathwise/pathwise/internal/leaderboard"
	"github.com/pathwise/pathwise/internal/path"
	"github.com/pathwise/pathwise/internal/progress"
	"github.com/pathwise/pathwise/internal/quiz"
)

type Config struct {
	Router       *gin.Engine
	EventBus     *event.Bus
	Verifier     *auth.Verifier
	Quiz         *quiz.Service
	Path         *path.Service
	Progress     *progress.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	verifier *auth.Verifier
	quiz     *quiz.Service
	path     *path.Service
	progress *progress.Service
	lb       *leaderboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		verifier: c.Verifier,
		quiz:     c.Quiz,
		path:     c.Path,
		progress: c.Progress,
		lb:       c.Leaderboard,
		redis:    c.Redis,
		prefix:   c.PubsubPrefix,
	}

	r := c.Router.Group("/", metricsMiddleware(), a.authMiddleware())
	r.POST("/quiz/custom", a.GenerateCustomQuiz)
	r.GET("/quiz/daily", a.GetDailyQuiz)
	r.POST("/quiz/submit", a.SubmitQuiz)
	r.GET("/quiz/daily/leaderboard", a.GetDailyLeaderboard)
	r.GET("/quizzes", a.ListQuizzes)

	r.POST("/learning-path", a.GenerateLearningPath)
	r.GET("/learning-paths", a.ListLearningPaths)
	r.GET("/learning-path/:id", a.GetLearningPath)
	r.POST("/learning-path/trigger-quiz", a.TriggerPathQuiz)
	r.POST("/learning-path/:id/topics/:order/complete", a.MarkTopicComplete)

	r.GET("/progress", a.GetProgress)
	r.GET("/dashboard", a.GetDashboard)

	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

type envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Status: "ok", Data: data})
}

func fail(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"path", c.FullPath(), "error", e)
		// Don't leak internals to the caller.
		c.JSON(e.HTTPStatusCode(), envelope{Status: "error", Error: "internal error"})
		return
	}
	c.JSON(e.HTTPStatusCode(), envelope{Status: "error", Error: e.Message})
}

const userKey = "pathwise.user"

// authMiddleware validates the bearer identity and loads the user for
// downstream handlers. The legacy x-access-token header is still accepted.
func (a *API) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("x-access-token")
		if token == "" {
			h := c.GetHeader("Authorization")
			if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
				token = h[7:]
			}
		}

		u, err := a.verifier.VerifyToken(c.Request.Context(), token)
		if err != nil {
			e := errors.Convert(err)
			c.AbortWithStatusJSON(e.HTTPStatusCode(), envelope{Status: "error", Error: e.Message})
			return
		}

		c.Set(userKey, u)
		c.Next()
	}
}

func currentUser(c *gin.Context) *domain.User {
	return c.MustGet(userKey).(*domain.User)
}

func (a *API) GenerateCustomQuiz(c *gin.Context) {
	var req struct {
		TopicName       string `json:"topicName"`
		DifficultyLevel string `json:"difficultyLevel"`
		NumQuestions    int    `json:"numQuestions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err)))
		return
	}
	if req.TopicName == "" {
		fail(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("topicName and difficultyLevel are required")))
		return
	}
	difficulty, valid := domain.ParseDifficulty(req.DifficultyLevel)
	if !valid {
		fail(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("difficultyLevel must be Easy, Medium or Hard")))
		return
	}

	q, err := a.quiz.GenerateCustom(c.Request.Context(), quiz.GenerateCustomRequest{
		OwnerID:      currentUser(c).ID,
		TopicName:    req.TopicName,
		Difficulty:   difficulty,
		NumQuestions: req.NumQuestions,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, q)
}

func (a *API) GetDailyQuiz(c *gin.Context) {
	resp, err := a.quiz.GetDaily(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		fail(c, err)
		return
	}

	data := gin.H{"quiz": resp.Quiz}
	if resp.AlreadySubmitted {
		data["message"] = "Quiz already submitted today"
	}
	ok(c, data)
}

func (a *API) SubmitQuiz(c *gin.Context) {
	var req struct {
		QuizID      string        `json:"quizId"`
		QuizVariant string        `json:"quizVariant"`
		Responses   []quiz.Answer `json:"responses"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err)))
		return
	}
	if req.QuizID == "" || req.Responses == nil {
		fail(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("quizId, quizVariant and responses are required")))
		return
	}
	variant, valid := domain.ParseVariant(req.QuizVariant)
	if !valid {
		fail(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid quizVariant %q", req.QuizVariant)))
		return
	}

	u := currentUser(c)
	resp, err := a.quiz.Submit(c.Request.Context(), quiz.SubmitRequest{
		OwnerID:  u.ID,
		Username: u.Name,
		QuizID:   req.QuizID,
		Variant:  variant,
		Answers:  req.Responses,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"quiz": resp.Quiz, "message": resp.Message})
}

func (a *API) GetDailyLeaderboard(c *gin.Context) {
	template, err := a.quiz.DailyTemplate(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	l, err := a.lb.Top(c.Request.Context(), template.ID, 10)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, l.Entries)
}

func (a *API) ListQuizzes(c *gin.Context) {
	quizzes, err := a.quiz.ListByOwner(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, quizzes)
}

func (a *API) GenerateLearningPath(c *gin.Context) {
	var req struct {
		CourseName      string `json:"courseName"`
		DifficultyLevel string `json:"difficultyLevel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err)))
		return
	}
	if req.CourseName == "" {
		fail(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("courseName and difficultyLevel are required")))
		return
	}
	difficulty, valid := domain.ParseDifficulty(req.DifficultyLevel)
	if !valid {
		fail(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("difficultyLevel must be Easy, Medium or Hard")))
		return
	}

	p, err := a.path.Generate(c.Request.Context(), path.GenerateRequest{
		OwnerID:    currentUser(c).ID,
		CourseName: req.CourseName,
		Difficulty: difficulty,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func (a *API) ListLearningPaths(c *gin.Context) {
	paths, err := a.path.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, paths)
}

func (a *API) GetLearningPath(c *gin.Context) {
	p, err := a.path.Get(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func (a *API) TriggerPathQuiz(c *gin.Context) {
	var req struct {
		LearningPathID string   `json:"learningPathId"`
		SubtopicNames  []string `json:"subtopicNames"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request body"), errors.WithCause(err)))
		return
	}
	if req.LearningPathID == "" {
		fail(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("learningPathId is required")))
		return
	}

	q, err := a.path.TriggerQuiz(c.Request.Context(), path.TriggerQuizRequest{
		OwnerID:       currentUser(c).ID,
		PathID:        req.LearningPathID,
		SubtopicNames: req.SubtopicNames,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, q)
}

func (a *API) MarkTopicComplete(c *gin.Context) {
	order, err := strconv.Atoi(c.Param("order"))
	if err != nil {
		fail(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid topic order")))
		return
	}

	var req struct {
		TimeSpentMinutes int `json:"timeSpent"`
	}
	// Body is optional; time spent defaults to zero.
	_ = c.ShouldBindJSON(&req)

	p, err := a.path.MarkTopicComplete(c.Request.Context(), path.MarkTopicCompleteRequest{
		OwnerID:          currentUser(c).ID,
		PathID:           c.Param("id"),
		TopicOrder:       order,
		TimeSpentMinutes: req.TimeSpentMinutes,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func (a *API) GetProgress(c *gin.Context) {
	r, err := a.progress.Report(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, r)
}

func (a *API) GetDashboard(c *gin.Context) {
	d, err := a.progress.Dashboard(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, d)
}
