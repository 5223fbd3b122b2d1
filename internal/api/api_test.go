package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/pathwise/internal/api"
	"github.com/pathwise/pathwise/internal/auth"
	"github.com/pathwise/pathwise/internal/domain"
	"github.com/pathwise/pathwise/internal/event"
	"github.com/pathwise/pathwise/internal/generate"
	"github.com/pathwise/pathwise/internal/leaderboard"
	"github.com/pathwise/pathwise/internal/path"
	"github.com/pathwise/pathwise/internal/progress"
	"github.com/pathwise/pathwise/internal/quiz"
	"github.com/pathwise/pathwise/internal/store"
)

const secret = "test-secret"

func makeRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := event.NewBus()
	t.Cleanup(bus.Stop)

	users := store.NewMemUsers()
	users.Put(&domain.User{ID: "u1", Name: "alice", Email: "alice@example.com"})
	quizzes := store.NewMemQuizzes()
	paths := store.NewMemPaths()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})
	require.NoError(t, rc.Ping(context.Background()).Err())

	generator := &generate.Static{}

	lb := leaderboard.NewService(leaderboard.Config{EventBus: bus, Redis: rc, Prefix: "test"})
	pathService := path.NewService(path.Config{
		EventBus: bus, Paths: paths, Quizzes: quizzes, Generator: generator,
	})
	quizService := quiz.NewService(quiz.Config{
		EventBus: bus, Quizzes: quizzes, Generator: generator, Paths: pathService, Leaderboard: lb,
	})
	progressService := progress.NewService(progress.Config{
		EventBus: bus, Users: users, Quizzes: quizzes, Paths: paths,
	})

	e := gin.New()
	api.New(api.Config{
		Router:       e,
		EventBus:     bus,
		Verifier:     auth.NewVerifier(auth.Config{Secret: secret, Users: users}),
		Quiz:         quizService,
		Path:         pathService,
		Progress:     progressService,
		Leaderboard:  lb,
		Redis:        rc,
		PubsubPrefix: "test",
	})
	return e
}

func mintToken(t *testing.T, email string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func do(t *testing.T, e *gin.Engine, method, target, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return w, envelope
}

func TestAPI_RequiresToken(t *testing.T) {
	e := makeRouter(t)

	w, envelope := do(t, e, http.MethodGet, "/progress", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "error", envelope["status"])
	assert.Equal(t, "no token provided", envelope["error"])
}

func TestAPI_RejectsBadToken(t *testing.T) {
	e := makeRouter(t)

	w, envelope := do(t, e, http.MethodGet, "/progress", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid token", envelope["error"])
}

func TestAPI_LegacyHeaderAccepted(t *testing.T) {
	e := makeRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/progress", nil)
	req.Header.Set("x-access-token", mintToken(t, "alice@example.com"))

	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_GenerateLearningPath(t *testing.T) {
	e := makeRouter(t)
	token := mintToken(t, "alice@example.com")

	w, envelope := do(t, e, http.MethodPost, "/learning-path", token,
		`{"courseName":"Mathematics","difficultyLevel":"Medium"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", envelope["status"])

	data := envelope["data"].(map[string]any)
	assert.Equal(t, "Mathematics", data["courseName"])
	assert.Equal(t, float64(0), data["courseCompletionStatus"])
	assert.Len(t, data["topics"], 4)
}

func TestAPI_GenerateLearningPath_InvalidDifficulty(t *testing.T) {
	e := makeRouter(t)
	token := mintToken(t, "alice@example.com")

	w, envelope := do(t, e, http.MethodPost, "/learning-path", token,
		`{"courseName":"Mathematics","difficultyLevel":"Impossible"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error", envelope["status"])
	assert.Contains(t, envelope["error"], "difficultyLevel")
}

func TestAPI_DailyQuizFlow(t *testing.T) {
	e := makeRouter(t)
	token := mintToken(t, "alice@example.com")

	w, envelope := do(t, e, http.MethodGet, "/quiz/daily", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	data := envelope["data"].(map[string]any)
	quizDoc := data["quiz"].(map[string]any)
	quizID := quizDoc["id"].(string)
	questions := quizDoc["questions"].([]any)
	require.Len(t, questions, 10)

	responses := make([]string, 0, len(questions))
	for range questions {
		responses = append(responses, `{"selectedOption":"A","responseTime":5}`)
	}
	body := `{"quizId":"` + quizID + `","quizVariant":"daily","responses":[` + strings.Join(responses, ",") + `]}`

	w, envelope = do(t, e, http.MethodPost, "/quiz/submit", token, body)
	require.Equal(t, http.StatusOK, w.Code)
	data = envelope["data"].(map[string]any)
	assert.Equal(t, "Quiz submitted successfully", data["message"])
	assert.Equal(t, "Pass", data["quiz"].(map[string]any)["quizResult"])

	// Resubmitting the same quiz conflicts.
	w, envelope = do(t, e, http.MethodPost, "/quiz/submit", token, body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "quiz already submitted", envelope["error"])

	// The board now ranks the submission.
	w, envelope = do(t, e, http.MethodGet, "/quiz/daily/leaderboard", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	entries := envelope["data"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].(map[string]any)["username"])
}

func TestAPI_DailyLeaderboard_EmptyBeforeSubmissions(t *testing.T) {
	e := makeRouter(t)
	token := mintToken(t, "alice@example.com")

	// No template yet: the board itself is missing.
	w, envelope := do(t, e, http.MethodGet, "/quiz/daily/leaderboard", token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no daily quiz available", envelope["error"])

	// Fetching the daily quiz creates today's template; with no submissions
	// the leaderboard is an empty list, not an error.
	w, _ = do(t, e, http.MethodGet, "/quiz/daily", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	w, envelope = do(t, e, http.MethodGet, "/quiz/daily/leaderboard", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", envelope["status"])
	entries, ok := envelope["data"].([]any)
	require.True(t, ok, "data should be a list")
	assert.Empty(t, entries)
}

func TestAPI_GetLearningPath_NotFound(t *testing.T) {
	e := makeRouter(t)
	token := mintToken(t, "alice@example.com")

	w, envelope := do(t, e, http.MethodGet, "/learning-path/nope", token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "learning path not found", envelope["error"])
}
