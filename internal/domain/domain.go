package domain

import (
	"math"
	"time"
)

// Difficulty of a quiz or learning path.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

func ParseDifficulty(s string) (Difficulty, bool) {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return Difficulty(s), true
	}
	return "", false
}

// Result is the lifecycle state of a quiz: created Pending, scored exactly
// once to Pass or Fail, then terminal.
type Result string

const (
	ResultPending Result = "Pending"
	ResultPass    Result = "Pass"
	ResultFail    Result = "Fail"
)

// Variant distinguishes the three quiz kinds. It is resolved once at the API
// boundary from the request payload.
type Variant string

const (
	VariantPathLinked Variant = "path-linked"
	VariantCustom     Variant = "custom"
	VariantDaily      Variant = "daily"
)

func ParseVariant(s string) (Variant, bool) {
	switch Variant(s) {
	case VariantPathLinked, VariantCustom, VariantDaily:
		return Variant(s), true
	}
	return "", false
}

// ResourceLink points at an external study resource.
type ResourceLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// QuestionOptionCount is the fixed number of MCQ options per question.
const QuestionOptionCount = 4

// PointsPerMark converts quiz marks into gamification points.
const PointsPerMark = 10

// Question is immutable once its quiz has been generated. CorrectAnswer must
// be one of Options; Marks is at least 1.
type Question struct {
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Marks         int      `json:"marks"`
	Explanation   string   `json:"explanation,omitempty"`
	Subtopic      string   `json:"subtopic,omitempty"`
}

// QuizResponse is created at submission time, one per question, positionally
// aligned with the quiz's question list.
type QuizResponse struct {
	Question            string         `json:"question"`
	SelectedOption      string         `json:"selectedOption"`
	IsCorrect           bool           `json:"isCorrect"`
	MarksObtained       int            `json:"marksObtained"`
	ResponseTimeSeconds float64        `json:"responseTime"`
	Feedback            string         `json:"feedback"`
	RemedialResources   []ResourceLink `json:"remedialResources,omitempty"`
}

// Quiz covers all three variants. OwnerID is empty only for the shared daily
// template; per-user daily instances reference the template via ParentID.
type Quiz struct {
	ID              string         `json:"id"`
	OwnerID         string         `json:"userId,omitempty"`
	Variant         Variant        `json:"variant"`
	LearningPathID  string         `json:"learningPathId,omitempty"`
	ParentID        string         `json:"parentQuizId,omitempty"`
	TopicName       string         `json:"topicName"`
	Difficulty      Difficulty     `json:"difficultyLevel"`
	QuizTimeMinutes int            `json:"quizTime"`
	Questions       []Question     `json:"questions"`
	Responses       []QuizResponse `json:"responses,omitempty"`
	Result          Result         `json:"quizResult"`
	Score           int            `json:"quizScore"`
	Strengths       string         `json:"strengths,omitempty"`
	Weaknesses      string         `json:"weaknesses,omitempty"`
	// RecommendedResources is populated from performance analysis after
	// submission.
	RecommendedResources []ResourceLink `json:"recommendedResources,omitempty"`
	// LeaderboardScore is set only for scored daily-quiz instances.
	LeaderboardScore float64    `json:"leaderboardScore,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// IncorrectSubtopics returns the distinct subtopics of questions answered
// incorrectly, in question order. Remedial topics are only ever injected for
// these.
func IncorrectSubtopics(questions []Question, responses []QuizResponse) []string {
	seen := make(map[string]struct{})
	var out []string
	for i, r := range responses {
		if i >= len(questions) || r.IsCorrect {
			continue
		}
		st := questions[i].Subtopic
		if st == "" {
			continue
		}
		if _, ok := seen[st]; ok {
			continue
		}
		seen[st] = struct{}{}
		out = append(out, st)
	}
	return out
}

// TotalPossible is the sum of marks over all questions.
func (q *Quiz) TotalPossible() int {
	total := 0
	for _, qs := range q.Questions {
		total += qs.Marks
	}
	return total
}

// Topic is one unit of study within a learning path. Order is assigned at
// append time as max(existing orders)+1 and is display order, not an index.
type Topic struct {
	Name             string         `json:"topicName"`
	Description      string         `json:"topicDescription"`
	ResourceLinks    []ResourceLink `json:"resourceLinks,omitempty"`
	CompletionStatus bool           `json:"completionStatus"`
	CompletionDate   *time.Time     `json:"completionDate,omitempty"`
	TimeSpentMinutes int            `json:"timeSpent"`
	Order            int            `json:"order"`
}

// QuizLink ties a path-linked quiz back to its learning path.
type QuizLink struct {
	QuizID           string   `json:"quizId"`
	Completed        bool     `json:"completed"`
	CoveredSubtopics []string `json:"coveredSubtopics,omitempty"`
}

// LearningPath is a user-owned ordered course of study.
//
// CompletionPercent is derived: it must equal
// round(100 * completed topics / total topics) after every topic mutation.
// CompletionDate is sticky: set the first time the percent reaches 100 and
// never cleared, even if later remedial appends drop the percent below 100.
type LearningPath struct {
	ID                 string     `json:"id"`
	OwnerID            string     `json:"userId"`
	Name               string     `json:"courseName"`
	Difficulty         Difficulty `json:"difficultyLevel"`
	Topics             []Topic    `json:"topics"`
	CompletionPercent  int        `json:"courseCompletionStatus"`
	CompletionDate     *time.Time `json:"courseCompletionDate,omitempty"`
	CumulativeScore    int        `json:"courseScore"`
	GamificationPoints int        `json:"gamificationPoints"`
	Strengths          string     `json:"courseStrength,omitempty"`
	Weaknesses         string     `json:"courseWeakness,omitempty"`
	QuizLinks          []QuizLink `json:"quizzes"`
	CreatedAt          time.Time  `json:"createdAt"`

	// Version guards read-modify-write cycles on the path document.
	Version int64 `json:"-"`
}

// RecomputeCompletion re-derives CompletionPercent from the topic list and
// returns the new value.
func (p *LearningPath) RecomputeCompletion() int {
	if len(p.Topics) == 0 {
		p.CompletionPercent = 0
		return 0
	}

	completed := 0
	for _, t := range p.Topics {
		if t.CompletionStatus {
			completed++
		}
	}

	p.CompletionPercent = int(math.Round(100 * float64(completed) / float64(len(p.Topics))))
	return p.CompletionPercent
}

// MaxTopicOrder returns the highest Order among existing topics, 0 if none.
func (p *LearningPath) MaxTopicOrder() int {
	max := 0
	for _, t := range p.Topics {
		if t.Order > max {
			max = t.Order
		}
	}
	return max
}

// ProgressMetrics are user-level rollup counters, mutated only by the
// progress service.
type ProgressMetrics struct {
	TotalCourses     int `json:"totalCourses"`
	CompletedCourses int `json:"completedCourses"`
	TotalStudyTime   int `json:"totalStudyTime"`
	TotalPoints      int `json:"totalPoints"`
}

// User is a verified identity; password and token handling live outside this
// service.
type User struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Metrics   ProgressMetrics `json:"progressMetrics"`
	CreatedAt time.Time       `json:"createdAt"`
}

// LeaderboardEntry is one ranked daily-quiz submission.
type LeaderboardEntry struct {
	Rank             int       `json:"rank"`
	Username         string    `json:"username"`
	LeaderboardScore float64   `json:"leaderboardScore"`
	Score            int       `json:"quizScore"`
	CompletedAt      time.Time `json:"completedTime"`
}

// Leaderboard is the ranked scoreboard for one daily-quiz template, sorted by
// leaderboard score descending with earlier completion breaking ties.
type Leaderboard struct {
	TemplateID string             `json:"templateId"`
	Entries    []LeaderboardEntry `json:"entries"`
}
