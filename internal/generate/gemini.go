package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pathwise/pathwise/internal/domain"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini calls the Gemini REST API and parses its fenced-JSON replies.
type Gemini struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

var _ ContentGenerator = (*Gemini)(nil)

type GeminiConfig struct {
	APIKey  string
	Model   string // e.g. "gemini-2.0-flash"
	BaseURL string // override for tests
	Timeout time.Duration
}

func NewGemini(c GeminiConfig) *Gemini {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	return &Gemini{
		baseURL: c.BaseURL,
		apiKey:  c.APIKey,
		model:   c.Model,
		client:  &http.Client{Timeout: c.Timeout},
	}
}

func (g *Gemini) GeneratePath(ctx context.Context, courseName string, difficulty domain.Difficulty) (*PathContent, error) {
	prompt := fmt.Sprintf(`Generate a personalized learning path for the course %q at %s difficulty. Break it into 6-8 subtopics covering only the core concepts. Return a JSON object:
{"topics":[{"name":"...","description":"...","resourceLinks":[{"title":"...","url":"..."}]}],"strength":"...","weakness":"...","duration":10}`,
		courseName, difficulty)

	var out PathContent
	if err := g.generateJSON(ctx, prompt, &out); err != nil {
		return nil, fmt.Errorf("generate path: %w", err)
	}
	if len(out.Topics) == 0 {
		return nil, fmt.Errorf("generate path: empty topic list")
	}
	return &out, nil
}

func (g *Gemini) GenerateQuiz(ctx context.Context, topicName string, difficulty domain.Difficulty, numQuestions int, variant domain.Variant) (*QuizContent, error) {
	prompt := fmt.Sprintf(`Generate a %s quiz for the topic %q with %d MCQ questions at %s difficulty. Each question must have exactly 4 options, a correctAnswer matching one of the options, marks (1 for Easy, 2 for Medium, 3 for Hard), an explanation, and the subtopic it tests. Include duration in minutes (1 per question). Return a JSON object:
{"questions":[{"question":"...","options":["...","...","...","..."],"correctAnswer":"...","marks":2,"explanation":"...","subtopic":"..."}],"duration":%d}`,
		variant, topicName, numQuestions, difficulty, numQuestions)

	var out QuizContent
	if err := g.generateJSON(ctx, prompt, &out); err != nil {
		return nil, fmt.Errorf("generate quiz: %w", err)
	}

	// Drop malformed questions instead of failing the whole quiz.
	valid := out.Questions[:0]
	for _, q := range out.Questions {
		if ValidQuestion(q) {
			valid = append(valid, q)
		}
	}
	out.Questions = valid
	if len(out.Questions) == 0 {
		return nil, fmt.Errorf("generate quiz: no valid questions")
	}
	if out.DurationMinutes <= 0 {
		out.DurationMinutes = len(out.Questions)
	}
	return &out, nil
}

func (g *Gemini) AnalyzePerformance(ctx context.Context, topicName string, difficulty domain.Difficulty, responses []domain.QuizResponse, questions []domain.Question) (*Analysis, error) {
	rb, _ := json.Marshal(responses)
	qb, _ := json.Marshal(questions)
	prompt := fmt.Sprintf(`Analyze quiz performance for the topic %q at %s difficulty.
Responses: %s
Questions: %s
Return a JSON object:
{"strengths":"...","weaknesses":"...","resources":[{"title":"...","url":"..."}],"remedialSubtopics":[{"name":"...","description":"...","resourceLinks":[{"title":"...","url":"..."}]}]}
Remedial subtopic names must exactly match the subtopic tags of questions answered incorrectly.`,
		topicName, difficulty, rb, qb)

	var out Analysis
	if err := g.generateJSON(ctx, prompt, &out); err != nil {
		return nil, fmt.Errorf("analyze performance: %w", err)
	}
	if out.Strengths == "" || out.Weaknesses == "" {
		return nil, fmt.Errorf("analyze performance: incomplete analysis")
	}
	return &out, nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// generateJSON sends the prompt, strips markdown fences from the reply and
// unmarshals it into out.
func (g *Gemini) generateJSON(ctx context.Context, prompt string, out any) error {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gemini: unexpected status %d", resp.StatusCode)
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return fmt.Errorf("gemini: empty response")
	}

	raw := cleanJSON(gr.Candidates[0].Content.Parts[0].Text)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("gemini: parse generated JSON: %w", err)
	}
	return nil
}

// cleanJSON strips ```json fences the model likes to wrap its output in.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
